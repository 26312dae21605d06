// Package app assembles an Analyzer from configuration. Both binaries share
// it so oracle loading and fallback behave the same way.
package app

import (
	"context"

	"github.com/truthguard/truthguard/internal/analyzer"
	"github.com/truthguard/truthguard/internal/config"
	"github.com/truthguard/truthguard/internal/factcheck"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/oracle/onnx"
	"github.com/truthguard/truthguard/internal/signals"
	"github.com/truthguard/truthguard/internal/telemetry"
	"github.com/truthguard/truthguard/internal/video"
)

// App owns the analyzer and the resources behind it.
type App struct {
	Analyzer *analyzer.Analyzer
	oracles  *loadedOracles
}

// Build loads oracles, probes ffmpeg and constructs the analyzer. tel may be
// nil.
func Build(ctx context.Context, cfg *config.Config, tel *telemetry.Provider) (*App, error) {
	oracles, err := loadOracles(ctx, cfg.Oracles)
	if err != nil {
		shutdownRuntime()
		return nil, err
	}

	var decoder video.Decoder
	ff := video.NewFFmpegDecoder(cfg.Video.FFmpegPath, cfg.Video.FFprobePath)
	if err := ff.Available(); err != nil {
		logging.Warn().Err(err).Msg("ffmpeg not available; video analysis disabled")
	} else {
		decoder = ff
	}

	sampling := video.SamplingPolicy{
		Mode:         video.SamplingMode(cfg.Video.Sampling),
		FPS:          cfg.Video.FramesPerSecond,
		TargetFrames: cfg.Video.TargetFrames,
		MaxFrames:    cfg.Video.MaxFrames,
	}
	a := analyzer.New(analyzer.Options{
		Text:         oracles.Text,
		Image:        oracles.Image,
		TextBackend:  oracles.TextMode,
		ImageBackend: oracles.ImageMode,
		ForensicMode: signals.ForensicMode(cfg.Image.ForensicMode),
		Decoder:      decoder,
		Sampling:     sampling,
		VideoWorkers: cfg.Video.Workers,
		VideoTimeout: cfg.Video.Timeout,
		Facts:        factcheck.New(cfg.FactCheck.Facts, cfg.FactCheck.MinSimilarity),
		Telemetry:    tel,
	})

	st := a.Status()
	logging.Info().
		Str("text_oracle", st.TextOracle).
		Str("image_oracle", st.ImageOracle).
		Str("forensic_mode", st.ForensicMode).
		Bool("video", st.Video).
		Int("facts", st.Facts).
		Str("weight_tables", st.WeightTables).
		Msg("analyzer ready")

	return &App{Analyzer: a, oracles: oracles}, nil
}

// Close releases model sessions and the ONNX Runtime environment.
func (a *App) Close() {
	a.oracles.Close()
	shutdownRuntime()
}

func shutdownRuntime() {
	if err := onnx.Shutdown(); err != nil {
		logging.Warn().Err(err).Msg("onnxruntime shutdown")
	}
}

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/truthguard/truthguard/internal/config"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/oracle"
	"github.com/truthguard/truthguard/internal/oracle/onnx"
	"github.com/truthguard/truthguard/internal/oracle/remote"
	"github.com/truthguard/truthguard/internal/redact"
)

const healthTimeout = 5 * time.Second

// loadedOracles holds the resolved oracles. A nil classifier means the oracle
// is disabled; the analyzer substitutes oracle.Disabled.
type loadedOracles struct {
	Text      oracle.TextClassifier
	Image     oracle.ImageClassifier
	TextMode  string
	ImageMode string

	closers []func()
}

func (o *loadedOracles) Close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
}

// loadOracles builds both oracles. An optional oracle that fails to load is
// disabled with a warning; a required one aborts startup.
func loadOracles(ctx context.Context, cfg config.OraclesConfig) (*loadedOracles, error) {
	out := &loadedOracles{}

	text, closeText, err := loadTextOracle(ctx, cfg.Text)
	mode, decideErr := oracle.DecideBackend("text", cfg.Text.Backend, cfg.Text.Required, err)
	if decideErr != nil {
		return nil, decideErr
	}
	logOracle("text", cfg.Text, mode, err)
	if mode != oracle.ModeDisabled {
		out.Text = text
		out.closers = append(out.closers, closeText)
	}
	out.TextMode = mode

	image, closeImage, err := loadImageOracle(ctx, cfg.Image)
	mode, decideErr = oracle.DecideBackend("image", cfg.Image.Backend, cfg.Image.Required, err)
	if decideErr != nil {
		out.Close()
		return nil, decideErr
	}
	logOracle("image", cfg.Image, mode, err)
	if mode != oracle.ModeDisabled {
		out.Image = image
		out.closers = append(out.closers, closeImage)
	}
	out.ImageMode = mode

	return out, nil
}

func loadTextOracle(ctx context.Context, cfg config.OracleConfig) (oracle.TextClassifier, func(), error) {
	switch backend(cfg) {
	case oracle.ModeONNX:
		m, err := onnx.LoadText(onnxOptions(cfg))
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	case oracle.ModeRemote:
		c, err := newRemote(ctx, "text", cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	default:
		return nil, nil, nil
	}
}

func loadImageOracle(ctx context.Context, cfg config.OracleConfig) (oracle.ImageClassifier, func(), error) {
	switch backend(cfg) {
	case oracle.ModeONNX:
		m, err := onnx.LoadImage(onnxOptions(cfg))
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	case oracle.ModeRemote:
		c, err := newRemote(ctx, "image", cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	default:
		return nil, nil, nil
	}
}

func backend(cfg config.OracleConfig) string {
	return strings.ToLower(strings.TrimSpace(cfg.Backend))
}

func onnxOptions(cfg config.OracleConfig) onnx.Options {
	return onnx.Options{
		ModelDir:     cfg.ModelDir,
		SeqLen:       cfg.SeqLen,
		ImageSize:    cfg.ImageSize,
		MaxSessions:  cfg.MaxSessions,
		IntraThreads: cfg.IntraThreads,
		InterThreads: cfg.InterThreads,
	}
}

// newRemote builds a sidecar client and probes its health once. An unhealthy
// sidecar is fatal only for a required oracle; otherwise the breaker keeps
// requests failing fast until it recovers.
func newRemote(ctx context.Context, name string, cfg config.OracleConfig) (*remote.Client, error) {
	c, err := remote.New(remote.Config{
		Name:    name,
		URL:     cfg.URL,
		Timeout: cfg.Timeout,
		APIKey:  cfg.APIKey(),
	})
	if err != nil {
		return nil, err
	}
	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := c.Health(hctx); err != nil {
		if cfg.Required {
			return nil, fmt.Errorf("%s oracle: %w", name, err)
		}
		logging.Warn().Str("oracle", name).Str("error", redact.String(err.Error())).Msg("sidecar not healthy yet")
	}
	return c, nil
}

func logOracle(name string, cfg config.OracleConfig, mode string, loadErr error) {
	if loadErr != nil {
		logging.Warn().
			Str("oracle", name).
			Str("backend", backend(cfg)).
			Str("error", redact.String(loadErr.Error())).
			Msg("oracle failed to load; its signal will be reported unusable")
		return
	}
	logging.Info().Str("oracle", name).Str("mode", mode).Msg("oracle ready")
}

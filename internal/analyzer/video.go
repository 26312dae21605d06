package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/metrics"
	"github.com/truthguard/truthguard/internal/signals"
	"github.com/truthguard/truthguard/internal/telemetry"
	"github.com/truthguard/truthguard/internal/video"
)

// AnalyzeVideo decodes sampled frames, scores each with the image pipeline
// and aggregates them. VideoTimeout bounds decoding and scoring together.
func (a *Analyzer) AnalyzeVideo(ctx context.Context, data []byte) analysis.Result {
	start := time.Now()
	deadline := start.Add(a.videoTimeout)
	ctx, span := a.tel.Start(ctx, "analyze.video", map[string]any{
		"modality": string(analysis.ModalityVideo),
		"bytes":    len(data),
		"sampling": string(a.sampling.Mode),
	})
	defer telemetry.End(span, nil)

	if a.decoder == nil {
		return finish(analysis.ErrorResult(analysis.ModalityVideo,
			analysis.Concern("Video analysis is not available on this server", analysis.SourceVideoDecoder)), start)
	}

	dctx, cancel := context.WithDeadline(ctx, deadline)
	frames, err := a.decoder.Decode(dctx, data, a.sampling)
	expired := errors.Is(dctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil && expired && ctx.Err() == nil {
		logging.Ctx(ctx).Info().Dur("timeout", a.videoTimeout).Msg("video: time budget expired while decoding")
		return finish(video.BudgetExpired(), start)
	}
	if err != nil {
		logging.Ctx(ctx).Info().Str("error", err.Error()).Msg("video rejected")
		return finish(analysis.ErrorResult(analysis.ModalityVideo,
			analysis.Concern("Invalid or unsupported video file", analysis.SourceVideoDecoder)), start)
	}

	remaining := time.Until(deadline)
	var res analysis.Result
	if remaining <= 0 {
		metrics.RecordFrames(0, 0, len(frames))
		res = video.Aggregate(nil, len(frames))
	} else {
		agg := video.NewAggregator(a.videoWorkers, remaining)
		res = agg.Run(ctx, frames, a.scoreFrame)
	}

	logging.Ctx(ctx).Debug().
		Int("frames", len(frames)).
		Str("verdict", string(res.Verdict)).
		Float64("probability", res.Probability).
		Msg("video analysed")
	return finish(res, start)
}

// scoreFrame is the video.FrameScorer backed by the image pipeline.
func (a *Analyzer) scoreFrame(ctx context.Context, f video.Frame) analysis.FrameResult {
	ctx, span := a.tel.Start(ctx, "analyze.frame", map[string]any{"frame": f.Index})

	out := a.scoreImage(ctx, f.Image)
	err := out.err
	if err == nil {
		// A frame whose oracle call was cut short by the time budget did not
		// finish scoring.
		err = ctx.Err()
	}
	telemetry.End(span, err)
	if err != nil {
		return analysis.FrameResult{Index: f.Index, Err: err}
	}

	// Temporal variance uses the unrounded oracle score.
	neural, _ := out.ext.Signals.Get(signals.NeuralClassifier)
	return analysis.FrameResult{
		Index:         f.Index,
		Probability:   out.fused.Probability,
		NeuralScore:   neural.Strength,
		NeuralUsable:  out.fused.NeuralUsable,
		ForensicScore: out.fused.Forensic,
	}
}

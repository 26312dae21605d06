package analyzer

import (
	"context"
	"image"
	"time"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/fusion"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/metrics"
	"github.com/truthguard/truthguard/internal/redact"
	"github.com/truthguard/truthguard/internal/signals"
	"github.com/truthguard/truthguard/internal/telemetry"
)

// imageOutcome is the per-image pipeline output shared by images and video
// frames.
type imageOutcome struct {
	ext   signals.ImageExtraction
	fused fusion.ImageFusion
	err   error
}

// AnalyzeImage decodes and scores one image. Undecodable bytes yield the
// load-error result without calling the oracle.
func (a *Analyzer) AnalyzeImage(ctx context.Context, data []byte) analysis.Result {
	start := time.Now()
	ctx, span := a.tel.Start(ctx, "analyze.image", map[string]any{
		"modality": string(analysis.ModalityImage),
		"bytes":    len(data),
		"mode":     string(a.mode),
	})

	img, err := signals.DecodeImage(data)
	if err != nil {
		telemetry.End(span, err)
		logging.Ctx(ctx).Info().Str("error", err.Error()).Msg("image rejected")
		return finish(imageLoadError(), start)
	}
	defer telemetry.End(span, nil)

	out := a.scoreImage(ctx, img)
	if out.err != nil {
		logging.Ctx(ctx).Error().Err(out.err).Msg("image fusion failed")
		res := analysis.ErrorResult(analysis.ModalityImage, analysis.Concern("Image signals could not be combined", analysis.SourceFusion))
		res.Signals = out.ext.Signals
		return finish(res, start)
	}

	neural, _ := out.ext.Signals.Get(signals.NeuralClassifier)
	evidence := fusion.ComposeEvidence(analysis.ModalityImage, out.ext.Signals, fusion.OracleOutput{
		Label: out.ext.NeuralLabel,
		Score: neural.Strength,
		OK:    neural.Usable,
	})
	res := analysis.Result{
		Modality:     analysis.ModalityImage,
		Verdict:      fusion.Classify(analysis.ModalityImage, out.fused.Probability),
		Probability:  out.fused.Probability,
		Signals:      out.ext.Signals,
		Evidence:     evidence,
		ModelSignals: map[string]float64{"forensic_score": out.fused.Forensic},
	}
	if out.fused.NeuralUsable {
		res.ModelSignals["neural_score"] = out.fused.Neural
	}

	logging.Ctx(ctx).Debug().
		Str("verdict", string(res.Verdict)).
		Float64("probability", res.Probability).
		Str("neural_label", out.ext.NeuralLabel).
		Msg("image analysed")
	return finish(res, start)
}

// scoreImage runs the oracle once, extracts signals and fuses them.
func (a *Analyzer) scoreImage(ctx context.Context, img image.Image) imageOutcome {
	var out imageOutcome

	octx, span := a.tel.Start(ctx, "oracle.image", nil)
	t0 := time.Now()
	labels, oerr := a.image.ClassifyImage(octx, img)
	metrics.RecordOracle("image", time.Since(t0), oerr)
	telemetry.End(span, oerr)
	if oerr != nil {
		logging.Ctx(ctx).Warn().Str("error", redact.String(oerr.Error())).Msg("image oracle unavailable; degrading")
	}

	out.ext = signals.ExtractImage(img, labels, oerr, a.mode)
	out.fused, out.err = fusion.FuseImage(out.ext.Signals, a.mode)
	return out
}

func imageLoadError() analysis.Result {
	return analysis.ErrorResult(analysis.ModalityImage,
		analysis.Concern("Invalid or corrupted image file", analysis.SourceImageLoader))
}

package analyzer

import (
	"context"
	"time"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/fusion"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/metrics"
	"github.com/truthguard/truthguard/internal/redact"
	"github.com/truthguard/truthguard/internal/signals"
	"github.com/truthguard/truthguard/internal/telemetry"
)

const previewChars = 80

// AnalyzeText scores a text for authenticity. Empty input short-circuits to
// a fixed low-confidence result without consulting the oracle.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string) analysis.Result {
	start := time.Now()
	ctx, span := a.tel.Start(ctx, "analyze.text", map[string]any{
		"modality": string(analysis.ModalityText),
		"chars":    len(text),
	})
	defer telemetry.End(span, nil)

	log := logging.Ctx(ctx)
	if log.Debug().Enabled() {
		log.Debug().Str("preview", redact.Preview(text, previewChars)).Msg("analyze text")
	}

	if _, err := signals.ExtractText(text, signals.TextOracleOutput{}); signals.IsEmpty(err) {
		return finish(insufficientText(), start)
	}

	out := a.classifyText(ctx, text)
	sigs, err := signals.ExtractText(text, out)
	if err != nil {
		return finish(insufficientText(), start)
	}

	fused, err := fusion.FuseText(sigs)
	if err != nil {
		log.Error().Err(err).Msg("text fusion failed")
		res := analysis.ErrorResult(analysis.ModalityText, analysis.Concern("Text signals could not be combined", analysis.SourceFusion))
		res.Signals = sigs
		return finish(res, start)
	}

	evidence := fusion.ComposeEvidence(analysis.ModalityText, sigs, fusion.OracleOutput{
		Label: out.Label,
		Score: out.Score,
		OK:    out.Err == nil,
	})
	res := analysis.Result{
		Modality:     analysis.ModalityText,
		Verdict:      fusion.Classify(analysis.ModalityText, fused.Probability),
		Probability:  fused.Probability,
		Signals:      sigs,
		Evidence:     evidence,
		ModelSignals: map[string]float64{},
	}
	if out.Err == nil {
		res.ModelSignals["oracle_score"] = out.Score
	}
	if fact, ok := a.facts.Closest(text); ok {
		res.ClosestFact = fact
	}

	log.Debug().
		Str("verdict", string(res.Verdict)).
		Float64("confidence", res.Probability).
		Strs("dropped", fused.Dropped).
		Msg("text analysed")
	return finish(res, start)
}

// classifyText calls the text oracle exactly once.
func (a *Analyzer) classifyText(ctx context.Context, text string) signals.TextOracleOutput {
	ctx, span := a.tel.Start(ctx, "oracle.text", nil)
	t0 := time.Now()
	l, err := a.text.ClassifyText(ctx, text)
	metrics.RecordOracle("text", time.Since(t0), err)
	telemetry.End(span, err)

	if err != nil {
		logging.Ctx(ctx).Warn().Str("error", redact.String(err.Error())).Msg("text oracle unavailable; degrading")
		return signals.TextOracleOutput{Err: err}
	}
	return signals.TextOracleOutput{Label: l.Name, Score: l.Score}
}

func insufficientText() analysis.Result {
	return analysis.Result{
		Modality:     analysis.ModalityText,
		Verdict:      analysis.VerdictSuspicious,
		Probability:  0,
		Signals:      analysis.Signals{},
		Evidence:     []analysis.EvidenceItem{analysis.Concern("Empty or invalid text input", analysis.SourceInputValidator)},
		ModelSignals: map[string]float64{},
	}
}

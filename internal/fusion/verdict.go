package fusion

import (
	"math"

	"github.com/truthguard/truthguard/internal/analysis"
)

// Band maps every score at or above Min to Verdict.
type Band struct {
	Min     float64
	Verdict analysis.Verdict
}

// Bands are ordered highest first.
var (
	SuspicionBands = []Band{
		{Min: 0.75, Verdict: analysis.VerdictLikelyGenerated},
		{Min: 0.45, Verdict: analysis.VerdictSuspicious},
		{Min: 0, Verdict: analysis.VerdictLikelyAuthentic},
	}

	// TextBands are on the percent scale.
	TextBands = []Band{
		{Min: 75, Verdict: analysis.VerdictLikelyAuthentic},
		{Min: 50, Verdict: analysis.VerdictSuspicious},
		{Min: 0, Verdict: analysis.VerdictLikelyManipulated},
	}
)

// Classify maps a fused probability to a verdict. Text is banded on the
// whole percent that is rendered, so the verdict always agrees with the
// reported confidence.
func Classify(m analysis.Modality, p float64) analysis.Verdict {
	if math.IsNaN(p) {
		return analysis.VerdictError
	}
	if m == analysis.ModalityText {
		return band(TextBands, math.Round(analysis.Clamp01(p)*100))
	}
	return band(SuspicionBands, analysis.Clamp01(p))
}

func band(bands []Band, v float64) analysis.Verdict {
	for _, b := range bands {
		if v >= b.Min {
			return b.Verdict
		}
	}
	return bands[len(bands)-1].Verdict
}

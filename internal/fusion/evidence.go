package fusion

import (
	"fmt"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/signals"
)

// Evidence sources.
const (
	SourceLinguistic  = "Linguistic Analyzer"
	SourceAttribution = "Source Attribution Checker"
	SourceStatistics  = "Statistical Evidence Detector"
	SourceTextModel   = "Text Classifier"
	SourceImageModel  = "AI Image Classifier"
	SourceForensic    = "Forensic Analyzer"
	SourceEdge        = "Edge Consistency Analyzer"
	SourceTexture     = "Texture Analyzer"
	SourceResolution  = "Resolution Pattern Detector"
	SourceFrames      = "Frame Analyzer"
	SourceTemporal    = "Temporal Analyzer"
)

// Materiality thresholds.
const (
	TextThreshold   = 0.5
	ImageThreshold  = 0.6
	NeuralThreshold = 0.5
	VideoThreshold  = 0.5
)

type rule struct {
	source string
	high   string // negative+high concern, positive+high support
	low    string // positive+low concern; empty means silent
	// unusable describes a failed degradable source.
	unusable string
}

var rules = map[string]rule{
	signals.EmotionalLanguage: {
		source: SourceLinguistic,
		high:   "Sensational or emotionally charged language detected",
	},
	signals.SourcePresence: {
		source: SourceAttribution,
		high:   "Content attributes claims to identifiable sources",
		low:    "No source attribution found",
	},
	signals.NumericEvidence: {
		source: SourceStatistics,
		high:   "Contains specific statistics or figures",
		low:    "No verifiable statistics or figures",
	},
	signals.ModelConsistency: {
		source:   SourceTextModel,
		unusable: "Text classifier unavailable; confidence computed from linguistic signals only",
	},
	signals.NeuralClassifier: {
		source:   SourceImageModel,
		unusable: "Neural classifier unavailable; probability computed from forensic signals only",
	},
	signals.ColorDistribution: {
		source: SourceForensic,
		high:   "Abnormal color variance detected",
	},
	signals.EdgeConsistency: {
		source: SourceEdge,
		high:   "Edge patterns inconsistent with camera optics",
	},
	signals.TextureForensics: {
		source: SourceTexture,
		high:   "Texture unusually smooth or flat for a camera capture",
	},
	signals.ResolutionPattern: {
		source: SourceResolution,
		high:   "Resolution matches common AI generation grids",
	},
	signals.FrameScore: {
		source: SourceFrames,
		high:   "Sampled frames score high for manipulation on average",
	},
	signals.TemporalConsistency: {
		source:   SourceTemporal,
		high:     "Classifier output fluctuates sharply between frames",
		unusable: "Temporal analysis unavailable; no frame produced a usable classifier score",
	},
}

// OracleOutput is what the neural oracle reported, for the oracle item.
type OracleOutput struct {
	Label string
	Score float64
	OK    bool
}

// ComposeEvidence derives evidence from sigs in extractor order. Neutral
// signals stay silent; an unusable degradable signal yields one concern
// naming its source. oracle adds the per-modality classifier item.
func ComposeEvidence(m analysis.Modality, sigs analysis.Signals, oracle OracleOutput) []analysis.EvidenceItem {
	threshold := thresholdFor(m)
	out := make([]analysis.EvidenceItem, 0, len(sigs)+1)

	for _, s := range sigs {
		r, ok := rules[s.Name]
		if !ok {
			continue
		}
		if !s.Usable {
			if r.unusable != "" {
				out = append(out, analysis.Concern(r.unusable, r.source))
			}
			continue
		}

		switch s.Name {
		case signals.NeuralClassifier:
			out = append(out, neuralItem(oracle.Label, s.Strength))
			continue
		case signals.ModelConsistency:
			if oracle.OK {
				out = append(out, analysis.Note(
					fmt.Sprintf("Transformer model classified text as %s with confidence %d%%", oracle.Label, int(analysis.Round(oracle.Score*100, 0))),
					r.source,
				))
			}
			continue
		}

		switch s.Impact {
		case analysis.ImpactNegative:
			if s.Strength > threshold && r.high != "" {
				out = append(out, analysis.Concern(r.high, r.source))
			}
		case analysis.ImpactPositive:
			if s.Strength > threshold && r.high != "" {
				out = append(out, analysis.Support(r.high, r.source))
			} else if s.Strength < 1-threshold && r.low != "" {
				out = append(out, analysis.Concern(r.low, r.source))
			}
		}
	}
	return out
}

func neuralItem(label string, score float64) analysis.EvidenceItem {
	if label == "" {
		label = "unknown"
	}
	desc := fmt.Sprintf("Neural classifier prediction: %s", label)
	if score > NeuralThreshold {
		return analysis.Concern(desc, SourceImageModel)
	}
	return analysis.Note(desc, SourceImageModel)
}

func thresholdFor(m analysis.Modality) float64 {
	switch m {
	case analysis.ModalityText:
		return TextThreshold
	case analysis.ModalityVideo:
		return VideoThreshold
	default:
		return ImageThreshold
	}
}

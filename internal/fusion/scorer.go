package fusion

import (
	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/signals"
)

// Fused is a fused score plus the degradable signals left out of it.
type Fused struct {
	Probability float64
	Dropped     []string
}

// FuseText combines the text signals into an authenticity confidence.
func FuseText(sigs analysis.Signals) (Fused, error) {
	p, dropped, err := TextTable.Score(sigs)
	if err != nil {
		return Fused{}, err
	}
	return Fused{Probability: p, Dropped: dropped}, nil
}

// ImageFusion carries the image sub-scores alongside the final probability.
type ImageFusion struct {
	Fused
	Neural       float64
	NeuralUsable bool
	Forensic     float64
}

// FuseImage combines image signals. The forensic sub-score comes from the
// table matching mode; neural and forensic are rounded to two decimals
// before the final combination, and the final is rounded again.
func FuseImage(sigs analysis.Signals, mode signals.ForensicMode) (ImageFusion, error) {
	ft := GradientForensicTable
	if mode == signals.ForensicTexture {
		ft = TextureForensicTable
	}
	forensic, _, err := ft.Score(sigs)
	if err != nil {
		return ImageFusion{}, err
	}

	out := ImageFusion{Forensic: analysis.Round(forensic, 2)}
	stage := analysis.Signals{analysis.NewSignal(signals.ForensicScore, out.Forensic, analysis.ImpactNegative)}
	if n, ok := sigs.Get(signals.NeuralClassifier); ok && n.Usable {
		out.Neural = analysis.Round(n.Strength, 2)
		out.NeuralUsable = true
		stage = append(stage, analysis.NewSignal(signals.NeuralClassifier, out.Neural, analysis.ImpactNegative))
	}

	p, dropped, err := ImageTable.Score(stage)
	if err != nil {
		return ImageFusion{}, err
	}
	out.Probability = analysis.Round(p, 2)
	out.Dropped = dropped
	return out, nil
}

// FuseVideo combines the mean frame score with the temporal signal, rounded
// to two decimals.
func FuseVideo(sigs analysis.Signals) (Fused, error) {
	p, dropped, err := VideoTable.Score(sigs)
	if err != nil {
		return Fused{}, err
	}
	return Fused{Probability: analysis.Round(p, 2), Dropped: dropped}, nil
}

// Package fusion reduces signals to a probability, a verdict and evidence.
package fusion

import (
	"errors"
	"fmt"
	"math"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/signals"
)

// TableVersion names the canonical weighting scheme. Bump it whenever a
// weight, threshold or band changes.
const TableVersion = "2024.1-evidence-rich"

const weightTolerance = 1e-6

var (
	// ErrUnusableSignal is returned when a required signal is missing or
	// unusable.
	ErrUnusableSignal = errors.New("required signal unusable")
	// ErrNoUsableSignals is returned when every weighted signal is unusable.
	ErrNoUsableSignals = errors.New("no usable signals")
)

// Term is one weighted signal in a linear model.
type Term struct {
	Signal string
	Weight float64
	// Invert scores 1-strength, for signals where high means less authentic
	// in an authenticity-oriented model.
	Invert bool
	// Degradable terms are dropped and the remaining weights renormalised
	// when their signal is unusable. Other terms are required.
	Degradable bool
}

// Table is a named linear weighting scheme.
type Table struct {
	Name  string
	Terms []Term
}

var (
	TextTable = Table{
		Name: "text",
		Terms: []Term{
			{Signal: signals.EmotionalLanguage, Weight: 0.35, Invert: true},
			{Signal: signals.SourcePresence, Weight: 0.35},
			{Signal: signals.NumericEvidence, Weight: 0.20},
			{Signal: signals.ModelConsistency, Weight: 0.10, Degradable: true},
		},
	}

	GradientForensicTable = Table{
		Name: "image_forensic_gradient",
		Terms: []Term{
			{Signal: signals.ColorDistribution, Weight: 0.4},
			{Signal: signals.EdgeConsistency, Weight: 0.4},
			{Signal: signals.ResolutionPattern, Weight: 0.2},
		},
	}

	TextureForensicTable = Table{
		Name: "image_forensic_texture",
		Terms: []Term{
			{Signal: signals.TextureForensics, Weight: 0.8},
			{Signal: signals.ResolutionPattern, Weight: 0.2},
		},
	}

	ImageTable = Table{
		Name: "image",
		Terms: []Term{
			{Signal: signals.NeuralClassifier, Weight: 0.55, Degradable: true},
			{Signal: signals.ForensicScore, Weight: 0.45},
		},
	}

	VideoTable = Table{
		Name: "video",
		Terms: []Term{
			{Signal: signals.FrameScore, Weight: 0.7},
			{Signal: signals.TemporalConsistency, Weight: 0.3, Degradable: true},
		},
	}
)

// Tables lists every table in use.
func Tables() []Table {
	return []Table{TextTable, GradientForensicTable, TextureForensicTable, ImageTable, VideoTable}
}

func init() {
	for _, t := range Tables() {
		if err := t.Validate(); err != nil {
			panic(err)
		}
	}
}

// Validate checks that weights are non-negative, signals unique and the
// weights sum to 1.
func (t Table) Validate() error {
	if len(t.Terms) == 0 {
		return fmt.Errorf("fusion table %s: no terms", t.Name)
	}
	seen := make(map[string]bool, len(t.Terms))
	sum := 0.0
	for _, term := range t.Terms {
		if term.Weight < 0 {
			return fmt.Errorf("fusion table %s: negative weight for %s", t.Name, term.Signal)
		}
		if seen[term.Signal] {
			return fmt.Errorf("fusion table %s: duplicate signal %s", t.Name, term.Signal)
		}
		seen[term.Signal] = true
		sum += term.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("fusion table %s: weights sum to %v, want 1", t.Name, sum)
	}
	return nil
}

// Score computes the weighted combination of sigs. Unusable degradable terms
// are dropped and reported; the remaining weights are renormalised.
func (t Table) Score(sigs analysis.Signals) (float64, []string, error) {
	var (
		total   float64
		weights float64
		dropped []string
	)
	for _, term := range t.Terms {
		s, ok := sigs.Get(term.Signal)
		if !ok || !s.Usable {
			if !term.Degradable {
				return 0, nil, fmt.Errorf("%w: %s", ErrUnusableSignal, term.Signal)
			}
			dropped = append(dropped, term.Signal)
			continue
		}
		v := s.Strength
		if term.Invert {
			v = 1 - v
		}
		total += term.Weight * v
		weights += term.Weight
	}
	if weights == 0 {
		return 0, dropped, ErrNoUsableSignals
	}
	return analysis.Clamp01(total / weights), dropped, nil
}

package analysis

import "math"

// Impact states which way a high signal strength pushes the verdict.
type Impact string

const (
	ImpactPositive Impact = "positive" // more likely authentic
	ImpactNegative Impact = "negative" // more likely manipulated
	ImpactNeutral  Impact = "neutral"  // informational only
)

// Signal is one normalized indicator produced by an extractor.
type Signal struct {
	Name     string  `json:"signal"`
	Strength float64 `json:"strength"`
	Impact   Impact  `json:"impact"`
	// Usable is false when the producing source failed. Strength must not be
	// read in that case.
	Usable bool `json:"-"`
}

// NewSignal builds a usable signal with strength clamped to [0,1].
func NewSignal(name string, strength float64, impact Impact) Signal {
	return Signal{
		Name:     name,
		Strength: Clamp01(strength),
		Impact:   impact,
		Usable:   true,
	}
}

// Unusable builds the explicit marker for a signal whose source failed.
func Unusable(name string, impact Impact) Signal {
	return Signal{Name: name, Impact: impact}
}

// Signals is an ordered signal set in extractor invocation order.
type Signals []Signal

// Get returns the named signal.
func (s Signals) Get(name string) (Signal, bool) {
	for _, sig := range s {
		if sig.Name == name {
			return sig, true
		}
	}
	return Signal{}, false
}

// Usable returns only the signals whose source succeeded.
func (s Signals) Usable() Signals {
	out := make(Signals, 0, len(s))
	for _, sig := range s {
		if sig.Usable {
			out = append(out, sig)
		}
	}
	return out
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Package signals turns raw content into normalized, bounded signals.
package signals

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/truthguard/truthguard/internal/analysis"
)

// Text signal names, in extractor order.
const (
	EmotionalLanguage = "emotional_language"
	SourcePresence    = "source_presence"
	NumericEvidence   = "numeric_evidence"
	ModelConsistency  = "model_consistency"
)

// ErrEmptyInput is returned for empty or whitespace-only text.
var ErrEmptyInput = fmt.Errorf("%w: empty text", analysis.ErrInput)

var sensationalKeywords = []string{
	"shocking",
	"breaking",
	"guaranteed",
	"miracle",
	"unbelievable",
	"you won't believe",
	"secret",
	"exposed",
	"urgent",
	"100%",
	"must see",
	"cover-up",
}

var attributionPhrases = []string{
	"according to",
	"reported by",
	"official",
	"study",
	"research",
	"sources say",
	"confirmed by",
	"published in",
}

var (
	percentRe = regexp.MustCompile(`\d+(\.\d+)?\s*%`)
	countRe   = regexp.MustCompile(`(?i)\d[\d,]*\s+(people|cases|reports)`)
)

// TextOracleOutput is the text classifier result fed into extraction. Err
// set means the oracle failed and model_consistency is unusable.
type TextOracleOutput struct {
	Label string
	Score float64
	Err   error
}

// ExtractText produces the four text signals. It is a pure function of the
// text and the oracle output.
func ExtractText(text string, out TextOracleOutput) (analysis.Signals, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	lower := strings.ToLower(text)

	hits := 0
	for _, kw := range sensationalKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}

	source := 0.0
	for _, p := range attributionPhrases {
		if strings.Contains(lower, p) {
			source = 1
			break
		}
	}

	numeric := 0.0
	if percentRe.MatchString(text) || countRe.MatchString(text) {
		numeric = 1
	}

	sigs := analysis.Signals{
		analysis.NewSignal(EmotionalLanguage, float64(hits)/3, analysis.ImpactNegative),
		analysis.NewSignal(SourcePresence, source, analysis.ImpactPositive),
		analysis.NewSignal(NumericEvidence, numeric, analysis.ImpactPositive),
	}
	if out.Err != nil {
		sigs = append(sigs, analysis.Unusable(ModelConsistency, analysis.ImpactNeutral))
	} else {
		sigs = append(sigs, analysis.NewSignal(ModelConsistency, Consistency(out.Label, out.Score), analysis.ImpactNeutral))
	}
	return sigs, nil
}

// Consistency maps a sentiment-style label/score pair onto [0,1] where low
// values lean toward manipulation.
func Consistency(label string, score float64) float64 {
	if strings.EqualFold(strings.TrimSpace(label), "NEGATIVE") {
		return analysis.Clamp01(1 - score)
	}
	return analysis.Clamp01(score)
}

// IsEmpty reports whether err is the empty-input sentinel.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmptyInput)
}

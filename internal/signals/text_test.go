package signals

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthguard/truthguard/internal/analysis"
)

func TestExtractTextEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := ExtractText(in, TextOracleOutput{Label: "POSITIVE", Score: 0.9})
		require.Error(t, err)
		assert.True(t, IsEmpty(err))
		assert.ErrorIs(t, err, analysis.ErrInput)
	}
}

func TestExtractTextSignals(t *testing.T) {
	text := "BREAKING: shocking miracle cure! According to officials, 45% of 1,200 people recovered."
	sigs, err := ExtractText(text, TextOracleOutput{Label: "NEGATIVE", Score: 0.8})
	require.NoError(t, err)
	require.Len(t, sigs, 4)

	names := []string{EmotionalLanguage, SourcePresence, NumericEvidence, ModelConsistency}
	for i, n := range names {
		assert.Equal(t, n, sigs[i].Name, "signal order")
	}

	assert.Equal(t, 1.0, sigs[0].Strength, "three keywords saturate emotional_language")
	assert.Equal(t, analysis.ImpactNegative, sigs[0].Impact)
	assert.Equal(t, 1.0, sigs[1].Strength)
	assert.Equal(t, 1.0, sigs[2].Strength)
	assert.InDelta(t, 0.2, sigs[3].Strength, 1e-9)
	assert.Equal(t, analysis.ImpactNeutral, sigs[3].Impact)
}

func TestExtractTextPartialKeywords(t *testing.T) {
	sigs, err := ExtractText("an urgent update", TextOracleOutput{Label: "POSITIVE", Score: 0.6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, sigs[0].Strength, 1e-9)
	assert.Equal(t, 0.0, sigs[1].Strength)
	assert.Equal(t, 0.0, sigs[2].Strength)
	assert.InDelta(t, 0.6, sigs[3].Strength, 1e-9)
}

func TestExtractTextNumericPatterns(t *testing.T) {
	cases := map[string]float64{
		"rates rose 3.5 %":        1,
		"over 300 cases reported": 1,
		"12 Reports were filed":   1,
		"twelve people came":      0,
		"room 101 is open":        0,
	}
	for text, want := range cases {
		sigs, err := ExtractText(text, TextOracleOutput{Label: "POSITIVE", Score: 0.5})
		require.NoError(t, err)
		s, ok := sigs.Get(NumericEvidence)
		require.True(t, ok)
		assert.Equal(t, want, s.Strength, text)
	}
}

func TestExtractTextOracleFailureMarksUnusable(t *testing.T) {
	sigs, err := ExtractText("plain text", TextOracleOutput{Err: errors.New("sidecar down")})
	require.NoError(t, err)
	s, ok := sigs.Get(ModelConsistency)
	require.True(t, ok)
	assert.False(t, s.Usable)
	assert.Len(t, sigs.Usable(), 3)
}

func TestExtractTextIsPure(t *testing.T) {
	text := "Reported by the agency: 12% of reports were shocking."
	out := TextOracleOutput{Label: "POSITIVE", Score: 0.731}
	a, err := ExtractText(text, out)
	require.NoError(t, err)
	b, err := ExtractText(text, out)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConsistency(t *testing.T) {
	assert.InDelta(t, 0.9, Consistency("POSITIVE", 0.9), 1e-9)
	assert.InDelta(t, 0.1, Consistency("negative", 0.9), 1e-9)
	assert.Equal(t, 1.0, Consistency("LABEL_1", 1.4))
}

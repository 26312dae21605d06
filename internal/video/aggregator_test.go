package video

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/signals"
)

func framesWithScores(scores ...float64) []analysis.FrameResult {
	out := make([]analysis.FrameResult, len(scores))
	for i, s := range scores {
		out[i] = analysis.FrameResult{
			Index:         i,
			Probability:   s,
			NeuralScore:   s,
			NeuralUsable:  true,
			ForensicScore: 0.2,
		}
	}
	return out
}

func TestAggregateTemporalScenario(t *testing.T) {
	spiky := Aggregate(framesWithScores(0.1, 0.1, 0.9, 0.1), 0)
	flat := Aggregate(framesWithScores(0.3, 0.3, 0.3, 0.3), 0)

	assert.InDelta(t, 0.3, spiky.ModelSignals["avg_score"], 1e-9)
	assert.InDelta(t, 0.3, flat.ModelSignals["avg_score"], 1e-9)

	assert.InDelta(t, 0.12, spiky.ModelSignals["variance"], 1e-9)
	assert.InDelta(t, 0.6, spiky.ModelSignals["temporal_signal"], 1e-9)
	assert.InDelta(t, 0.39, spiky.Probability, 1e-9)

	assert.InDelta(t, 0.0, flat.ModelSignals["variance"], 1e-9)
	assert.InDelta(t, 0.21, flat.Probability, 1e-9)

	assert.Greater(t, spiky.Probability, flat.Probability)
	assert.Equal(t, 1, spiky.Video.SuspiciousFrames)
	assert.Equal(t, 0, flat.Video.SuspiciousFrames)
	assert.Equal(t, analysis.VerdictLikelyAuthentic, spiky.Verdict)
}

func TestAggregateSuspiciousFramesCount(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		want   int
	}{
		{"none", []float64{0.1, 0.5, 0.2}, 0},
		{"boundary excluded", []float64{0.5, 0.5}, 0},
		{"some", []float64{0.51, 0.9, 0.2, 0.7}, 3},
		{"all", []float64{0.8, 0.8}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Aggregate(framesWithScores(tc.scores...), 0)
			require.NotNil(t, res.Video)
			assert.Equal(t, tc.want, res.Video.SuspiciousFrames)
			assert.Equal(t, len(tc.scores), res.Video.FramesAnalyzed)
		})
	}
}

func TestAggregateZeroFrames(t *testing.T) {
	res := Aggregate(nil, 0)

	assert.Equal(t, analysis.VerdictError, res.Verdict)
	assert.Zero(t, res.Probability)
	require.Len(t, res.Evidence, 1)
	assert.Equal(t, analysis.EvidenceConcern, res.Evidence[0].Type)
	assert.Equal(t, analysis.SourceVideoDecoder, res.Evidence[0].Source)
}

func TestAggregateAllFramesFailed(t *testing.T) {
	results := []analysis.FrameResult{
		{Index: 0, Err: analysis.ErrDecode},
		{Index: 1, Err: analysis.ErrDecode},
	}
	res := Aggregate(results, 0)

	assert.Equal(t, analysis.VerdictError, res.Verdict)
	assert.Zero(t, res.Probability)
	assert.Equal(t, 2, res.Video.FramesSkipped)
	assert.Equal(t, analysis.SourceVideoDecoder, res.Evidence[0].Source)
}

func TestAggregateSkipsFailedFramesInsteadOfZeroing(t *testing.T) {
	results := framesWithScores(0.8, 0.8)
	results = append(results, analysis.FrameResult{Index: 2, Err: errors.New("boom")})

	res := Aggregate(results, 0)

	assert.InDelta(t, 0.8, res.ModelSignals["avg_score"], 1e-9)
	assert.Equal(t, 2, res.Video.FramesAnalyzed)
	assert.Equal(t, 1, res.Video.FramesSkipped)
}

func TestAggregateWithoutNeuralFallsBackToAverage(t *testing.T) {
	results := framesWithScores(0.6, 0.7)
	for i := range results {
		results[i].NeuralUsable = false
	}
	res := Aggregate(results, 0)

	assert.InDelta(t, 0.65, res.Probability, 1e-9)
	temporal, ok := res.Signals.Get(signals.TemporalConsistency)
	require.True(t, ok)
	assert.False(t, temporal.Usable)
	_, hasVariance := res.ModelSignals["variance"]
	assert.False(t, hasVariance)
}

func solid() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 4, 4))
}

func TestAggregatorTimeoutYieldsPartialResult(t *testing.T) {
	frames := make([]Frame, 4)
	for i := range frames {
		frames[i] = Frame{Index: i, Image: solid()}
	}
	score := func(ctx context.Context, f Frame) analysis.FrameResult {
		if f.Index < 2 {
			return analysis.FrameResult{Probability: 0.9, NeuralScore: 0.9, NeuralUsable: true}
		}
		<-ctx.Done()
		return analysis.FrameResult{Err: ctx.Err()}
	}

	agg := NewAggregator(2, 50*time.Millisecond)
	res := agg.Run(context.Background(), frames, score)

	require.NotNil(t, res.Video)
	assert.True(t, res.Video.Partial)
	assert.Equal(t, 2, res.Video.FramesAnalyzed)
	assert.Equal(t, 2, res.Video.FramesSkipped)
	assert.NotEqual(t, analysis.VerdictError, res.Verdict)

	last := res.Evidence[len(res.Evidence)-1]
	assert.Equal(t, analysis.EvidenceNeutral, last.Type)
	assert.Equal(t, analysis.SourceFrameScheduler, last.Source)
}

func TestAggregatorRecordsDecodeErrorsAsSkipped(t *testing.T) {
	frames := []Frame{
		{Index: 0, Image: solid()},
		{Index: 1, Err: ErrMalformedFrame},
	}
	var calls int
	score := func(ctx context.Context, f Frame) analysis.FrameResult {
		calls++
		return analysis.FrameResult{Probability: 0.4, NeuralScore: 0.4, NeuralUsable: true}
	}

	res := NewAggregator(1, time.Second).Run(context.Background(), frames, score)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Video.FramesAnalyzed)
	assert.Equal(t, 1, res.Video.FramesSkipped)
	assert.False(t, res.Video.Partial)
}

func TestAggregatorPreservesFrameOrder(t *testing.T) {
	frames := make([]Frame, 8)
	for i := range frames {
		frames[i] = Frame{Index: i, Image: solid()}
	}
	score := func(ctx context.Context, f Frame) analysis.FrameResult {
		time.Sleep(time.Duration(8-f.Index) * time.Millisecond)
		return analysis.FrameResult{Probability: float64(f.Index) / 10}
	}

	results, timedOut := NewAggregator(4, time.Second).Score(context.Background(), frames, score)

	require.Zero(t, timedOut)
	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

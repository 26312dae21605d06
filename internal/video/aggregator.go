package video

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/fusion"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/metrics"
	"github.com/truthguard/truthguard/internal/signals"
)

const (
	// suspiciousFrame is the per-frame probability above which a frame
	// counts as suspicious.
	suspiciousFrame = 0.5
	varianceScale   = 5.0

	DefaultWorkers = 4
	DefaultTimeout = 60 * time.Second
)

// FrameScorer runs the image pipeline on one decoded frame. It must honour
// ctx and report failures through FrameResult.Err.
type FrameScorer func(ctx context.Context, f Frame) analysis.FrameResult

// Aggregator scores frames over a bounded worker pool and reduces them to a
// video result.
type Aggregator struct {
	Workers int
	Timeout time.Duration
}

func NewAggregator(workers int, timeout time.Duration) *Aggregator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{Workers: workers, Timeout: timeout}
}

// Run scores every frame and aggregates the outcome. Frames still pending
// when the timeout expires are reported as timed out and the result is
// marked partial.
func (a *Aggregator) Run(ctx context.Context, frames []Frame, score FrameScorer) analysis.Result {
	results, timedOut := a.Score(ctx, frames, score)

	scored := 0
	for _, r := range results {
		if r.Scored() {
			scored++
		}
	}
	metrics.RecordFrames(scored, len(results)-scored, timedOut)
	if timedOut > 0 {
		logging.Ctx(ctx).Warn().
			Int("frames", len(frames)).
			Int("timed_out", timedOut).
			Dur("timeout", a.Timeout).
			Msg("video: frame budget expired, aggregating partial coverage")
	}
	return Aggregate(results, timedOut)
}

// Score fans frames out to score and collects finished results in frame
// order. timedOut counts frames that never finished.
func (a *Aggregator) Score(ctx context.Context, frames []Frame, score FrameScorer) ([]analysis.FrameResult, int) {
	workers := a.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slots := make([]analysis.FrameResult, len(frames))
	done := make([]bool, len(frames))
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(tctx)

	for i, f := range frames {
		if f.Err != nil || f.Image == nil {
			err := f.Err
			if err == nil {
				err = fmt.Errorf("%w: empty frame", analysis.ErrDecode)
			}
			slots[i] = analysis.FrameResult{Index: f.Index, Err: err}
			done[i] = true
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		i, f := i, f
		g.Go(func() error {
			defer sem.Release(1)
			r := score(gctx, f)
			if r.Err != nil && gctx.Err() != nil {
				return nil
			}
			r.Index = f.Index
			slots[i] = r
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]analysis.FrameResult, 0, len(frames))
	timedOut := 0
	for i := range frames {
		if !done[i] {
			timedOut++
			continue
		}
		out = append(out, slots[i])
	}
	return out, timedOut
}

// Aggregate reduces frame results to the video result. Failed frames are
// counted as skipped; they never contribute a zero score.
func Aggregate(results []analysis.FrameResult, timedOut int) analysis.Result {
	var (
		scored    []analysis.FrameResult
		failed    int
		neural    []float64
		sumProb   float64
		sumForens float64
	)
	for _, r := range results {
		if !r.Scored() {
			failed++
			continue
		}
		scored = append(scored, r)
		sumProb += r.Probability
		sumForens += r.ForensicScore
		if r.NeuralUsable {
			neural = append(neural, r.NeuralScore)
		}
	}

	summary := &analysis.VideoSummary{
		FramesAnalyzed: len(scored),
		FramesSkipped:  failed + timedOut,
		Partial:        timedOut > 0,
	}

	if len(scored) == 0 {
		res := analysis.ErrorResult(analysis.ModalityVideo, analysis.Concern(noFramesReason(len(results), failed, timedOut), analysis.SourceVideoDecoder))
		res.Video = summary
		return res
	}

	n := float64(len(scored))
	avg := sumProb / n
	modelSignals := map[string]float64{
		"avg_score":    avg,
		"avg_forensic": sumForens / n,
	}

	temporal := analysis.Unusable(signals.TemporalConsistency, analysis.ImpactNegative)
	if len(neural) > 0 {
		mean, variance := meanVariance(neural)
		t := math.Min(variance*varianceScale, 1)
		temporal = analysis.NewSignal(signals.TemporalConsistency, t, analysis.ImpactNegative)
		modelSignals["avg_neural"] = mean
		modelSignals["variance"] = variance
		modelSignals["temporal_signal"] = t
	}

	sigs := analysis.Signals{
		analysis.NewSignal(signals.FrameScore, avg, analysis.ImpactNegative),
		temporal,
	}
	fused, err := fusion.FuseVideo(sigs)
	if err != nil {
		res := analysis.ErrorResult(analysis.ModalityVideo, analysis.Concern("Frame scores could not be fused", analysis.SourceFusion))
		res.Video = summary
		return res
	}

	for _, r := range scored {
		if r.Probability > suspiciousFrame {
			summary.SuspiciousFrames++
		}
	}

	evidence := fusion.ComposeEvidence(analysis.ModalityVideo, sigs, fusion.OracleOutput{})
	if summary.SuspiciousFrames > 0 {
		evidence = append(evidence, analysis.Concern(
			fmt.Sprintf("%d of %d analyzed frames exceeded %.1f manipulation probability", summary.SuspiciousFrames, len(scored), suspiciousFrame),
			fusion.SourceFrames,
		))
	}
	if failed > 0 {
		evidence = append(evidence, analysis.Note(
			fmt.Sprintf("%d frames could not be decoded or analyzed and were skipped", failed),
			analysis.SourceVideoDecoder,
		))
	}
	if timedOut > 0 {
		evidence = append(evidence, analysis.Note(
			fmt.Sprintf("Time budget expired; %d of %d frames were analyzed", len(scored), len(results)+timedOut),
			analysis.SourceFrameScheduler,
		))
	}

	return analysis.Result{
		Modality:     analysis.ModalityVideo,
		Verdict:      fusion.Classify(analysis.ModalityVideo, fused.Probability),
		Probability:  fused.Probability,
		Signals:      sigs,
		Evidence:     evidence,
		ModelSignals: modelSignals,
		Video:        summary,
	}
}

const budgetExpiredReason = "Time budget expired before any frame was analyzed"

// BudgetExpired is the result for a video whose time budget ran out before
// decoding produced any frame.
func BudgetExpired() analysis.Result {
	res := analysis.ErrorResult(analysis.ModalityVideo, analysis.Concern(budgetExpiredReason, analysis.SourceVideoDecoder))
	res.Video = &analysis.VideoSummary{Partial: true}
	return res
}

func noFramesReason(total, failed, timedOut int) string {
	switch {
	case total == 0 && timedOut == 0:
		return "No frames could be extracted from the video"
	case timedOut > 0 && failed == 0:
		return budgetExpiredReason
	default:
		return fmt.Sprintf("None of the %d sampled frames could be analyzed", total+timedOut)
	}
}

// meanVariance returns the mean and population variance of xs.
func meanVariance(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, sq / float64(len(xs))
}

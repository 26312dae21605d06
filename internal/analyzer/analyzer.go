// Package analyzer wires extractors, oracles, fusion and the video
// aggregator into one pipeline per modality. Pipelines always return a
// well-formed Result; failures become Error or degraded results, never
// returned errors.
package analyzer

import (
	"time"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/factcheck"
	"github.com/truthguard/truthguard/internal/fusion"
	"github.com/truthguard/truthguard/internal/metrics"
	"github.com/truthguard/truthguard/internal/oracle"
	"github.com/truthguard/truthguard/internal/signals"
	"github.com/truthguard/truthguard/internal/telemetry"
	"github.com/truthguard/truthguard/internal/video"
)

// Options are the injected dependencies of an Analyzer. Nil oracles are
// treated as disabled; a nil Decoder disables video analysis.
type Options struct {
	Text  oracle.TextClassifier
	Image oracle.ImageClassifier

	// TextBackend and ImageBackend name the resolved oracle modes for
	// readiness reporting.
	TextBackend  string
	ImageBackend string

	ForensicMode signals.ForensicMode

	Decoder      video.Decoder
	Sampling     video.SamplingPolicy
	VideoWorkers int
	VideoTimeout time.Duration

	Facts     *factcheck.Index
	Telemetry *telemetry.Provider
}

// Analyzer is safe for concurrent use; it holds no per-request state.
type Analyzer struct {
	text  oracle.TextClassifier
	image oracle.ImageClassifier

	textBackend  string
	imageBackend string

	mode signals.ForensicMode

	decoder      video.Decoder
	sampling     video.SamplingPolicy
	videoWorkers int
	videoTimeout time.Duration

	facts *factcheck.Index
	tel   *telemetry.Provider
}

func New(opts Options) *Analyzer {
	a := &Analyzer{
		text:         opts.Text,
		image:        opts.Image,
		textBackend:  opts.TextBackend,
		imageBackend: opts.ImageBackend,
		mode:         opts.ForensicMode,
		decoder:      opts.Decoder,
		sampling:     opts.Sampling,
		videoWorkers: opts.VideoWorkers,
		videoTimeout: opts.VideoTimeout,
		facts:        opts.Facts,
		tel:          opts.Telemetry,
	}
	if a.text == nil {
		a.text = oracle.Disabled{}
		a.textBackend = oracle.ModeDisabled
	}
	if a.image == nil {
		a.image = oracle.Disabled{}
		a.imageBackend = oracle.ModeDisabled
	}
	if a.mode == "" {
		a.mode = signals.ForensicGradient
	}
	if a.sampling.Mode == "" {
		a.sampling = video.DefaultPolicy()
	}
	if a.videoWorkers <= 0 {
		a.videoWorkers = video.DefaultWorkers
	}
	if a.videoTimeout <= 0 {
		a.videoTimeout = video.DefaultTimeout
	}
	if a.tel == nil {
		a.tel = telemetry.Noop()
	}
	return a
}

// Status describes what the analyzer can currently do.
type Status struct {
	TextOracle   string `json:"text_oracle"`
	ImageOracle  string `json:"image_oracle"`
	ForensicMode string `json:"forensic_mode"`
	Video        bool   `json:"video"`
	Facts        int    `json:"facts"`
	WeightTables string `json:"weight_tables"`
}

func (a *Analyzer) Status() Status {
	return Status{
		TextOracle:   a.textBackend,
		ImageOracle:  a.imageBackend,
		ForensicMode: string(a.mode),
		Video:        a.decoder != nil,
		Facts:        a.facts.Len(),
		WeightTables: fusion.TableVersion,
	}
}

// finish records metrics for a completed analysis.
func finish(res analysis.Result, start time.Time) analysis.Result {
	metrics.RecordAnalysis(string(res.Modality), string(res.Verdict), res.Probability, time.Since(start))
	return res
}

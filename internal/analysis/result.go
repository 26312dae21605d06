package analysis

import (
	"github.com/goccy/go-json"
)

// Modality is the kind of content analysed.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
)

// Verdict is the categorical outcome of an analysis.
type Verdict string

const (
	VerdictError      Verdict = "Error"
	VerdictSuspicious Verdict = "Suspicious"

	VerdictLikelyAuthentic   Verdict = "Likely Authentic"
	VerdictLikelyManipulated Verdict = "Likely Manipulated"
	VerdictLikelyGenerated   Verdict = "Likely AI-Generated or Manipulated"
)

// Result is the terminal artifact of one analysis. Callers own it; nothing
// mutates it after the pipeline returns.
type Result struct {
	Modality    Modality
	Verdict     Verdict
	Probability float64 // [0,1], full precision
	Signals     Signals
	Evidence    []EvidenceItem
	// ModelSignals holds diagnostic sub-scores (neural_score, forensic_score, ...).
	ModelSignals map[string]float64

	// ClosestFact is set for text when a verified fact is close enough.
	ClosestFact string
	// Video is set for video results only.
	Video *VideoSummary
	// Filename echoes the uploaded file name; set by the HTTP layer.
	Filename string
}

// VideoSummary carries frame coverage for video results.
type VideoSummary struct {
	FramesAnalyzed   int  `json:"frames_analyzed"`
	FramesSkipped    int  `json:"frames_skipped"`
	SuspiciousFrames int  `json:"suspicious_frames"`
	Partial          bool `json:"partial"`
}

// FrameResult is the per-frame outcome inside the temporal aggregator.
type FrameResult struct {
	Index         int
	Probability   float64
	NeuralScore   float64
	NeuralUsable  bool
	ForensicScore float64
	Err           error
}

// Scored reports whether the frame contributes to the aggregate.
func (f FrameResult) Scored() bool { return f.Err == nil }

// ErrorResult is the explicit failure result: verdict Error, probability 0.
func ErrorResult(m Modality, evidence ...EvidenceItem) Result {
	return Result{
		Modality:     m,
		Verdict:      VerdictError,
		Probability:  0,
		Signals:      Signals{},
		Evidence:     append([]EvidenceItem{}, evidence...),
		ModelSignals: map[string]float64{},
	}
}

// ProbabilityKey is the JSON key carrying the fused score for a modality.
func (m Modality) ProbabilityKey() string {
	switch m {
	case ModalityText:
		return "confidence"
	case ModalityVideo:
		return "deepfake_probability"
	default:
		return "ai_generated_probability"
	}
}

type signalJSON struct {
	Signal   string  `json:"signal"`
	Strength float64 `json:"strength"`
	Impact   Impact  `json:"impact,omitempty"`
	Usable   *bool   `json:"usable,omitempty"`
}

// MarshalJSON renders the canonical result shape. Rounding happens here and
// only here.
func (r Result) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"verdict": r.Verdict,
	}

	if r.Modality == ModalityText {
		out[r.Modality.ProbabilityKey()] = int(Round(r.Probability*100, 0))
	} else {
		out[r.Modality.ProbabilityKey()] = Round(r.Probability, 2)
	}

	ms := make(map[string]float64, len(r.ModelSignals))
	for k, v := range r.ModelSignals {
		ms[k] = Round(v, 2)
	}
	out["model_signals"] = ms

	sigs := make([]signalJSON, 0, len(r.Signals))
	for _, s := range r.Signals {
		sj := signalJSON{Signal: s.Name, Impact: s.Impact}
		if s.Usable {
			sj.Strength = Round(s.Strength, 3)
		} else {
			f := false
			sj.Usable = &f
		}
		sigs = append(sigs, sj)
	}
	out["signals"] = sigs

	ev := r.Evidence
	if ev == nil {
		ev = []EvidenceItem{}
	}
	out["evidence"] = ev

	if r.ClosestFact != "" {
		out["closest_verified_fact"] = r.ClosestFact
	}
	if r.Filename != "" {
		out["filename"] = r.Filename
	}
	if r.Video != nil {
		out["frames_analyzed"] = r.Video.FramesAnalyzed
		out["frames_skipped"] = r.Video.FramesSkipped
		out["suspicious_frames"] = r.Video.SuspiciousFrames
		out["partial"] = r.Video.Partial
	}
	return json.Marshal(out)
}

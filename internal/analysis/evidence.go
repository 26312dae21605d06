package analysis

// EvidenceType classifies an evidence item relative to the verdict.
type EvidenceType string

const (
	EvidenceSupport EvidenceType = "support"
	EvidenceConcern EvidenceType = "concern"
	EvidenceNeutral EvidenceType = "neutral"
)

// EvidenceItem is a human-readable justification for part of a verdict.
type EvidenceItem struct {
	Type        EvidenceType `json:"type"`
	Description string       `json:"description"`
	Source      string       `json:"source"`
}

// Evidence sources that do not belong to a single signal.
const (
	SourceInputValidator = "Input Validator"
	SourceImageLoader    = "Image Loader"
	SourceVideoDecoder   = "Video Decoder"
	SourceFrameScheduler = "Frame Scheduler"
	SourceFusion         = "Fusion Scorer"
)

// Concern is shorthand for a concern item.
func Concern(description, source string) EvidenceItem {
	return EvidenceItem{Type: EvidenceConcern, Description: description, Source: source}
}

// Support is shorthand for a support item.
func Support(description, source string) EvidenceItem {
	return EvidenceItem{Type: EvidenceSupport, Description: description, Source: source}
}

// Note is shorthand for a neutral item.
func Note(description, source string) EvidenceItem {
	return EvidenceItem{Type: EvidenceNeutral, Description: description, Source: source}
}

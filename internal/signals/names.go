package signals

// Derived and video-level signal names.
const (
	// ForensicScore is the fused per-pixel forensic sub-score of an image.
	ForensicScore = "forensic_score"

	FrameScore          = "frame_score"
	TemporalConsistency = "temporal_consistency"
)

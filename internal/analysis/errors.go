package analysis

import "errors"

// Error taxonomy of the fusion core. None of these cross the pipeline
// boundary as faults; pipelines fold them into a Result.
var (
	// ErrInput marks empty or unparseable content.
	ErrInput = errors.New("invalid input")
	// ErrOracle marks a classifier invocation failure.
	ErrOracle = errors.New("oracle failure")
	// ErrDecode marks image or video data that could not be parsed.
	ErrDecode = errors.New("decode failure")
	// ErrAggregation marks a video where no frame survived scoring.
	ErrAggregation = errors.New("no frames survived")
)

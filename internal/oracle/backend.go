package oracle

import (
	"fmt"
	"strings"
)

// Backend modes after startup resolution.
const (
	ModeONNX     = "onnx"
	ModeRemote   = "remote"
	ModeDisabled = "disabled"
)

// DecideBackend determines how to continue after an oracle failed (or
// succeeded) to load. A required oracle that failed to load is fatal; an
// optional one is disabled and its signal reported unusable per request.
func DecideBackend(name, requested string, required bool, loadErr error) (string, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "none" {
		return ModeDisabled, nil
	}
	if loadErr == nil {
		return requested, nil
	}
	if required {
		return "", fmt.Errorf("%s oracle (%s) failed to load and is required: %w", name, requested, loadErr)
	}
	return ModeDisabled, nil
}

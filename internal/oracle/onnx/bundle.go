package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/redact"
)

// ErrBundleStateNotFound is returned when a model root has no state.json.
var ErrBundleStateNotFound = errors.New("model bundle state not found")

// BundleState tracks the active and previous model versions under a model
// root laid out as <root>/<version>/model.onnx.
type BundleState struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version,omitempty"`
}

// LoadBundleState reads <root>/state.json.
func LoadBundleState(root string) (BundleState, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return BundleState{}, errors.New("model root is empty")
	}

	data, err := os.ReadFile(filepath.Join(root, "state.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return BundleState{}, ErrBundleStateNotFound
		}
		return BundleState{}, fmt.Errorf("read bundle state: %w", err)
	}

	var state BundleState
	if err := json.Unmarshal(data, &state); err != nil {
		return BundleState{}, fmt.Errorf("decode bundle state: %w", err)
	}
	state.CurrentVersion = strings.TrimSpace(state.CurrentVersion)
	state.PreviousVersion = strings.TrimSpace(state.PreviousVersion)
	return state, nil
}

// ResolveModelDir returns the directory holding the active model. A root
// with state.json points at its current version, falling back to the
// previous one when the current directory has no model or fails its
// manifest. A root without state.json is the model directory itself.
func ResolveModelDir(root string) (string, error) {
	state, err := LoadBundleState(root)
	if errors.Is(err, ErrBundleStateNotFound) {
		if err := VerifyManifest(root); err != nil {
			return "", err
		}
		return root, nil
	}
	if err != nil {
		return "", err
	}

	for _, v := range []string{state.CurrentVersion, state.PreviousVersion} {
		if v == "" {
			continue
		}
		dir := filepath.Join(root, v)
		if modelPath(dir) == "" {
			continue
		}
		if err := VerifyManifest(dir); err != nil {
			logging.Warn().Str("version", v).Str("error", redact.String(err.Error())).Msg("model version failed verification; trying previous")
			continue
		}
		return dir, nil
	}
	return "", fmt.Errorf("no model found for versions current=%q previous=%q under %s", state.CurrentVersion, state.PreviousVersion, root)
}

// modelPath prefers the int8-quantised export.
func modelPath(dir string) string {
	for _, name := range []string{"model.int8.onnx", "model.onnx"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

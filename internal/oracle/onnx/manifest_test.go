package onnx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestVerifyManifest(t *testing.T) {
	cases := []struct {
		name     string
		manifest string
		wantErr  bool
	}{
		{"no manifest", "", false},
		{"match", fmt.Sprintf(`{"files":[{"path":"model.onnx","sha256":%q,"size":4}]}`, sha("stub")), false},
		{"size only", `{"files":[{"path":"model.onnx","size":4}]}`, false},
		{"wrong hash", fmt.Sprintf(`{"files":[{"path":"model.onnx","sha256":%q}]}`, sha("other")), true},
		{"wrong size", `{"files":[{"path":"model.onnx","size":9}]}`, true},
		{"missing file", `{"files":[{"path":"vocab.txt"}]}`, true},
		{"escapes dir", `{"files":[{"path":"../model.onnx"}]}`, true},
		{"malformed", `{"files":`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "model.onnx"), "stub")
			if tc.manifest != "" {
				writeFile(t, filepath.Join(dir, manifestFile), tc.manifest)
			}
			err := VerifyManifest(dir)
			if (err != nil) != tc.wantErr {
				t.Fatalf("VerifyManifest err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestVerifyManifestMismatchIsTyped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "model.onnx"), "stub")
	writeFile(t, filepath.Join(dir, manifestFile), `{"files":[{"path":"model.onnx","size":1}]}`)
	if err := VerifyManifest(dir); !errors.Is(err, ErrManifestMismatch) {
		t.Fatalf("expected ErrManifestMismatch, got %v", err)
	}
}

func TestResolveModelDirSkipsCorruptVersion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "state.json"), `{"current_version":"v2","previous_version":"v1"}`)
	writeFile(t, filepath.Join(root, "v1", "model.onnx"), "stub")
	writeFile(t, filepath.Join(root, "v2", "model.onnx"), "truncated")
	writeFile(t, filepath.Join(root, "v2", manifestFile), fmt.Sprintf(`{"version":"v2","files":[{"path":"model.onnx","sha256":%q}]}`, sha("stub")))

	dir, err := ResolveModelDir(root)
	if err != nil {
		t.Fatalf("ResolveModelDir: %v", err)
	}
	if dir != filepath.Join(root, "v1") {
		t.Fatalf("expected fallback to v1, got %s", dir)
	}
}

package onnx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

const manifestFile = "manifest.json"

// ErrManifestMismatch is returned when a model file does not match its
// manifest entry.
var ErrManifestMismatch = errors.New("model manifest mismatch")

// ManifestFile is one entry of manifest.json.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest mirrors an optional manifest.json shipped next to the model.
type Manifest struct {
	Model   string         `json:"model"`
	Version string         `json:"version"`
	Files   []ManifestFile `json:"files"`
}

// VerifyManifest checks sizes and sha256 sums of the files listed in
// dir/manifest.json. A directory without a manifest is accepted.
func VerifyManifest(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}

	for _, f := range m.Files {
		local, err := manifestPath(dir, f.Path)
		if err != nil {
			return err
		}
		info, err := os.Stat(local)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrManifestMismatch, f.Path, err)
		}
		if f.Size > 0 && info.Size() != f.Size {
			return fmt.Errorf("%w: size of %s: expected %d got %d", ErrManifestMismatch, f.Path, f.Size, info.Size())
		}
		if f.SHA256 == "" {
			continue
		}
		sum, err := fileSHA256(local)
		if err != nil {
			return fmt.Errorf("hash %s: %w", f.Path, err)
		}
		if !strings.EqualFold(sum, f.SHA256) {
			return fmt.Errorf("%w: sha256 of %s: expected %s got %s", ErrManifestMismatch, f.Path, f.SHA256, sum)
		}
	}
	return nil
}

// manifestPath keeps manifest entries inside dir.
func manifestPath(dir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes the model directory", ErrManifestMismatch, rel)
	}
	return filepath.Join(dir, clean), nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

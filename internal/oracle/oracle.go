// Package oracle defines the neural classifier boundary. Backends live in
// the onnx and remote subpackages.
package oracle

import (
	"context"
	"image"
	"sort"
	"strings"
)

// Label is one classifier output.
type Label struct {
	Name  string  `json:"label"`
	Score float64 `json:"score"`
}

// TextClassifier scores a text. Implementations must be safe for concurrent
// use.
type TextClassifier interface {
	ClassifyText(ctx context.Context, text string) (Label, error)
}

// ImageClassifier scores an image. Labels come back ordered by descending
// score. Implementations must be safe for concurrent use.
type ImageClassifier interface {
	ClassifyImage(ctx context.Context, img image.Image) ([]Label, error)
}

// UnknownLabel is reported when no label names the fake/AI class.
const UnknownLabel = "unknown"

// SelectFakeLabel returns the first label whose name contains "fake" or
// "ai", case-insensitively. Without a match it returns unknown with score 0.
func SelectFakeLabel(labels []Label) Label {
	for _, l := range labels {
		name := strings.ToLower(l.Name)
		if strings.Contains(name, "fake") || strings.Contains(name, "ai") {
			return l
		}
	}
	return Label{Name: UnknownLabel, Score: 0}
}

// SortLabels orders labels by descending score, keeping input order on ties.
func SortLabels(labels []Label) {
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Score > labels[j].Score })
}

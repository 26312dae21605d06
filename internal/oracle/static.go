package oracle

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
)

// ErrDisabled is returned by a disabled oracle.
var ErrDisabled = errors.New("oracle disabled")

// StaticText returns a fixed label. It counts calls so tests can assert the
// oracle was or was not consulted.
type StaticText struct {
	Label Label
	Err   error
	calls atomic.Int64
}

func (s *StaticText) ClassifyText(ctx context.Context, text string) (Label, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return Label{}, err
	}
	if s.Err != nil {
		return Label{}, s.Err
	}
	return s.Label, nil
}

// Calls reports how many times ClassifyText ran.
func (s *StaticText) Calls() int64 { return s.calls.Load() }

// StaticImage returns fixed labels, or a per-image score through ScoreFunc.
type StaticImage struct {
	Labels    []Label
	Err       error
	ScoreFunc func(img image.Image) ([]Label, error)
	calls     atomic.Int64
}

func (s *StaticImage) ClassifyImage(ctx context.Context, img image.Image) ([]Label, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.ScoreFunc != nil {
		return s.ScoreFunc(img)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := append([]Label(nil), s.Labels...)
	return out, nil
}

// Calls reports how many times ClassifyImage ran.
func (s *StaticImage) Calls() int64 { return s.calls.Load() }

// Disabled always fails with ErrDisabled.
type Disabled struct{}

func (Disabled) ClassifyText(context.Context, string) (Label, error) {
	return Label{}, ErrDisabled
}

func (Disabled) ClassifyImage(context.Context, image.Image) ([]Label, error) {
	return nil, ErrDisabled
}

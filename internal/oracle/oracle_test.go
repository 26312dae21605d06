package oracle

import (
	"context"
	"errors"
	"testing"
)

func TestSelectFakeLabel(t *testing.T) {
	cases := []struct {
		name   string
		labels []Label
		want   Label
	}{
		{
			name:   "fake first",
			labels: []Label{{"Fake", 0.91}, {"Real", 0.09}},
			want:   Label{"Fake", 0.91},
		},
		{
			name:   "ai label after real",
			labels: []Label{{"Real", 0.7}, {"AI-generated", 0.3}},
			want:   Label{"AI-generated", 0.3},
		},
		{
			name:   "no match",
			labels: []Label{{"Real", 0.8}, {"Human", 0.2}},
			want:   Label{UnknownLabel, 0},
		},
		{
			name: "empty",
			want: Label{UnknownLabel, 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectFakeLabel(tc.labels); got != tc.want {
				t.Fatalf("SelectFakeLabel = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSortLabels(t *testing.T) {
	labels := []Label{{"Real", 0.2}, {"Fake", 0.8}}
	SortLabels(labels)
	if labels[0].Name != "Fake" {
		t.Fatalf("expected Fake first, got %+v", labels)
	}
}

func TestDecideBackend(t *testing.T) {
	boom := errors.New("boom")

	mode, err := DecideBackend("text", "onnx", false, nil)
	if err != nil || mode != ModeONNX {
		t.Fatalf("loaded onnx: mode=%s err=%v", mode, err)
	}

	mode, err = DecideBackend("text", "remote", false, boom)
	if err != nil || mode != ModeDisabled {
		t.Fatalf("optional failure should disable: mode=%s err=%v", mode, err)
	}

	if _, err = DecideBackend("image", "onnx", true, boom); !errors.Is(err, boom) {
		t.Fatalf("required failure should wrap load error, got %v", err)
	}

	mode, err = DecideBackend("image", "none", true, nil)
	if err != nil || mode != ModeDisabled {
		t.Fatalf("none backend: mode=%s err=%v", mode, err)
	}
}

func TestStaticTextCountsCalls(t *testing.T) {
	s := &StaticText{Label: Label{"POSITIVE", 0.9}}
	if _, err := s.ClassifyText(context.Background(), "hello"); err != nil {
		t.Fatalf("ClassifyText: %v", err)
	}
	if s.Calls() != 1 {
		t.Fatalf("calls = %d", s.Calls())
	}
	if _, err := (Disabled{}).ClassifyText(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

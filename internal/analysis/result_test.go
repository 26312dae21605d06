package analysis

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestResultJSONKeysFollowModality(t *testing.T) {
	cases := []struct {
		modality Modality
		key      string
		want     float64
	}{
		{ModalityText, "confidence", 83},
		{ModalityImage, "ai_generated_probability", 0.83},
		{ModalityVideo, "deepfake_probability", 0.83},
	}

	for _, tc := range cases {
		t.Run(string(tc.modality), func(t *testing.T) {
			r := Result{
				Modality:    tc.modality,
				Verdict:     VerdictSuspicious,
				Probability: 0.8333,
				Signals:     Signals{NewSignal("x", 0.12345, ImpactNegative)},
			}
			raw, err := json.Marshal(r)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var decoded map[string]any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, ok := decoded[tc.key].(float64)
			if !ok {
				t.Fatalf("missing %s in %s", tc.key, raw)
			}
			if got != tc.want {
				t.Fatalf("%s = %v, want %v", tc.key, got, tc.want)
			}
			if _, ok := decoded["evidence"].([]any); !ok {
				t.Fatalf("evidence must render as an array, got %s", raw)
			}
		})
	}
}

func TestUnusableSignalRendersWithoutStrength(t *testing.T) {
	r := ErrorResult(ModalityImage)
	r.Signals = Signals{Unusable("neural_classifier", ImpactNegative)}

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Verdict string `json:"verdict"`
		Signals []struct {
			Signal   string  `json:"signal"`
			Strength float64 `json:"strength"`
			Usable   *bool   `json:"usable"`
		} `json:"signals"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Verdict != string(VerdictError) {
		t.Fatalf("verdict = %s", decoded.Verdict)
	}
	if len(decoded.Signals) != 1 || decoded.Signals[0].Usable == nil || *decoded.Signals[0].Usable {
		t.Fatalf("expected usable=false marker, got %s", raw)
	}
}

func TestClamp01(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.4: 0.4, 3: 1} {
		if got := Clamp01(in); got != want {
			t.Fatalf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}

package onnx

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testTokenizer(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "breaking", "news", "!", "un", "##believ", "##able", "the"}
	path := filepath.Join(t.TempDir(), "vocab.txt")
	writeFile(t, path, strings.Join(vocab, "\n")+"\n")
	tok, err := LoadWordPieceTokenizer(path)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	return tok
}

func TestWordPieceEncode(t *testing.T) {
	tok := testTokenizer(t)

	ids, attn := tok.Encode("BREAKING news! Unbelievable zzz", 12)
	want := []int64{2, 4, 5, 6, 7, 8, 9, 1, 3, 0, 0, 0}
	if len(ids) != len(want) {
		t.Fatalf("len(ids) = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if got := countOnes(attn); got != 9 {
		t.Fatalf("attention covers %d tokens, want 9", got)
	}
}

func TestWordPieceEncodeTruncatesBeforeSep(t *testing.T) {
	tok := testTokenizer(t)
	ids, attn := tok.Encode("the the the the the the", 4)
	want := []int64{2, 10, 10, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if countOnes(attn) != 4 {
		t.Fatalf("attn = %v", attn)
	}
}

func TestTokenizerRequiresSpecialTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	writeFile(t, path, "hello\nworld\n")
	if _, err := LoadWordPieceTokenizer(path); err == nil {
		t.Fatal("expected error for vocab without special tokens")
	}
}

func TestLoadTokenizerFromJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tokenizer.json"), `{"model":{"type":"WordPiece","vocab":{"[PAD]":0,"[UNK]":1,"[CLS]":2,"[SEP]":3,"fake":4}}}`)
	tok, err := LoadTokenizer(dir)
	if err != nil {
		t.Fatalf("LoadTokenizer: %v", err)
	}
	ids, _ := tok.Encode("fake", 4)
	if ids[1] != 4 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float32{1, 2, 3})
	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("softmax sums to %v", sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Fatalf("softmax not monotonic: %v", probs)
	}
	if softmax(nil) != nil {
		t.Fatal("softmax(nil) must be nil")
	}
}

func TestLoadModelMeta(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json"), `{"num_labels":2,"id2label":{"0":"NEGATIVE","1":"POSITIVE"}}`)
	writeFile(t, filepath.Join(dir, "preprocessor_config.json"), `{"size":{"height":384,"width":384},"image_mean":[0.485,0.456,0.406],"image_std":[0.229,0.224,0.225]}`)

	meta, err := loadModelMeta(dir)
	if err != nil {
		t.Fatalf("loadModelMeta: %v", err)
	}
	if meta.NumLabels != 2 || meta.labelAt(1) != "POSITIVE" {
		t.Fatalf("labels = %v (n=%d)", meta.Labels, meta.NumLabels)
	}
	if meta.ImageSize != 384 || !meta.hasNorm {
		t.Fatalf("preprocessing not parsed: %+v", meta)
	}
	if meta.labelAt(7) != "LABEL_7" {
		t.Fatalf("labelAt fallback = %s", meta.labelAt(7))
	}
}

func TestLoadModelMetaLabelMapOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json"), `{"label2id":{"Real":0,"Fake":1}}`)
	meta, err := loadModelMeta(dir)
	if err != nil {
		t.Fatalf("loadModelMeta: %v", err)
	}
	if meta.labelAt(0) != "Real" || meta.labelAt(1) != "Fake" {
		t.Fatalf("label2id not inverted: %v", meta.Labels)
	}

	writeFile(t, filepath.Join(dir, "label_map.json"), `["artificial","human"]`)
	meta, err = loadModelMeta(dir)
	if err != nil {
		t.Fatalf("loadModelMeta: %v", err)
	}
	if meta.labelAt(0) != "artificial" || meta.NumLabels != 2 {
		t.Fatalf("label_map.json not applied: %v", meta.Labels)
	}
}

func TestTopLabel(t *testing.T) {
	meta := modelMeta{Labels: []string{"NEGATIVE", "POSITIVE"}, NumLabels: 2}
	l, err := meta.topLabel([]float32{-2, 3}, []int64{-1, 2})
	if err != nil {
		t.Fatalf("topLabel: %v", err)
	}
	if l.Name != "POSITIVE" || l.Score < 0.99 {
		t.Fatalf("label = %+v", l)
	}
	if _, err := meta.topLabel(nil, nil); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestAllLabelsSorted(t *testing.T) {
	meta := modelMeta{Labels: []string{"realism", "artificial"}, NumLabels: 2}
	labels, err := meta.allLabels([]float32{0.1, 2.5}, []int64{1, 2})
	if err != nil {
		t.Fatalf("allLabels: %v", err)
	}
	if labels[0].Name != "artificial" || labels[0].Score <= labels[1].Score {
		t.Fatalf("labels not sorted: %+v", labels)
	}
}

func TestFillPixelValues(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}
	size := 4
	dst := make([]float32, 3*size*size)
	fillPixelValues(dst, img, size, defaultNorm, defaultNorm)

	plane := size * size
	if math.Abs(float64(dst[0])-1) > 0.01 {
		t.Fatalf("red channel = %v, want 1", dst[0])
	}
	if math.Abs(float64(dst[plane])+1) > 0.01 {
		t.Fatalf("green channel = %v, want -1", dst[plane])
	}
	if math.Abs(float64(dst[2*plane])-0.0039) > 0.01 {
		t.Fatalf("blue channel = %v, want ~0", dst[2*plane])
	}
}

func TestBundleState(t *testing.T) {
	root := t.TempDir()
	if _, err := LoadBundleState(root); !errors.Is(err, ErrBundleStateNotFound) {
		t.Fatalf("expected ErrBundleStateNotFound, got %v", err)
	}
	dir, err := ResolveModelDir(root)
	if err != nil || dir != root {
		t.Fatalf("plain root: dir=%s err=%v", dir, err)
	}

	writeFile(t, filepath.Join(root, "state.json"), `{"current_version":"v2","previous_version":"v1"}`)
	writeFile(t, filepath.Join(root, "v1", "model.onnx"), "stub")

	dir, err = ResolveModelDir(root)
	if err != nil {
		t.Fatalf("ResolveModelDir: %v", err)
	}
	if dir != filepath.Join(root, "v1") {
		t.Fatalf("expected fallback to previous version, got %s", dir)
	}

	writeFile(t, filepath.Join(root, "v2", "model.int8.onnx"), "stub")
	dir, _ = ResolveModelDir(root)
	if dir != filepath.Join(root, "v2") {
		t.Fatalf("expected current version, got %s", dir)
	}
	if got := modelPath(dir); filepath.Base(got) != "model.int8.onnx" {
		t.Fatalf("modelPath = %s", got)
	}
}

func TestResolveSharedLibraryPathEnvWins(t *testing.T) {
	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "/custom/libonnxruntime.so")
	if got := resolveSharedLibraryPath(t.TempDir()); got != "/custom/libonnxruntime.so" {
		t.Fatalf("resolveSharedLibraryPath = %s", got)
	}
}

func TestTextClassifierSessionReuse(t *testing.T) {
	modelDir := strings.TrimSpace(os.Getenv("TRUTHGUARD_TEXT_MODEL_DIR"))
	if modelDir == "" {
		t.Skip("TRUTHGUARD_TEXT_MODEL_DIR not set; skipping ONNX runtime test")
	}

	m, err := LoadText(Options{ModelDir: modelDir, SeqLen: 64})
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	defer m.Close()

	for _, text := range []string{"hello", "this is wonderful news"} {
		l, err := m.ClassifyText(context.Background(), text)
		if err != nil {
			t.Fatalf("ClassifyText: %v", err)
		}
		if l.Score < 0 || l.Score > 1 || l.Name == "" {
			t.Fatalf("label = %+v", l)
		}
	}
	if len(m.sessions) != cap(m.sessions) {
		t.Fatalf("sessions not returned to pool: %d/%d", len(m.sessions), cap(m.sessions))
	}
}

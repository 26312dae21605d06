package onnx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/oracle"
	"github.com/truthguard/truthguard/internal/redact"
)

const defaultSeqLen = 256

// TextClassifier runs a sequence-classification transformer such as
// DistilBERT SST-2. It reports the argmax class.
type TextClassifier struct {
	tokenizer  *WordPieceTokenizer
	meta       modelMeta
	seqLen     int
	outputDims []int64
	sessions   chan *textSession
}

type textSession struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

var _ oracle.TextClassifier = (*TextClassifier)(nil)

// LoadText opens the model under opts.ModelDir and fills the session pool.
func LoadText(opts Options) (*TextClassifier, error) {
	opts = opts.withDefaults()
	if opts.SeqLen <= 0 {
		opts.SeqLen = defaultSeqLen
	}
	dir, err := ResolveModelDir(opts.ModelDir)
	if err != nil {
		return nil, err
	}
	path := modelPath(dir)
	if path == "" {
		return nil, fmt.Errorf("text model missing under %s", dir)
	}
	if err := initRuntime(dir); err != nil {
		return nil, err
	}

	tok, err := LoadTokenizer(dir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	meta, err := loadModelMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("load model config: %w", err)
	}
	outName, outDims, err := selectOutput(path)
	if err != nil {
		return nil, fmt.Errorf("output selection: %w", err)
	}
	numLabels := classCount(meta.NumLabels, outDims, 0)
	needsTokenType, err := hasInput(path, "token_type_ids")
	if err != nil {
		return nil, fmt.Errorf("input inspection: %w", err)
	}

	m := &TextClassifier{
		tokenizer:  tok,
		meta:       meta,
		seqLen:     opts.SeqLen,
		outputDims: outDims,
		sessions:   make(chan *textSession, opts.MaxSessions),
	}
	for i := 0; i < opts.MaxSessions; i++ {
		ss, err := newTextSession(path, opts, numLabels, outDims, outName, needsTokenType)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("create text session %d/%d: %w", i+1, opts.MaxSessions, err)
		}
		m.sessions <- ss
	}

	redact.Logf("onnx: loaded text model %s labels=%v sessions=%d seq_len=%d", filepath.Base(path), meta.Labels, opts.MaxSessions, opts.SeqLen)
	return m, nil
}

func newTextSession(path string, opts Options, numLabels int, outDims []int64, outName string, tokenType bool) (*textSession, error) {
	so, err := newSessionOptions(opts.IntraThreads, opts.InterThreads)
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	ss := &textSession{}
	shape := ort.NewShape(1, int64(opts.SeqLen))
	if ss.inputIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	if ss.attentionMask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	names := []string{"input_ids", "attention_mask"}
	values := []ort.Value{ss.inputIDs, ss.attentionMask}
	if tokenType {
		if ss.tokenTypeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
			ss.destroy()
			return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
		}
		names = append(names, "token_type_ids")
		values = append(values, ss.tokenTypeIDs)
	}
	if ss.output, err = ort.NewEmptyTensor[float32](outputShape(outDims, numLabels)); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	ss.session, err = ort.NewAdvancedSession(path, names, []string{outName}, values, []ort.Value{ss.output}, so)
	if err != nil {
		ss.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return ss, nil
}

func (ss *textSession) destroy() {
	if ss.session != nil {
		_ = ss.session.Destroy()
	}
	for _, t := range []*ort.Tensor[int64]{ss.inputIDs, ss.attentionMask, ss.tokenTypeIDs} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if ss.output != nil {
		_ = ss.output.Destroy()
	}
}

// ClassifyText returns the most probable class and its softmax probability.
// Callers block on the session pool; ctx cancels the wait.
func (m *TextClassifier) ClassifyText(ctx context.Context, text string) (oracle.Label, error) {
	if m == nil || m.sessions == nil {
		return oracle.Label{}, errors.New("text classifier not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return oracle.Label{}, fmt.Errorf("%w: empty text", analysis.ErrInput)
	}

	var ss *textSession
	select {
	case ss = <-m.sessions:
	case <-ctx.Done():
		return oracle.Label{}, ctx.Err()
	}
	defer func() { m.sessions <- ss }()

	ids, attn := m.tokenizer.Encode(text, m.seqLen)
	if debugML() {
		redact.Logf("onnx debug: text tokens=%d first_ids=%v", countOnes(attn), head(ids, 8))
	}
	copy(ss.inputIDs.GetData(), ids)
	copy(ss.attentionMask.GetData(), attn)
	if ss.tokenTypeIDs != nil {
		clear(ss.tokenTypeIDs.GetData())
	}

	if err := ss.session.Run(); err != nil {
		return oracle.Label{}, fmt.Errorf("%w: onnx run: %v", analysis.ErrOracle, err)
	}
	return m.meta.topLabel(ss.output.GetData(), m.outputDims)
}

// topLabel reduces one logits row to the argmax label.
func (meta modelMeta) topLabel(raw []float32, dims []int64) (oracle.Label, error) {
	if len(raw) == 0 {
		return oracle.Label{}, fmt.Errorf("%w: empty model output", analysis.ErrOracle)
	}
	n := classCount(meta.NumLabels, dims, len(raw))
	if n > len(raw) {
		n = len(raw)
	}
	row := raw[:n]
	if n == 1 {
		p := sigmoid(row[0])
		if p >= 0.5 {
			return oracle.Label{Name: meta.labelAt(0), Score: float64(p)}, nil
		}
		return oracle.Label{Name: "NOT_" + meta.labelAt(0), Score: float64(1 - p)}, nil
	}
	probs := softmax(row)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return oracle.Label{Name: meta.labelAt(best), Score: float64(probs[best])}, nil
}

// Close releases every pooled session.
func (m *TextClassifier) Close() {
	if m == nil || m.sessions == nil {
		return
	}
	for {
		select {
		case ss := <-m.sessions:
			ss.destroy()
		default:
			return
		}
	}
}

func countOnes(xs []int64) int {
	n := 0
	for _, v := range xs {
		if v > 0 {
			n++
		}
	}
	return n
}

func head(xs []int64, n int) []int64 {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

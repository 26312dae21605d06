package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/oracle"
	"github.com/truthguard/truthguard/internal/redact"
)

const defaultImageSize = 224

// ViT-style exports normalise with mean = std = 0.5 unless
// preprocessor_config.json says otherwise.
var defaultNorm = [3]float32{0.5, 0.5, 0.5}

// ImageClassifier runs an image-classification model over pixel_values in
// NCHW layout and returns every class, highest probability first.
type ImageClassifier struct {
	meta       modelMeta
	size       int
	mean, std  [3]float32
	outputDims []int64
	sessions   chan *imageSession
}

type imageSession struct {
	session *ort.AdvancedSession
	pixels  *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

var _ oracle.ImageClassifier = (*ImageClassifier)(nil)

// LoadImage opens the model under opts.ModelDir and fills the session pool.
func LoadImage(opts Options) (*ImageClassifier, error) {
	opts = opts.withDefaults()
	dir, err := ResolveModelDir(opts.ModelDir)
	if err != nil {
		return nil, err
	}
	path := modelPath(dir)
	if path == "" {
		return nil, fmt.Errorf("image model missing under %s", dir)
	}
	if err := initRuntime(dir); err != nil {
		return nil, err
	}

	meta, err := loadModelMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("load model config: %w", err)
	}
	outName, outDims, err := selectOutput(path)
	if err != nil {
		return nil, fmt.Errorf("output selection: %w", err)
	}

	m := &ImageClassifier{
		meta:       meta,
		size:       imageSize(opts.ImageSize, meta.ImageSize),
		mean:       defaultNorm,
		std:        defaultNorm,
		outputDims: outDims,
		sessions:   make(chan *imageSession, opts.MaxSessions),
	}
	if meta.hasNorm {
		m.mean, m.std = meta.ImageMean, meta.ImageStd
	}

	numLabels := classCount(meta.NumLabels, outDims, 0)
	for i := 0; i < opts.MaxSessions; i++ {
		ss, err := newImageSession(path, opts, m.size, numLabels, outDims, outName)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("create image session %d/%d: %w", i+1, opts.MaxSessions, err)
		}
		m.sessions <- ss
	}

	redact.Logf("onnx: loaded image model %s labels=%v sessions=%d size=%d", filepath.Base(path), meta.Labels, opts.MaxSessions, m.size)
	return m, nil
}

// imageSize prefers an explicit setting, then the model's own config.
func imageSize(configured, fromModel int) int {
	switch {
	case configured > 0:
		return configured
	case fromModel > 0:
		return fromModel
	default:
		return defaultImageSize
	}
}

func newImageSession(path string, opts Options, size, numLabels int, outDims []int64, outName string) (*imageSession, error) {
	so, err := newSessionOptions(opts.IntraThreads, opts.InterThreads)
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	ss := &imageSession{}
	if ss.pixels, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size))); err != nil {
		return nil, fmt.Errorf("allocate pixel_values tensor: %w", err)
	}
	if ss.output, err = ort.NewEmptyTensor[float32](outputShape(outDims, numLabels)); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	ss.session, err = ort.NewAdvancedSession(path,
		[]string{"pixel_values"}, []string{outName},
		[]ort.Value{ss.pixels}, []ort.Value{ss.output},
		so,
	)
	if err != nil {
		ss.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return ss, nil
}

func (ss *imageSession) destroy() {
	if ss.session != nil {
		_ = ss.session.Destroy()
	}
	if ss.pixels != nil {
		_ = ss.pixels.Destroy()
	}
	if ss.output != nil {
		_ = ss.output.Destroy()
	}
}

// ClassifyImage returns softmax probabilities for every class, ordered by
// descending score.
func (m *ImageClassifier) ClassifyImage(ctx context.Context, img image.Image) ([]oracle.Label, error) {
	if m == nil || m.sessions == nil {
		return nil, errors.New("image classifier not initialized")
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", analysis.ErrInput)
	}

	// Resize outside the pool so concurrent callers only serialise on Run.
	pixels := make([]float32, 3*m.size*m.size)
	fillPixelValues(pixels, img, m.size, m.mean, m.std)

	var ss *imageSession
	select {
	case ss = <-m.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.sessions <- ss }()

	copy(ss.pixels.GetData(), pixels)
	if err := ss.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", analysis.ErrOracle, err)
	}
	return m.meta.allLabels(ss.output.GetData(), m.outputDims)
}

// allLabels turns one logits row into sorted labels.
func (meta modelMeta) allLabels(raw []float32, dims []int64) ([]oracle.Label, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty model output", analysis.ErrOracle)
	}
	n := classCount(meta.NumLabels, dims, len(raw))
	if n > len(raw) {
		n = len(raw)
	}
	var probs []float32
	if n == 1 {
		probs = []float32{sigmoid(raw[0])}
	} else {
		probs = softmax(raw[:n])
	}
	labels := make([]oracle.Label, len(probs))
	for i, p := range probs {
		labels[i] = oracle.Label{Name: meta.labelAt(i), Score: float64(p)}
	}
	oracle.SortLabels(labels)
	return labels, nil
}

// fillPixelValues resizes img to size x size with bilinear sampling and
// writes normalised CHW floats into dst.
func fillPixelValues(dst []float32, img image.Image, size int, mean, std [3]float32) {
	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(rgba, rgba.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			o := rgba.PixOffset(x, y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(rgba.Pix[o+c]) / 255
				dst[c*plane+i] = (v - mean[c]) / std[c]
			}
		}
	}
}

// Close releases every pooled session.
func (m *ImageClassifier) Close() {
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

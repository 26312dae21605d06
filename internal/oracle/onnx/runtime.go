// Package onnx runs the text and image classifiers in-process with ONNX
// Runtime.
package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/truthguard/truthguard/internal/redact"
)

const (
	defaultIntraThreads = 1
	defaultInterThreads = 1
	defaultMaxSessions  = 1
)

// Options configures one classifier. Zero values pick defaults.
type Options struct {
	ModelDir     string
	SeqLen       int
	ImageSize    int
	MaxSessions  int
	IntraThreads int
	InterThreads int
}

func (o Options) withDefaults() Options {
	if o.MaxSessions <= 0 {
		o.MaxSessions = defaultMaxSessions
	}
	if o.IntraThreads <= 0 {
		o.IntraThreads = defaultIntraThreads
	}
	if o.InterThreads <= 0 {
		o.InterThreads = defaultInterThreads
	}
	return o
}

var runtimeMu sync.Mutex

// initRuntime points onnxruntime_go at the shared library and initialises the
// process-wide environment once.
func initRuntime(modelDir string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	libPath := resolveSharedLibraryPath(modelDir)
	if libPath == "" {
		return errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	redact.Logf("onnx: runtime initialised from %s", libPath)
	return nil
}

// Shutdown releases the ONNX Runtime environment. Call after every
// classifier has been closed.
func Shutdown() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// resolveSharedLibraryPath locates the platform onnxruntime library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names and locations
// are probed, starting with the model directory.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	if modelDir != "" {
		dirs = append([]string{modelDir, filepath.Join(modelDir, "lib"), filepath.Dir(modelDir)}, dirs...)
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func newSessionOptions(intra, inter int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(intra); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(inter); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set inter threads: %w", err)
	}
	return opts, nil
}

// selectOutput picks the logits output of a classifier graph.
func selectOutput(modelPath string) (string, []int64, error) {
	_, outputs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return "", nil, err
	}
	if len(outputs) == 0 {
		return "", nil, errors.New("no outputs found")
	}
	for _, out := range outputs {
		if strings.EqualFold(out.Name, "logits") {
			return out.Name, out.Dimensions, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0].Name, outputs[0].Dimensions, nil
	}
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		names = append(names, out.Name)
	}
	return "", nil, fmt.Errorf("multiple outputs found without logits: %v", names)
}

// hasInput reports whether the graph declares the named input.
func hasInput(modelPath, name string) (bool, error) {
	inputs, _, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return false, err
	}
	for _, in := range inputs {
		if in.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// outputShape fills dynamic dimensions of a [batch, classes] output.
func outputShape(dims []int64, numLabels int) ort.Shape {
	if len(dims) == 0 {
		return ort.NewShape(1, int64(numLabels))
	}
	shape := make([]int64, len(dims))
	for i, v := range dims {
		switch {
		case v > 0:
			shape[i] = v
		case i == len(dims)-1 && numLabels > 0:
			shape[i] = int64(numLabels)
		default:
			shape[i] = 1
		}
	}
	return ort.Shape(shape)
}

// classCount is the width of the final output dimension.
func classCount(numLabels int, dims []int64, rawLen int) int {
	if len(dims) > 0 && dims[len(dims)-1] > 0 {
		return int(dims[len(dims)-1])
	}
	if numLabels > 0 {
		return numLabels
	}
	if rawLen > 0 {
		return rawLen
	}
	return 1
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	out := make([]float32, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}

func debugML() bool {
	return strings.TrimSpace(os.Getenv("TRUTHGUARD_DEBUG_ML")) == "1"
}

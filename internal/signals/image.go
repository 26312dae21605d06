package signals

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/oracle"
)

// Image signal names, in extractor order.
const (
	NeuralClassifier  = "neural_classifier"
	ColorDistribution = "color_distribution"
	EdgeConsistency   = "edge_consistency"
	TextureForensics  = "texture_forensics"
	ResolutionPattern = "resolution_pattern"
)

// ForensicMode selects the per-pixel forensic path.
type ForensicMode string

const (
	ForensicGradient ForensicMode = "gradient"
	ForensicTexture  ForensicMode = "texture"
)

// Calibration constants.
const (
	colorStdScale      = 50.0
	edgeGradientScale  = 20.0
	generationGrid     = 64
	laplacianVarCutoff = 100.0
	channelStdCutoff   = 25.0
	textureSharpWeight = 0.4
	textureFlatWeight  = 0.3

	// maxPixels bounds decode memory for hostile uploads.
	maxPixels = 64 << 20
)

// DecodeImage decodes PNG, JPEG, GIF, BMP or WebP bytes.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", analysis.ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", analysis.ErrDecode, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrDecode, err)
	}
	return img, nil
}

// ImageExtraction is the image/frame extractor output.
type ImageExtraction struct {
	Signals     analysis.Signals
	NeuralLabel string
}

// ExtractImage produces the image signals for one decoded image. labels and
// oracleErr are the image oracle's output for the same image.
func ExtractImage(img image.Image, labels []oracle.Label, oracleErr error, mode ForensicMode) ImageExtraction {
	var ext ImageExtraction
	if oracleErr != nil {
		ext.NeuralLabel = "unavailable"
		ext.Signals = append(ext.Signals, analysis.Unusable(NeuralClassifier, analysis.ImpactNegative))
	} else {
		l := oracle.SelectFakeLabel(labels)
		ext.NeuralLabel = l.Name
		ext.Signals = append(ext.Signals, analysis.NewSignal(NeuralClassifier, l.Score, analysis.ImpactNegative))
	}

	px := toNRGBA(img)
	if mode == ForensicTexture {
		ext.Signals = append(ext.Signals, analysis.NewSignal(TextureForensics, textureScore(px), analysis.ImpactNegative))
	} else {
		ext.Signals = append(ext.Signals,
			analysis.NewSignal(ColorDistribution, ColorScore(px), analysis.ImpactNegative),
			analysis.NewSignal(EdgeConsistency, EdgeScore(px), analysis.ImpactNegative),
		)
	}
	ext.Signals = append(ext.Signals, analysis.NewSignal(ResolutionPattern, ResolutionScore(img.Bounds()), analysis.ImpactNegative))
	return ext
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ColorScore is the population standard deviation of all RGB samples over
// colorStdScale, capped at 1.
func ColorScore(px *image.NRGBA) float64 {
	w, h := px.Rect.Dx(), px.Rect.Dy()
	n := float64(w * h * 3)
	if n == 0 {
		return 0
	}
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			for c := 0; c < 3; c++ {
				v := float64(row[i+c])
				sum += v
				sumSq += v * v
			}
		}
	}
	return analysis.Clamp01(stddev(sum, sumSq, n) / colorStdScale)
}

// EdgeScore is the mean absolute luma difference between vertically
// adjacent rows over edgeGradientScale, capped at 1.
func EdgeScore(px *image.NRGBA) float64 {
	w, h := px.Rect.Dx(), px.Rect.Dy()
	if h < 2 || w == 0 {
		return 0
	}
	luma := lumaPlane(px)
	var total float64
	for y := 1; y < h; y++ {
		for x := 0; x < w; x++ {
			total += math.Abs(luma[y*w+x] - luma[(y-1)*w+x])
		}
	}
	mean := total / float64((h-1)*w)
	return analysis.Clamp01(mean / edgeGradientScale)
}

// ResolutionScore is 1 when both dimensions sit on the generation grid.
func ResolutionScore(b image.Rectangle) float64 {
	if b.Dx()%generationGrid == 0 && b.Dy()%generationGrid == 0 {
		return 1
	}
	return 0
}

// textureScore flags over-smooth images: low Laplacian variance and low
// per-channel spread each add a fixed weight.
func textureScore(px *image.NRGBA) float64 {
	score := 0.0
	if laplacianVariance(px) < laplacianVarCutoff {
		score += textureSharpWeight
	}
	if meanChannelStd(px) < channelStdCutoff {
		score += textureFlatWeight
	}
	return analysis.Clamp01(score)
}

func laplacianVariance(px *image.NRGBA) float64 {
	w, h := px.Rect.Dx(), px.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	luma := lumaPlane(px)
	var sum, sumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			v := luma[i-w] + luma[i+w] + luma[i-1] + luma[i+1] - 4*luma[i]
			sum += v
			sumSq += v * v
		}
	}
	n := float64((w - 2) * (h - 2))
	sd := stddev(sum, sumSq, n)
	return sd * sd
}

func meanChannelStd(px *image.NRGBA) float64 {
	w, h := px.Rect.Dx(), px.Rect.Dy()
	n := float64(w * h)
	if n == 0 {
		return 0
	}
	var sum, sumSq [3]float64
	for y := 0; y < h; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			for c := 0; c < 3; c++ {
				v := float64(row[i+c])
				sum[c] += v
				sumSq[c] += v * v
			}
		}
	}
	return (stddev(sum[0], sumSq[0], n) + stddev(sum[1], sumSq[1], n) + stddev(sum[2], sumSq[2], n)) / 3
}

// lumaPlane converts to ITU-R 601-2 luma.
func lumaPlane(px *image.NRGBA) []float64 {
	w, h := px.Rect.Dx(), px.Rect.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+w*4]
		for x := 0; x < w; x++ {
			r, g, b := float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2])
			out[y*w+x] = (299*r + 587*g + 114*b) / 1000
		}
	}
	return out
}

func stddev(sum, sumSq, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	v := sumSq/n - mean*mean
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

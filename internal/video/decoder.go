// Package video decodes uploaded videos into sampled frames and aggregates
// per-frame scores into one temporal result.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mdobak/go-xerrors"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/logging"
)

// Frame is one sampled frame. Err is set when the frame could not be read;
// such frames are skipped by the aggregator, never scored as zero.
type Frame struct {
	Index int
	Image image.Image
	Err   error
}

// Decoder turns raw video bytes into sampled frames.
type Decoder interface {
	Decode(ctx context.Context, data []byte, policy SamplingPolicy) ([]Frame, error)
}

// SamplingMode selects how frames are picked from the stream.
type SamplingMode string

const (
	SamplePerSecond   SamplingMode = "per_second"
	SampleTargetCount SamplingMode = "target_count"
)

// SamplingPolicy controls frame selection.
type SamplingPolicy struct {
	Mode         SamplingMode
	FPS          float64
	TargetFrames int
	MaxFrames    int
}

// DefaultPolicy samples one frame per second, at most 64 frames.
func DefaultPolicy() SamplingPolicy {
	return SamplingPolicy{Mode: SamplePerSecond, FPS: 1, TargetFrames: 12, MaxFrames: 64}
}

// Rate returns the ffmpeg fps filter rate for a clip of the given duration in
// seconds. target_count spreads TargetFrames evenly over the clip; when the
// duration is unknown it falls back to FPS.
func (p SamplingPolicy) Rate(duration float64) float64 {
	fps := p.FPS
	if fps <= 0 {
		fps = 1
	}
	if p.Mode == SampleTargetCount && duration > 0 && p.TargetFrames > 0 {
		return float64(p.TargetFrames) / duration
	}
	return fps
}

// Limit is the maximum number of frames to emit.
func (p SamplingPolicy) Limit() int {
	limit := p.MaxFrames
	if p.Mode == SampleTargetCount && p.TargetFrames > 0 && (limit <= 0 || p.TargetFrames < limit) {
		limit = p.TargetFrames
	}
	if limit <= 0 {
		limit = DefaultPolicy().MaxFrames
	}
	return limit
}

// FFmpegDecoder decodes with the ffprobe and ffmpeg binaries.
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegDecoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Available reports whether both binaries resolve on PATH.
func (d *FFmpegDecoder) Available() error {
	for _, bin := range []string{d.FFmpegPath, d.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("video decoder: %w", err)
		}
	}
	return nil
}

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, policy SamplingPolicy) ([]Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty video", analysis.ErrDecode)
	}

	f, err := os.CreateTemp("", "truthguard-*.video")
	if err != nil {
		return nil, fmt.Errorf("video temp file: %w", xerrors.New(err))
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("video temp file: %w", xerrors.New(err))
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("video temp file: %w", xerrors.New(err))
	}

	duration, err := d.probeDuration(ctx, path)
	if err != nil {
		return nil, err
	}
	return d.extract(ctx, path, policy.Rate(duration), policy.Limit())
}

func (d *FFmpegDecoder) probeDuration(ctx context.Context, path string) (float64, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, processError("ffprobe", err, stderr.String())
	}
	s := strings.TrimSpace(string(out))
	if s == "" || s == "N/A" {
		return 0, nil
	}
	dur, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, nil
	}
	return dur, nil
}

func (d *FFmpegDecoder) extract(ctx context.Context, path string, rate float64, limit int) ([]Frame, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.FFmpegPath,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-vf", "fps="+strconv.FormatFloat(rate, 'f', 6, 64),
		"-frames:v", strconv.Itoa(limit),
		"-f", "image2pipe",
		"-vcodec", "ppm",
		"-",
	)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg pipe: %w", xerrors.New(err))
	}
	if err := cmd.Start(); err != nil {
		return nil, processError("ffmpeg", err, "")
	}

	frames, stopped := readFrames(stdout, limit)
	if stopped {
		// The stream cannot be resynchronised; stop ffmpeg and keep what we have.
		cancel()
		_, _ = io.Copy(io.Discard, stdout)
		_ = cmd.Wait()
		logging.Ctx(ctx).Debug().Int("frames", len(frames)).Msg("video: malformed frame, stream abandoned")
		return frames, nil
	}

	_, _ = io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil && len(frames) > 0 {
			return frames, nil
		}
		return nil, processError("ffmpeg", err, stderr.String())
	}
	return frames, nil
}

// readFrames parses up to limit frames. stopped is true when a malformed
// frame ended parsing early; that frame is included with its error.
func readFrames(r io.Reader, limit int) (frames []Frame, stopped bool) {
	pr := NewPPMReader(r)
	for len(frames) < limit {
		img, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return frames, false
		}
		if err != nil {
			frames = append(frames, Frame{Index: len(frames), Err: err})
			return frames, true
		}
		frames = append(frames, Frame{Index: len(frames), Image: img})
	}
	return frames, false
}

func processError(name string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > 512 {
		stderr = stderr[:512]
	}
	if stderr != "" {
		return fmt.Errorf("%w: %s: %s: %w", analysis.ErrDecode, name, stderr, xerrors.New(err))
	}
	return fmt.Errorf("%w: %s: %w", analysis.ErrDecode, name, xerrors.New(err))
}

package video

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
)

// ErrMalformedFrame marks a PPM frame whose header or pixel data is invalid.
// The stream cannot be resynchronised after one.
var ErrMalformedFrame = errors.New("malformed ppm frame")

const maxFramePixels = 32 << 20

// PPMReader reads a concatenated stream of binary (P6) PPM images, the format
// ffmpeg writes with -f image2pipe -vcodec ppm.
type PPMReader struct {
	r *bufio.Reader
}

func NewPPMReader(r io.Reader) *PPMReader {
	return &PPMReader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next returns the next frame, or io.EOF at a clean end of stream.
func (p *PPMReader) Next() (*image.NRGBA, error) {
	if _, err := p.r.Peek(1); err == io.EOF {
		return nil, io.EOF
	}

	magic, err := p.token()
	if err != nil {
		return nil, err
	}
	if magic != "P6" {
		return nil, fmt.Errorf("%w: magic %q", ErrMalformedFrame, magic)
	}

	var dims [3]int
	for i := range dims {
		tok, err := p.token()
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad header field %q", ErrMalformedFrame, tok)
		}
		dims[i] = n
	}
	w, h, maxval := dims[0], dims[1], dims[2]
	if maxval > 65535 {
		return nil, fmt.Errorf("%w: maxval %d", ErrMalformedFrame, maxval)
	}
	if w*h > maxFramePixels {
		return nil, fmt.Errorf("%w: frame %dx%d too large", ErrMalformedFrame, w, h)
	}

	// Exactly one whitespace byte separates the header from the raster.
	if _, err := p.r.ReadByte(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	sample := 1
	if maxval > 255 {
		sample = 2
	}
	raw := make([]byte, w*h*3*sample)
	if _, err := io.ReadFull(p.r, raw); err != nil {
		return nil, fmt.Errorf("%w: short raster: %v", ErrMalformedFrame, err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, o := 0, 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			var v int
			if sample == 2 {
				v = int(raw[o])<<8 | int(raw[o+1])
			} else {
				v = int(raw[o])
			}
			o += sample
			if v > maxval {
				v = maxval
			}
			img.Pix[i*4+c] = uint8(v * 255 / maxval)
		}
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// token reads one whitespace-delimited header token, skipping # comments.
func (p *PPMReader) token() (string, error) {
	var buf []byte
	for {
		b, err := p.r.ReadByte()
		if err != nil {
			if len(buf) > 0 && err == io.EOF {
				return string(buf), nil
			}
			return "", fmt.Errorf("%w: truncated header", ErrMalformedFrame)
		}
		switch {
		case b == '#' && len(buf) == 0:
			if _, err := p.r.ReadString('\n'); err != nil {
				return "", fmt.Errorf("%w: truncated comment", ErrMalformedFrame)
			}
		case isSpace(b):
			if len(buf) > 0 {
				return string(buf), p.r.UnreadByte()
			}
		default:
			buf = append(buf, b)
			if len(buf) > 16 {
				return "", fmt.Errorf("%w: header token too long", ErrMalformedFrame)
			}
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

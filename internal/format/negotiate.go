// Package format picks the picture format handed to the codec and converts
// producer frames into it.
package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

var (
	ErrUnsupportedFormat     = errors.New("pixel format not supported by codec")
	ErrIncompleteFormat      = errors.New("incomplete format description")
	ErrUnsupportedConversion = errors.New("no converter for format pair")
)

// Negotiate returns the format the codec will be opened with.
//
// A non-None override must appear in supported. Otherwise the supported
// format losing the least information relative to source is chosen, source
// itself when listed. An empty list means the codec takes anything and
// source is used.
func Negotiate(source pixfmt.PixelFormat, supported []pixfmt.PixelFormat, override pixfmt.PixelFormat) (pixfmt.PixelFormat, error) {
	if override != pixfmt.None {
		if len(supported) == 0 || contains(supported, override) {
			return override, nil
		}
		return pixfmt.None, fmt.Errorf("%w: %s (codec accepts %s)", ErrUnsupportedFormat, override, list(supported))
	}

	if len(supported) == 0 || contains(supported, source) {
		return source, nil
	}

	best, bestLoss := pixfmt.None, 0
	for _, f := range supported {
		d, ok := f.Describe()
		if !ok || d.Hardware {
			continue
		}
		if l := Loss(source, f); best == pixfmt.None || l < bestLoss {
			best, bestLoss = f, l
		}
	}
	if best == pixfmt.None {
		return pixfmt.None, fmt.Errorf("%w: no software format among %s", ErrUnsupportedFormat, list(supported))
	}
	return best, nil
}

// Loss scores how much information converting src to dst discards. Lower is
// better and identical formats score 0. Chroma subsampling and depth loss
// dominate, a colour model change costs less, and padding (more depth or
// less subsampling than the source has) costs least. Alpha is not weighed.
func Loss(src, dst pixfmt.PixelFormat) int {
	if src == dst {
		return 0
	}
	s, ok1 := src.Describe()
	d, ok2 := dst.Describe()
	if !ok1 || !ok2 {
		return 1 << 16
	}

	loss := 0
	if s.Components > 1 && d.Components == 1 {
		loss += 256
	}
	if d.Depth < s.Depth {
		loss += (s.Depth - d.Depth) * 32
	} else {
		loss += d.Depth - s.Depth
	}
	for _, pair := range [][2]int{{s.ChromaShiftW, d.ChromaShiftW}, {s.ChromaShiftH, d.ChromaShiftH}} {
		if pair[1] > pair[0] {
			loss += (pair[1] - pair[0]) * 8
		} else {
			loss += pair[0] - pair[1]
		}
	}
	if s.RGB != d.RGB {
		loss += 4
	}
	return loss
}

func contains(formats []pixfmt.PixelFormat, f pixfmt.PixelFormat) bool {
	for _, g := range formats {
		if g == f {
			return true
		}
	}
	return false
}

func list(formats []pixfmt.PixelFormat) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}

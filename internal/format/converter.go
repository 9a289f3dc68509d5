package format

import (
	"fmt"
	"strings"

	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Converter writes src into dst. Both frames must match the descriptions the
// converter was built for.
type Converter interface {
	Convert(dst, src *frame.Frame) error
}

// ConverterFactory builds converters for pairs the built-in ones do not
// cover. It returns ErrUnsupportedConversion to pass.
type ConverterFactory interface {
	NewConverter(src, dst pixfmt.VideoInfo) (Converter, error)
}

// FactoryFunc adapts a function to ConverterFactory
type FactoryFunc func(src, dst pixfmt.VideoInfo) (Converter, error)

func (fn FactoryFunc) NewConverter(src, dst pixfmt.VideoInfo) (Converter, error) {
	return fn(src, dst)
}

// NewConverter builds a converter from src to dst. Size, format, range and
// colour space must be set on both sides; an incomplete description fails
// immediately with ErrIncompleteFormat. Identical descriptions yield a plane
// copy. Built-in converters are tried before the factories, in order.
func NewConverter(src, dst pixfmt.VideoInfo, factories ...ConverterFactory) (Converter, error) {
	if m := src.Missing(); len(m) > 0 {
		return nil, fmt.Errorf("%w: source is missing %s", ErrIncompleteFormat, strings.Join(m, ", "))
	}
	if m := dst.Missing(); len(m) > 0 {
		return nil, fmt.Errorf("%w: target is missing %s", ErrIncompleteFormat, strings.Join(m, ", "))
	}

	if src == dst {
		return planeCopy{}, nil
	}
	if c := nativeConverter(src, dst); c != nil {
		return c, nil
	}
	for _, f := range factories {
		c, err := f.NewConverter(src, dst)
		if err == nil {
			return c, nil
		}
		if !isUnsupported(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupportedConversion, src, dst)
}

// Negotiated is the outcome of format negotiation for one session
type Negotiated struct {
	Source pixfmt.VideoInfo
	Target pixfmt.VideoInfo
	// Converter is nil when Source and Target are identical
	Converter Converter
}

// NewNegotiated builds the conversion step between src and dst
func NewNegotiated(src, dst pixfmt.VideoInfo, factories ...ConverterFactory) (*Negotiated, error) {
	c, err := NewConverter(src, dst, factories...)
	if err != nil {
		return nil, err
	}
	n := &Negotiated{Source: src, Target: dst}
	if _, copyOnly := c.(planeCopy); !copyOnly {
		n.Converter = c
	}
	return n, nil
}

// Identical reports whether frames are copied without conversion
func (n *Negotiated) Identical() bool {
	return n.Converter == nil
}

// Convert fills dst from src, converting or copying planes
func (n *Negotiated) Convert(dst, src *frame.Frame) error {
	if n.Converter == nil {
		return CopyPlanes(dst, src)
	}
	return n.Converter.Convert(dst, src)
}

type planeCopy struct{}

func (planeCopy) Convert(dst, src *frame.Frame) error {
	return CopyPlanes(dst, src)
}

// CopyPlanes copies every plane of src into dst. Subsampled planes copy
// fewer rows. Planes with equal linesizes are copied whole, otherwise row by
// row using the smaller linesize.
func CopyPlanes(dst, src *frame.Frame) error {
	if dst.Format != src.Format || dst.Width != src.Width || dst.Height != src.Height {
		return fmt.Errorf("cannot copy %dx%d %s into %dx%d %s",
			src.Width, src.Height, src.Format, dst.Width, dst.Height, dst.Format)
	}
	n := src.Format.Planes()
	if len(src.Planes) < n || len(dst.Planes) < n {
		return fmt.Errorf("%s needs %d planes, have %d and %d", src.Format, n, len(src.Planes), len(dst.Planes))
	}

	for i := 0; i < n; i++ {
		rows := src.Format.PlaneHeight(i, src.Height)
		sls, dls := src.Linesize[i], dst.Linesize[i]
		s, d := src.Planes[i], dst.Planes[i]

		if sls == dls {
			size := min(rows*sls, len(s), len(d))
			copy(d[:size], s[:size])
			continue
		}

		width := min(sls, dls)
		for y := 0; y < rows; y++ {
			so, do := y*sls, y*dls
			if so >= len(s) || do >= len(d) {
				break
			}
			copy(d[do:min(do+width, len(d))], s[so:min(so+width, len(s))])
		}
	}
	return nil
}

func checkFrames(dst, src *frame.Frame, dstInfo, srcInfo pixfmt.VideoInfo) error {
	if !src.Matches(srcInfo) {
		return fmt.Errorf("source frame is %dx%d %s, converter expects %s", src.Width, src.Height, src.Format, srcInfo)
	}
	if !dst.Matches(dstInfo) {
		return fmt.Errorf("target frame is %dx%d %s, converter expects %s", dst.Width, dst.Height, dst.Format, dstInfo)
	}
	return nil
}

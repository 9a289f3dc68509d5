package frame

import (
	"fmt"

	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Frame is one uncompressed picture. It carries either host-memory planes or
// a GPU surface, never both.
type Frame struct {
	Width  int
	Height int
	Format pixfmt.PixelFormat
	Range  pixfmt.ColorRange
	Space  pixfmt.ColorSpace
	PTS    int64

	Planes   [][]byte
	Linesize []int

	// Surface holds the GPU texture in zero-copy mode
	Surface any

	// Native is the handle of the backend that allocated the frame, e.g. an
	// AVFrame whose buffers back Planes.
	Native any

	id    uint64
	state state
}

type state uint8

const (
	stateHeld state = iota
	stateFree
	stateInFlight
	stateGone
)

// Info returns the frame's negotiated parameters
func (f *Frame) Info() pixfmt.VideoInfo {
	return pixfmt.VideoInfo{
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		Range:  f.Range,
		Space:  f.Space,
	}
}

// ID is unique per allocation within a pool
func (f *Frame) ID() uint64 {
	return f.id
}

// Matches reports whether f can be reused for pictures of info's geometry
func (f *Frame) Matches(info pixfmt.VideoInfo) bool {
	return f.Width == info.Width && f.Height == info.Height && f.Format == info.Format
}

// Validate checks that every plane holds enough rows for the declared format
func (f *Frame) Validate() error {
	if f.Surface != nil {
		return nil
	}
	n := f.Format.Planes()
	if len(f.Planes) < n || len(f.Linesize) < n {
		return fmt.Errorf("frame has %d planes, %s needs %d", len(f.Planes), f.Format, n)
	}
	for i := 0; i < n; i++ {
		rows := f.Format.PlaneHeight(i, f.Height)
		rowBytes := f.Format.PlaneRowBytes(i, f.Width)
		if f.Linesize[i] < rowBytes {
			return fmt.Errorf("plane %d linesize %d below row size %d", i, f.Linesize[i], rowBytes)
		}
		if need := (rows-1)*f.Linesize[i] + rowBytes; len(f.Planes[i]) < need {
			return fmt.Errorf("plane %d holds %d bytes, needs %d", i, len(f.Planes[i]), need)
		}
	}
	return nil
}

// New allocates a host-memory frame with linesizes rounded up to align bytes
func New(info pixfmt.VideoInfo, align int) (*Frame, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", info.Width, info.Height)
	}
	d, ok := info.Format.Describe()
	if !ok {
		return nil, fmt.Errorf("unknown pixel format %s", info.Format)
	}
	if d.Hardware {
		return nil, fmt.Errorf("%s frames must be allocated by the device", info.Format)
	}
	if align < 1 {
		align = 1
	}

	f := &Frame{
		Width:  info.Width,
		Height: info.Height,
		Format: info.Format,
		Range:  info.Range,
		Space:  info.Space,
	}
	n := info.Format.Planes()
	f.Planes = make([][]byte, n)
	f.Linesize = make([]int, n)
	for i := 0; i < n; i++ {
		ls := alignUp(info.Format.PlaneRowBytes(i, info.Width), align)
		f.Linesize[i] = ls
		f.Planes[i] = make([]byte, ls*info.Format.PlaneHeight(i, info.Height))
	}
	return f, nil
}

func alignUp(v, align int) int {
	return (v + align - 1) / align * align
}

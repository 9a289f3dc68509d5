package pixfmt

import (
	"fmt"
	"strings"
)

// PixelFormat identifies a picture memory layout
type PixelFormat int

const (
	None PixelFormat = iota
	YUV420P
	NV12
	YVYU422
	YUYV422
	UYVY422
	RGBA
	BGRA
	BGR0
	GRAY8
	YUV444P
	BGR24
	YUV422P
	YUVA420P
	YUVA422P
	YUVA444P
	YUV422P10
	YUV444P10
	D3D11 // GPU-resident surface, no host planes
)

// plane describes one memory plane of a format
type plane struct {
	step   int  // bytes per horizontal sample
	chroma bool // subject to chroma subsampling
}

// Descriptor describes the layout and colour model of a pixel format
type Descriptor struct {
	Name         string
	Aliases      []string
	ChromaShiftW int
	ChromaShiftH int
	Depth        int // bits per component
	Components   int
	RGB          bool
	Alpha        bool
	Hardware     bool
	planes       []plane
}

var descriptors = map[PixelFormat]Descriptor{
	YUV420P: {Name: "yuv420p", Aliases: []string{"i420"}, ChromaShiftW: 1, ChromaShiftH: 1, Depth: 8, Components: 3,
		planes: []plane{{1, false}, {1, true}, {1, true}}},
	NV12: {Name: "nv12", ChromaShiftW: 1, ChromaShiftH: 1, Depth: 8, Components: 3,
		planes: []plane{{1, false}, {2, true}}},
	YVYU422: {Name: "yvyu422", ChromaShiftW: 1, Depth: 8, Components: 3,
		planes: []plane{{2, false}}},
	YUYV422: {Name: "yuyv422", Aliases: []string{"yuy2"}, ChromaShiftW: 1, Depth: 8, Components: 3,
		planes: []plane{{2, false}}},
	UYVY422: {Name: "uyvy422", ChromaShiftW: 1, Depth: 8, Components: 3,
		planes: []plane{{2, false}}},
	RGBA: {Name: "rgba", Depth: 8, Components: 4, RGB: true, Alpha: true,
		planes: []plane{{4, false}}},
	BGRA: {Name: "bgra", Depth: 8, Components: 4, RGB: true, Alpha: true,
		planes: []plane{{4, false}}},
	BGR0: {Name: "bgr0", Aliases: []string{"bgrx"}, Depth: 8, Components: 3, RGB: true,
		planes: []plane{{4, false}}},
	GRAY8: {Name: "gray", Aliases: []string{"gray8", "y800"}, Depth: 8, Components: 1,
		planes: []plane{{1, false}}},
	YUV444P: {Name: "yuv444p", Aliases: []string{"i444"}, Depth: 8, Components: 3,
		planes: []plane{{1, false}, {1, true}, {1, true}}},
	BGR24: {Name: "bgr24", Aliases: []string{"bgr3"}, Depth: 8, Components: 3, RGB: true,
		planes: []plane{{3, false}}},
	YUV422P: {Name: "yuv422p", Aliases: []string{"i422"}, ChromaShiftW: 1, Depth: 8, Components: 3,
		planes: []plane{{1, false}, {1, true}, {1, true}}},
	YUVA420P: {Name: "yuva420p", Aliases: []string{"i40a"}, ChromaShiftW: 1, ChromaShiftH: 1, Depth: 8, Components: 4, Alpha: true,
		planes: []plane{{1, false}, {1, true}, {1, true}, {1, false}}},
	YUVA422P: {Name: "yuva422p", Aliases: []string{"i42a"}, ChromaShiftW: 1, Depth: 8, Components: 4, Alpha: true,
		planes: []plane{{1, false}, {1, true}, {1, true}, {1, false}}},
	YUVA444P: {Name: "yuva444p", Aliases: []string{"yuva"}, Depth: 8, Components: 4, Alpha: true,
		planes: []plane{{1, false}, {1, true}, {1, true}, {1, false}}},
	YUV422P10: {Name: "yuv422p10le", Aliases: []string{"yuv422p10"}, ChromaShiftW: 1, Depth: 10, Components: 3,
		planes: []plane{{2, false}, {2, true}, {2, true}}},
	YUV444P10: {Name: "yuv444p10le", Aliases: []string{"yuv444p10"}, Depth: 10, Components: 3,
		planes: []plane{{2, false}, {2, true}, {2, true}}},
	D3D11: {Name: "d3d11", Hardware: true},
}

// Describe returns the descriptor for f. ok is false for None and unknown values.
func (f PixelFormat) Describe() (Descriptor, bool) {
	d, ok := descriptors[f]
	return d, ok
}

func (f PixelFormat) String() string {
	if f == None {
		return "none"
	}
	if d, ok := descriptors[f]; ok {
		return d.Name
	}
	return fmt.Sprintf("pixfmt(%d)", int(f))
}

// Planes returns the number of host-memory planes
func (f PixelFormat) Planes() int {
	return len(descriptors[f].planes)
}

// PlaneHeight returns the row count of plane i for a picture of height h.
// Only chroma planes are shortened by the vertical chroma shift.
func (f PixelFormat) PlaneHeight(i, h int) int {
	d := descriptors[f]
	if i < 0 || i >= len(d.planes) {
		return 0
	}
	if d.planes[i].chroma {
		return ceilShift(h, d.ChromaShiftH)
	}
	return h
}

// PlaneRowBytes returns the number of meaningful bytes in one row of plane i
func (f PixelFormat) PlaneRowBytes(i, w int) int {
	d := descriptors[f]
	if i < 0 || i >= len(d.planes) {
		return 0
	}
	p := d.planes[i]
	if p.chroma {
		return ceilShift(w, d.ChromaShiftW) * p.step
	}
	return w * p.step
}

func ceilShift(v, shift int) int {
	return -((-v) >> shift)
}

// ParseFormat resolves a format name such as "nv12" or "i420".
// The empty string and "auto" resolve to None.
func ParseFormat(name string) (PixelFormat, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || n == "auto" || n == "none" {
		return None, nil
	}
	for f, d := range descriptors {
		if d.Name == n {
			return f, nil
		}
		for _, a := range d.Aliases {
			if a == n {
				return f, nil
			}
		}
	}
	return None, fmt.Errorf("unknown pixel format %q", name)
}

// Formats lists every known software format in declaration order
func Formats() []PixelFormat {
	var out []PixelFormat
	for f := YUV420P; f <= YUV444P10; f++ {
		out = append(out, f)
	}
	return out
}

package ffcodec

import (
	"fmt"
	"unsafe"

	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Allocator creates frames whose planes live in refcounted AVFrame buffers.
// Frame.Native holds the *ffmpeg.AVFrame.
type Allocator struct {
	Align int
}

func (a Allocator) Allocate(info pixfmt.VideoInfo) (*frame.Frame, error) {
	pf := AVPixelFormat(info.Format)
	if pf == ffmpeg.AVPixFmtNone {
		return nil, fmt.Errorf("no FFmpeg equivalent for %s", info.Format)
	}

	av := ffmpeg.AVFrameAlloc()
	if av == nil {
		return nil, fmt.Errorf("failed to allocate frame")
	}
	av.SetWidth(info.Width)
	av.SetHeight(info.Height)
	av.SetFormat(int(pf))

	ret, err := ffmpeg.AVFrameGetBuffer(av, a.Align)
	if err != nil {
		ffmpeg.AVFrameFree(&av)
		return nil, fmt.Errorf("failed to allocate frame buffer: %w", err)
	}
	if ret < 0 {
		ffmpeg.AVFrameFree(&av)
		return nil, fmt.Errorf("failed to allocate frame buffer: %d", ret)
	}

	f := &frame.Frame{
		Width:  info.Width,
		Height: info.Height,
		Format: info.Format,
		Range:  info.Range,
		Space:  info.Space,
		Native: av,
	}
	mapPlanes(f, av)
	return f, nil
}

func (Allocator) Free(f *frame.Frame) {
	if av, ok := f.Native.(*ffmpeg.AVFrame); ok {
		ffmpeg.AVFrameFree(&av)
	}
	f.Native = nil
	f.Planes = nil
	f.Linesize = nil
}

// mapPlanes points f's planes at the AVFrame's buffers
func mapPlanes(f *frame.Frame, av *ffmpeg.AVFrame) {
	n := f.Format.Planes()
	f.Planes = make([][]byte, n)
	f.Linesize = make([]int, n)
	for i := 0; i < n; i++ {
		ls := int(av.Linesize().Get(uintptr(i)))
		size := ls * f.Format.PlaneHeight(i, f.Height)
		ptr := av.Data().Get(uintptr(i))
		f.Planes[i] = (*[1 << 30]byte)(unsafe.Pointer(ptr))[:size:size]
		f.Linesize[i] = ls
	}
}

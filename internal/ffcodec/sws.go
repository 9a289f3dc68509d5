package ffcodec

import (
	"fmt"

	ffmpeg "github.com/csnewman/ffmpeg-go"

	"github.com/linuxmatters/encodebridge/internal/format"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Swscale is a format.ConverterFactory backed by libswscale. It covers the
// pairs the built-in converters do not, including scaling.
var Swscale = format.FactoryFunc(NewScaler)

// Scaler converts between two fixed descriptions with swscale
type Scaler struct {
	ctx      *ffmpeg.SwsContext
	src, dst pixfmt.VideoInfo
	srcFrame *ffmpeg.AVFrame
	dstFrame *ffmpeg.AVFrame
}

// NewScaler returns format.ErrUnsupportedConversion when either side has no
// FFmpeg equivalent or is a hardware format
func NewScaler(src, dst pixfmt.VideoInfo) (format.Converter, error) {
	srcFmt, dstFmt := AVPixelFormat(src.Format), AVPixelFormat(dst.Format)
	if srcFmt == ffmpeg.AVPixFmtNone || dstFmt == ffmpeg.AVPixFmtNone ||
		src.Format.Describe().Hardware || dst.Format.Describe().Hardware {
		return nil, fmt.Errorf("%w: swscale %s -> %s", format.ErrUnsupportedConversion, src, dst)
	}

	ctx := ffmpeg.SwsAllocContext()
	if ctx == nil {
		return nil, fmt.Errorf("failed to allocate swscale context")
	}
	ctx.SetSrcW(src.Width)
	ctx.SetSrcH(src.Height)
	ctx.SetSrcFormat(int(srcFmt))
	ctx.SetDstW(dst.Width)
	ctx.SetDstH(dst.Height)
	ctx.SetDstFormat(int(dstFmt))
	ctx.SetFlags(uint(ffmpeg.SwsBilinear))

	ret, err := ffmpeg.SwsInitContext(ctx, nil, nil)
	if err != nil {
		ffmpeg.SwsFreecontext(ctx)
		return nil, fmt.Errorf("failed to initialise swscale: %w", err)
	}
	if ret < 0 {
		ffmpeg.SwsFreecontext(ctx)
		return nil, fmt.Errorf("failed to initialise swscale: %d", ret)
	}

	s := &Scaler{ctx: ctx, src: src, dst: dst}
	alloc := Allocator{Align: frame.DefaultAlignment}
	sf, err := alloc.Allocate(src)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.srcFrame = sf.Native.(*ffmpeg.AVFrame)
	df, err := alloc.Allocate(dst)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.dstFrame = df.Native.(*ffmpeg.AVFrame)

	for _, f := range []struct {
		av   *ffmpeg.AVFrame
		info pixfmt.VideoInfo
	}{{s.srcFrame, src}, {s.dstFrame, dst}} {
		f.av.SetColorRange(avRange(f.info.Range))
		f.av.SetColorspace(avSpace(f.info.Space))
		f.av.SetColorPrimaries(avPrimaries(f.info.Space))
		f.av.SetColorTrc(avTransfer(f.info.Space))
	}
	return s, nil
}

// Convert stages src into the scaler's own AVFrame unless it already is one,
// and scales straight into dst when dst is AVFrame-backed
func (s *Scaler) Convert(dst, src *frame.Frame) error {
	if !src.Matches(s.src) || !dst.Matches(s.dst) {
		return fmt.Errorf("swscale: frames do not match %s -> %s", s.src, s.dst)
	}

	in, ok := src.Native.(*ffmpeg.AVFrame)
	if !ok {
		in = s.srcFrame
		staged := &frame.Frame{Width: src.Width, Height: src.Height, Format: src.Format}
		mapPlanes(staged, in)
		if err := format.CopyPlanes(staged, src); err != nil {
			return err
		}
	}

	out, direct := dst.Native.(*ffmpeg.AVFrame)
	if !direct {
		out = s.dstFrame
	}

	ret, err := ffmpeg.SwsScaleFrame(s.ctx, out, in)
	if err != nil {
		return fmt.Errorf("swscale failed: %w", err)
	}
	if ret < 0 {
		return fmt.Errorf("swscale failed: %d", ret)
	}

	if !direct {
		scaled := &frame.Frame{Width: dst.Width, Height: dst.Height, Format: dst.Format}
		mapPlanes(scaled, out)
		return format.CopyPlanes(dst, scaled)
	}
	return nil
}

func (s *Scaler) Close() {
	if s.srcFrame != nil {
		ffmpeg.AVFrameFree(&s.srcFrame)
	}
	if s.dstFrame != nil {
		ffmpeg.AVFrameFree(&s.dstFrame)
	}
	if s.ctx != nil {
		ffmpeg.SwsFreecontext(s.ctx)
		s.ctx = nil
	}
}

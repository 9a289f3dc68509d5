// Package ffcodec implements codec.Codec over FFmpeg's libavcodec encoders.
package ffcodec

import (
	"errors"
	"fmt"
	"unsafe"

	ffmpeg "github.com/csnewman/ffmpeg-go"
	"github.com/kataras/golog"

	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/codec"
	"github.com/linuxmatters/encodebridge/internal/format"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/hwframe"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// ErrNotFound is returned by Open for an unknown encoder name
var ErrNotFound = errors.New("encoder not found")

// Codec is one libavcodec encoder context
type Codec struct {
	name    string
	av      *ffmpeg.AVCodec
	ctx     *ffmpeg.AVCodecContext
	pkt     *ffmpeg.AVPacket
	scratch *ffmpeg.AVFrame
	buf     []byte
	alloc   Allocator
	log     *golog.Logger
}

// Open finds the encoder by name, e.g. "libx264" or "h264_nvenc", and
// allocates its context. The codec is configured and opened by the session.
func Open(name string) (*Codec, error) {
	encName := ffmpeg.ToCStr(name)
	defer encName.Free()

	av := ffmpeg.AVCodecFindEncoderByName(encName)
	if av == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	ctx := ffmpeg.AVCodecAllocContext3(av)
	if ctx == nil {
		return nil, fmt.Errorf("failed to allocate codec context for %s", name)
	}
	pkt := ffmpeg.AVPacketAlloc()
	if pkt == nil {
		ffmpeg.AVCodecFreeContext(&ctx)
		return nil, fmt.Errorf("failed to allocate packet")
	}

	return &Codec{
		name:  name,
		av:    av,
		ctx:   ctx,
		pkt:   pkt,
		alloc: Allocator{Align: frame.DefaultAlignment},
		log:   logging.Child("ffcodec"),
	}, nil
}

func (c *Codec) Name() string {
	return c.name
}

func (c *Codec) Bitstream() bitstream.Codec {
	switch c.av.Id() {
	case ffmpeg.AVCodecIdH264:
		return bitstream.H264
	case ffmpeg.AVCodecIdHevc:
		return bitstream.HEVC
	}
	return bitstream.OutOfBand
}

func (c *Codec) Capabilities() codec.Capabilities {
	flags := int(c.av.Capabilities())
	var caps codec.Capabilities
	for _, m := range []struct {
		av   int
		flag codec.Capabilities
	}{
		{int(ffmpeg.AVCodecCapDelay), codec.CapDelay},
		{int(ffmpeg.AVCodecCapFrameThreads), codec.CapFrameThreads},
		{int(ffmpeg.AVCodecCapSliceThreads), codec.CapSliceThreads},
		{int(ffmpeg.AVCodecCapHardware), codec.CapHardware},
	} {
		if flags&m.av != 0 {
			caps |= m.flag
		}
	}
	if desc := ffmpeg.AVCodecDescriptorGet(c.av.Id()); desc != nil && int(desc.Props())&int(ffmpeg.AVCodecPropIntraOnly) != 0 {
		caps |= codec.CapIntraOnly
	}
	return caps
}

// SupportedFormats lists the encoder's formats that have a pixfmt
// equivalent, in the encoder's order of preference
func (c *Codec) SupportedFormats() []pixfmt.PixelFormat {
	list := c.av.PixFmts()
	if list == nil {
		return nil
	}
	var formats []pixfmt.PixelFormat
	for i := uintptr(0); ; i++ {
		av := list.Get(i)
		if av == ffmpeg.AVPixFmtNone {
			break
		}
		if f := PixelFormat(av); f != pixfmt.None {
			formats = append(formats, f)
		}
	}
	return formats
}

func (c *Codec) Configure(s codec.Settings) error {
	if s.Device != nil {
		return fmt.Errorf("%s: texture input: %w", c.name, hwframe.ErrUnsupported)
	}
	pf := AVPixelFormat(s.Format)
	if pf == ffmpeg.AVPixFmtNone {
		return fmt.Errorf("%s: no FFmpeg equivalent for %s", c.name, s.Format)
	}

	c.ctx.SetWidth(s.Width)
	c.ctx.SetHeight(s.Height)
	c.ctx.SetPixFmt(pf)
	c.ctx.SetTimeBase(ffmpeg.AVMakeQ(s.TimeBase.Num, s.TimeBase.Den))
	c.ctx.SetFramerate(ffmpeg.AVMakeQ(s.FrameRate.Num, s.FrameRate.Den))
	if s.GOPSize > 0 {
		c.ctx.SetGopSize(s.GOPSize)
		c.ctx.SetKeyintMin(s.KeyintMin)
	}
	if s.Threads > 0 {
		c.ctx.SetThreadCount(s.Threads)
	}
	c.ctx.SetStrictStdCompliance(s.Compliance)

	c.ctx.SetColorRange(avRange(s.Range))
	c.ctx.SetColorspace(avSpace(s.Space))
	c.ctx.SetColorPrimaries(avPrimaries(s.Space))
	c.ctx.SetColorTrc(avTransfer(s.Space))
	return nil
}

// SetOption writes key into the context's option table, searching the
// encoder's private options as well
func (c *Codec) SetOption(key, value string) error {
	k := ffmpeg.ToCStr(key)
	defer k.Free()
	v := ffmpeg.ToCStr(value)
	defer v.Free()

	ret, err := ffmpeg.AVOptSet(c.ctx.RawPtr(), k, v, ffmpeg.AVOptSearchChildren)
	if err != nil {
		return err
	}
	if ret < 0 {
		return fmt.Errorf("error code %d", ret)
	}
	return nil
}

func (c *Codec) Open() error {
	ret, err := ffmpeg.AVCodecOpen2(c.ctx, c.av, nil)
	if err != nil {
		return fmt.Errorf("failed to open codec: %w", err)
	}
	if ret < 0 {
		return fmt.Errorf("failed to open codec: %d", ret)
	}
	c.log.Debugf("opened %s", c.name)
	return nil
}

// Send submits f. Frames allocated by this codec are passed by reference;
// any other frame is copied into a scratch AVFrame first.
func (c *Codec) Send(f *frame.Frame) error {
	if f == nil {
		ret, err := ffmpeg.AVCodecSendFrame(c.ctx, nil)
		return avError("failed to send end of input", ret, err)
	}

	av, err := c.avFrame(f)
	if err != nil {
		return err
	}
	av.SetPts(f.PTS)
	av.SetColorRange(avRange(f.Range))
	av.SetColorspace(avSpace(f.Space))
	av.SetColorPrimaries(avPrimaries(f.Space))
	av.SetColorTrc(avTransfer(f.Space))

	ret, err := ffmpeg.AVCodecSendFrame(c.ctx, av)
	return avError("failed to send frame to encoder", ret, err)
}

func (c *Codec) avFrame(f *frame.Frame) (*ffmpeg.AVFrame, error) {
	if av, ok := f.Native.(*ffmpeg.AVFrame); ok {
		return av, nil
	}

	if c.scratch == nil {
		tmp, err := c.alloc.Allocate(f.Info())
		if err != nil {
			return nil, err
		}
		c.scratch = tmp.Native.(*ffmpeg.AVFrame)
	}
	// the encoder may still reference the previous picture's buffers
	ret, err := ffmpeg.AVFrameMakeWritable(c.scratch)
	if err != nil || ret < 0 {
		return nil, avError("failed to make scratch frame writable", ret, err)
	}
	dst := &frame.Frame{Width: f.Width, Height: f.Height, Format: f.Format}
	mapPlanes(dst, c.scratch)
	if err := format.CopyPlanes(dst, f); err != nil {
		return nil, err
	}
	return c.scratch, nil
}

// Receive copies the next packet into a buffer owned by the codec, valid
// until the following call
func (c *Codec) Receive(p *codec.Packet) error {
	ret, err := ffmpeg.AVCodecReceivePacket(c.ctx, c.pkt)
	if err := avError("failed to receive packet", ret, err); err != nil {
		return err
	}
	defer ffmpeg.AVPacketUnref(c.pkt)

	size := c.pkt.Size()
	data := (*[1 << 30]byte)(unsafe.Pointer(c.pkt.Data()))[:size:size]
	c.buf = append(c.buf[:0], data...)

	*p = codec.Packet{
		Data:     c.buf,
		PTS:      c.pkt.Pts(),
		DTS:      c.pkt.Dts(),
		Keyframe: int(c.pkt.Flags())&int(ffmpeg.AVPktFlagKey) != 0,
	}
	return nil
}

func (c *Codec) Extradata() []byte {
	size := c.ctx.ExtradataSize()
	ptr := c.ctx.Extradata()
	if size <= 0 || ptr == nil {
		return nil
	}
	data := (*[1 << 30]byte)(unsafe.Pointer(ptr))[:size:size]
	return append([]byte(nil), data...)
}

// Allocate makes the codec the session pool's allocator, so pictures are
// converted straight into refcounted AVFrame buffers
func (c *Codec) Allocate(info pixfmt.VideoInfo) (*frame.Frame, error) {
	return c.alloc.Allocate(info)
}

func (c *Codec) Free(f *frame.Frame) {
	c.alloc.Free(f)
}

func (c *Codec) Close() error {
	if c.scratch != nil {
		ffmpeg.AVFrameFree(&c.scratch)
	}
	if c.pkt != nil {
		ffmpeg.AVPacketFree(&c.pkt)
	}
	if c.ctx != nil {
		ffmpeg.AVCodecFreeContext(&c.ctx)
	}
	return nil
}

// avError maps FFmpeg's EAGAIN and EOF onto the codec package sentinels
func avError(op string, ret int, err error) error {
	switch {
	case errors.Is(err, ffmpeg.EAgain):
		return codec.ErrAgain
	case errors.Is(err, ffmpeg.AVErrorEOF):
		return codec.ErrEOF
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	case ret < 0:
		return fmt.Errorf("%s: %d", op, ret)
	}
	return nil
}

// Package codec defines the contract between the encode session and a
// stateful block encoder: push pictures in, pull packets out, each side free
// to report that it is busy.
package codec

import (
	"errors"
	"strings"

	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/hwframe"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

var (
	// ErrAgain is returned by Send when input is full until a packet is
	// received, and by Receive when no packet is ready yet
	ErrAgain = errors.New("resource temporarily unavailable")

	// ErrEOF is returned once the codec has been flushed and emitted
	// everything
	ErrEOF = errors.New("end of stream")
)

// Capabilities are the flags a codec advertises
type Capabilities uint32

const (
	// CapDelay means the codec buffers frames and must be flushed
	CapDelay Capabilities = 1 << iota
	CapFrameThreads
	CapSliceThreads
	// CapHardware means the codec can encode GPU surfaces
	CapHardware
	// CapIntraOnly codecs have no keyframe interval
	CapIntraOnly
)

func (c Capabilities) Has(flag Capabilities) bool {
	return c&flag == flag
}

func (c Capabilities) String() string {
	var names []string
	for _, f := range []struct {
		flag Capabilities
		name string
	}{
		{CapDelay, "delay"},
		{CapFrameThreads, "frame-threads"},
		{CapSliceThreads, "slice-threads"},
		{CapHardware, "hardware"},
		{CapIntraOnly, "intra-only"},
	} {
		if c.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Rational is a fraction such as a frame rate or time base
type Rational struct {
	Num int
	Den int
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns Den/Num
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Settings are applied to a codec before it is opened
type Settings struct {
	Width  int
	Height int
	// Format is the picture format handed to the codec. In hardware mode it
	// is pixfmt.D3D11 and SoftwareFormat names the surface layout.
	Format         pixfmt.PixelFormat
	SoftwareFormat pixfmt.PixelFormat
	Range          pixfmt.ColorRange
	Space          pixfmt.ColorSpace
	TimeBase       Rational
	FrameRate      Rational
	GOPSize        int
	KeyintMin      int
	Threads        int
	Compliance     int

	// Device is set in hardware mode. It is borrowed from the renderer.
	Device *hwframe.DeviceContext
}

// Packet is one compressed access unit. Data is only valid until the next
// Receive; consumers keep a Clone.
type Packet struct {
	Data     []byte
	PTS      int64
	DTS      int64
	Keyframe bool
	Priority bitstream.Priority
}

// Clone returns a copy that owns its payload
func (p *Packet) Clone() Packet {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return c
}

// Codec is a stateful encoder. Methods are called from one goroutine.
type Codec interface {
	Name() string
	// Bitstream tells the header extractor how to read the first packet
	Bitstream() bitstream.Codec
	Capabilities() Capabilities
	// SupportedFormats is empty when the codec accepts anything
	SupportedFormats() []pixfmt.PixelFormat

	Configure(s Settings) error
	SetOption(key, value string) error
	Open() error

	// Send submits a picture. A nil frame marks the end of input.
	// Returns ErrAgain when full and ErrEOF after end of input.
	Send(f *frame.Frame) error
	// Receive fills p with the next packet. Returns ErrAgain when none is
	// ready and ErrEOF when flushed.
	Receive(p *Packet) error

	// Extradata is the out-of-band configuration, valid after Open
	Extradata() []byte
	Close() error
}

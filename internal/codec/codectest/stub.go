// Package codectest provides a scriptable in-memory codec for session tests
package codectest

import (
	"errors"
	"fmt"

	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/codec"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Header units emitted in front of the first packet
var (
	SPS = []byte{0x67, 0x64, 0x00, 0x1f, 0xac}
	PPS = []byte{0x68, 0xee, 0x3c, 0x80}
	SEI = []byte{0x06, 0x05, 0x01, 0xaa}
)

// Stub models an encoder with an internal queue of Delay+1 pictures. Send
// fails with codec.ErrAgain while the queue is full; Receive yields a
// packet once more than Delay pictures are queued, or while flushing.
//
// OnSend and OnReceive replace the model for scripted scenarios.
type Stub struct {
	NameValue string
	Caps      codec.Capabilities
	Formats   []pixfmt.PixelFormat
	Kind      bitstream.Codec
	Extra     []byte
	Delay     int

	// Reject lists option keys SetOption refuses
	Reject  map[string]bool
	OpenErr error

	OnSend    func(f *frame.Frame) error
	OnReceive func(p *codec.Packet) error

	Settings codec.Settings
	Options  map[string]string
	Opened   bool
	Closed   bool
	Sends    int
	Receives int
	// Accepted holds every picture the codec took, in order
	Accepted []*frame.Frame

	queue    []int64
	flushing bool
	emitted  int
}

// New returns an H.264-like stub with the given delay
func New(delay int) *Stub {
	return &Stub{
		NameValue: "stub264",
		Kind:      bitstream.H264,
		Formats:   []pixfmt.PixelFormat{pixfmt.YUV420P, pixfmt.NV12},
		Delay:     delay,
	}
}

func (s *Stub) Name() string                           { return s.NameValue }
func (s *Stub) Bitstream() bitstream.Codec             { return s.Kind }
func (s *Stub) Capabilities() codec.Capabilities       { return s.Caps }
func (s *Stub) SupportedFormats() []pixfmt.PixelFormat { return s.Formats }
func (s *Stub) Extradata() []byte                      { return s.Extra }

func (s *Stub) Configure(settings codec.Settings) error {
	if s.Opened {
		return errors.New("already open")
	}
	s.Settings = settings
	return nil
}

func (s *Stub) SetOption(key, value string) error {
	if s.Reject[key] {
		return fmt.Errorf("option %q not found", key)
	}
	if s.Options == nil {
		s.Options = make(map[string]string)
	}
	s.Options[key] = value
	return nil
}

func (s *Stub) Open() error {
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.Opened = true
	return nil
}

func (s *Stub) Send(f *frame.Frame) error {
	s.Sends++
	if s.OnSend != nil {
		err := s.OnSend(f)
		if err == nil && f != nil {
			s.Accepted = append(s.Accepted, f)
		}
		return err
	}

	if s.flushing {
		return codec.ErrEOF
	}
	if f == nil {
		s.flushing = true
		return nil
	}
	if len(s.queue) > s.Delay {
		return codec.ErrAgain
	}
	s.queue = append(s.queue, f.PTS)
	s.Accepted = append(s.Accepted, f)
	return nil
}

func (s *Stub) Receive(p *codec.Packet) error {
	s.Receives++
	if s.OnReceive != nil {
		return s.OnReceive(p)
	}

	if len(s.queue) > s.Delay || (s.flushing && len(s.queue) > 0) {
		pts := s.queue[0]
		s.queue = s.queue[1:]
		s.fill(p, pts)
		return nil
	}
	if s.flushing {
		return codec.ErrEOF
	}
	return codec.ErrAgain
}

// Pending is the number of queued pictures
func (s *Stub) Pending() int {
	return len(s.queue)
}

func (s *Stub) fill(p *codec.Packet, pts int64) {
	key := s.emitted == 0
	s.emitted++
	*p = Packet(pts, key)
}

func (s *Stub) Close() error {
	s.Closed = true
	return nil
}

// Packet builds an Annex B access unit. Keyframes carry SPS, PPS and SEI in
// front of an IDR slice; other pictures are a referenced P slice.
func Packet(pts int64, keyframe bool) codec.Packet {
	var units [][]byte
	if keyframe {
		units = append(units, SPS, PPS, SEI, []byte{0x65, 0x88, 0x84, byte(pts)})
	} else {
		units = append(units, []byte{0x41, 0x9a, 0x02, byte(pts)})
	}
	data := append([]byte(nil), bitstream.StartCode4...)
	data = append(data, bitstream.JoinUnits(units)...)
	return codec.Packet{Data: data, PTS: pts, DTS: pts, Keyframe: keyframe}
}

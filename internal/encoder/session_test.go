package encoder_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/codec"
	"github.com/linuxmatters/encodebridge/internal/codec/codectest"
	"github.com/linuxmatters/encodebridge/internal/config"
	"github.com/linuxmatters/encodebridge/internal/encoder"
	"github.com/linuxmatters/encodebridge/internal/format"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/hwframe"
	"github.com/linuxmatters/encodebridge/internal/hwframe/hwframetest"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/metrics"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

func testConfig(f pixfmt.PixelFormat) config.Config {
	cfg := config.Default()
	cfg.Source = pixfmt.VideoInfo{
		Width:  64,
		Height: 32,
		Format: f,
		Range:  pixfmt.RangeLimited,
		Space:  pixfmt.SpaceBT709,
	}
	return cfg
}

// packetLog collects sink output
type packetLog struct {
	packets []codec.Packet
}

func (l *packetLog) WritePacket(p codec.Packet) error {
	l.packets = append(l.packets, p)
	return nil
}

func newSession(t *testing.T, cfg config.Config, c codec.Codec, opts ...encoder.Option) *encoder.Session {
	t.Helper()
	opts = append([]encoder.Option{encoder.WithLogger(logging.Discard())}, opts...)
	s, err := encoder.New(cfg, c, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sourceFrame(t *testing.T, info pixfmt.VideoInfo, pts int64) *frame.Frame {
	t.Helper()
	f, err := frame.New(info, 1)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	for i, p := range f.Planes {
		for j := range p {
			p[j] = byte(int(pts)*7 + i*31 + j)
		}
	}
	f.PTS = pts
	return f
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) sleep(d time.Duration)   { c.t = c.t.Add(d) }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestEncodeSoftwarePlaneCopy(t *testing.T) {
	cfg := testConfig(pixfmt.YUV420P)
	stub := codectest.New(0)
	sink := &packetLog{}
	s := newSession(t, cfg, stub, encoder.WithSink(sink))

	if !s.Format().Identical() {
		t.Fatal("identical source and target should not build a converter")
	}
	if s.Lag() != 1 {
		t.Errorf("Lag() = %d, want 1 for a single-threaded codec", s.Lag())
	}

	got := stub.Settings
	if got.Width != 64 || got.Height != 32 || got.Format != pixfmt.YUV420P {
		t.Errorf("settings = %dx%d %s", got.Width, got.Height, got.Format)
	}
	if got.GOPSize != 60 || got.KeyintMin != 60 {
		t.Errorf("GOP = %d/%d, want 60/60", got.GOPSize, got.KeyintMin)
	}
	if got.TimeBase != (codec.Rational{Num: 1, Den: 30}) {
		t.Errorf("time base = %+v", got.TimeBase)
	}

	var last *frame.Frame
	for pts := int64(0); pts < 4; pts++ {
		last = sourceFrame(t, cfg.Source, pts)
		res, err := s.Encode(last)
		if err != nil {
			t.Fatalf("Encode(%d): %v", pts, err)
		}
		if !res.Accepted || res.Packets != 1 {
			t.Errorf("Encode(%d) = %+v, want accepted with one packet", pts, res)
		}
	}

	sent := stub.Accepted[len(stub.Accepted)-1]
	for i := range last.Planes {
		rows := last.Format.PlaneHeight(i, last.Height)
		width := last.Format.PlaneRowBytes(i, last.Width)
		for y := 0; y < rows; y++ {
			want := last.Planes[i][y*last.Linesize[i]:][:width]
			have := sent.Planes[i][y*sent.Linesize[i]:][:width]
			if !bytes.Equal(want, have) {
				t.Fatalf("plane %d row %d differs from source", i, y)
			}
		}
	}

	if stats := s.PoolStats(); stats.Allocated != 1 {
		t.Errorf("pool allocated %d frames, want 1 reused buffer", stats.Allocated)
	}

	if len(sink.packets) != 4 {
		t.Fatalf("sink got %d packets, want 4", len(sink.packets))
	}
	if !sink.packets[0].Keyframe || sink.packets[0].Priority != bitstream.PriorityHighest {
		t.Errorf("first packet = keyframe %v priority %s", sink.packets[0].Keyframe, sink.packets[0].Priority)
	}
	if sink.packets[1].Priority != bitstream.PriorityHigh {
		t.Errorf("referenced P slice priority = %s, want high", sink.packets[1].Priority)
	}

	h := s.Header()
	if want := bitstream.JoinUnits([][]byte{codectest.SPS, codectest.PPS}); !bytes.Equal(h.Config, want) {
		t.Errorf("header config = % x, want % x", h.Config, want)
	}
	if !bytes.Equal(h.SEI, codectest.SEI) {
		t.Errorf("header sei = % x, want % x", h.SEI, codectest.SEI)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !stub.Closed {
		t.Error("codec not closed")
	}
}

func TestLagDefersDrainUntilThreshold(t *testing.T) {
	cfg := testConfig(pixfmt.YUV420P)
	cfg.Threads = 3
	// the stub holds three pictures and emits once a fourth is queued
	stub := codectest.New(3)
	stub.Caps = codec.CapFrameThreads | codec.CapDelay
	sink := &packetLog{}
	s := newSession(t, cfg, stub, encoder.WithSink(sink))

	if s.Lag() != 3 {
		t.Fatalf("Lag() = %d, want 3", s.Lag())
	}
	if stub.Settings.Threads != 3 {
		t.Errorf("codec threads = %d, want 3", stub.Settings.Threads)
	}

	for pts := int64(0); pts < 3; pts++ {
		res, err := s.Encode(sourceFrame(t, cfg.Source, pts))
		if err != nil {
			t.Fatalf("Encode(%d): %v", pts, err)
		}
		if !res.Accepted || res.Packets != 0 {
			t.Errorf("Encode(%d) = %+v, want accepted without packet while filling lookahead", pts, res)
		}
		if !s.Header().Empty() {
			t.Errorf("header set before the first packet")
		}
	}

	// the fourth frame reaches the lag threshold and pushes out the first packet
	res, err := s.Encode(sourceFrame(t, cfg.Source, 3))
	if err != nil {
		t.Fatalf("Encode(3): %v", err)
	}
	if !res.Accepted || res.Packets != 1 {
		t.Errorf("Encode(3) = %+v, want accepted with one packet", res)
	}
	if s.Header().Empty() {
		t.Error("header missing after the first packet")
	}
	if got := s.PoolStats().InFlight; got != 3 {
		t.Errorf("in flight = %d, want 3", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := s.PoolStats().InFlight; got != 0 {
		t.Errorf("in flight after Close = %d, want 0", got)
	}
	if len(sink.packets) != 4 {
		t.Fatalf("flush emitted %d packets in total, want 4", len(sink.packets))
	}
	for i, p := range sink.packets {
		if p.PTS != int64(i) {
			t.Errorf("packet %d pts = %d", i, p.PTS)
		}
	}
	if stub.Pending() != 0 {
		t.Errorf("codec still holds %d pictures", stub.Pending())
	}
}

func TestCloseWithoutDelaySkipsFlush(t *testing.T) {
	stub := codectest.New(0)
	s := newSession(t, testConfig(pixfmt.YUV420P), stub)
	if _, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sends := stub.Sends
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stub.Sends != sends {
		t.Errorf("Close sent %d more times to a codec without delay", stub.Sends-sends)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 1)); !errors.Is(err, encoder.ErrClosed) {
		t.Errorf("Encode after Close error = %v, want ErrClosed", err)
	}
}

func TestBusySubmitWithPacketIsNotFatal(t *testing.T) {
	stub := codectest.New(0)
	stub.OnSend = func(*frame.Frame) error { return codec.ErrAgain }
	stub.OnReceive = func(p *codec.Packet) error {
		*p = codectest.Packet(0, true)
		return nil
	}
	m := metrics.New()
	s := newSession(t, testConfig(pixfmt.YUV420P), stub, encoder.WithMetrics(m))
	defer s.Close()

	res, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 0))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.Accepted {
		t.Error("frame accepted by a codec that always reports busy")
	}
	if res.Packets != 1 {
		t.Errorf("packets = %d, want 1", res.Packets)
	}
	if got := m.Total(metrics.Deadlocks); got != 0 {
		t.Errorf("deadlocks = %v, want 0", got)
	}
	if got := s.PoolStats().Free; got != 1 {
		t.Errorf("skipped frame not back in the pool, free = %d", got)
	}
}

func TestBusyOnBothSidesIsFatal(t *testing.T) {
	stub := codectest.New(0)
	stub.OnSend = func(*frame.Frame) error { return codec.ErrAgain }
	stub.OnReceive = func(*codec.Packet) error { return codec.ErrAgain }
	m := metrics.New()
	s := newSession(t, testConfig(pixfmt.YUV420P), stub, encoder.WithMetrics(m))
	defer s.Close()

	start := time.Now()
	res, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 0))
	elapsed := time.Since(start)

	if !errors.Is(err, encoder.ErrCodecDeadlock) {
		t.Fatalf("Encode error = %v, want ErrCodecDeadlock", err)
	}
	if res.Accepted {
		t.Error("deadlocked frame reported as accepted")
	}
	if elapsed > encoder.RoundBudget {
		t.Errorf("deadlock reported after %v, budget is %v", elapsed, encoder.RoundBudget)
	}
	if got := m.Total(metrics.Deadlocks); got != 1 {
		t.Errorf("deadlocks = %v, want 1", got)
	}

	// the session survives and keeps encoding once the codec recovers
	stub.OnSend, stub.OnReceive = nil, nil
	res, err = s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 1))
	if err != nil || !res.Accepted {
		t.Errorf("Encode after deadlock = %+v, %v", res, err)
	}
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name    string
		send    error
		receive error
	}{
		{"end of stream", codec.ErrEOF, codec.ErrEOF},
		{"codec error", errors.New("invalid argument"), codec.ErrAgain},
		{"drain error", codec.ErrAgain, errors.New("device lost")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := codectest.New(0)
			stub.OnSend = func(*frame.Frame) error { return tt.send }
			stub.OnReceive = func(*codec.Packet) error { return tt.receive }
			m := metrics.New()
			s := newSession(t, testConfig(pixfmt.YUV420P), stub, encoder.WithMetrics(m))
			defer s.Close()

			res, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 0))
			if err != nil {
				t.Fatalf("per-frame failure returned error %v", err)
			}
			if res.Accepted || res.Packets != 0 {
				t.Errorf("result = %+v, want dropped frame", res)
			}
			if got := m.Total(metrics.FramesDropped); got != 1 {
				t.Errorf("dropped = %v, want 1", got)
			}
			if got := s.PoolStats(); got.Free != 1 || got.InFlight != 0 {
				t.Errorf("pool free=%d in flight=%d, want the frame back on the stack", got.Free, got.InFlight)
			}
		})
	}
}

func TestRoundBudgetStopsSlowCodec(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	stub := codectest.New(0)
	stub.OnSend = func(*frame.Frame) error {
		clock.advance(60 * time.Millisecond)
		return codec.ErrAgain
	}
	stub.OnReceive = func(p *codec.Packet) error {
		*p = codectest.Packet(0, true)
		return nil
	}
	s := newSession(t, testConfig(pixfmt.YUV420P), stub, encoder.WithClock(clock.now, clock.sleep))
	defer s.Close()

	res, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 0))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.Accepted {
		t.Error("frame accepted past the round budget")
	}
	if stub.Sends != 1 {
		t.Errorf("sends = %d, want the round to stop after one slow attempt", stub.Sends)
	}
}

func TestCustomOptions(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig(pixfmt.YUV420P)
	cfg.CustomOptions = `-preset=medium -bad -k="a b" -x=1`

	stub := codectest.New(0)
	stub.Reject = map[string]bool{"x": true}
	s := newSession(t, cfg, stub, encoder.WithLogger(logging.New(&logs, "warn")))
	defer s.Close()

	want := map[string]string{"preset": "medium", "k": "a b"}
	if len(stub.Options) != len(want) {
		t.Errorf("codec options = %v, want %v", stub.Options, want)
	}
	for k, v := range want {
		if stub.Options[k] != v {
			t.Errorf("option %s = %q, want %q", k, stub.Options[k], v)
		}
	}
	if got := len(s.Options()); got != 2 {
		t.Errorf("Options() has %d pairs, want 2", got)
	}

	out := logs.String()
	for _, frag := range []string{"-bad", "'x'"} {
		if !strings.Contains(out, frag) {
			t.Errorf("log does not mention %s:\n%s", frag, out)
		}
	}
}

func TestConvertedSource(t *testing.T) {
	cfg := testConfig(pixfmt.RGBA)
	stub := codectest.New(0)
	stub.Formats = []pixfmt.PixelFormat{pixfmt.NV12}
	s := newSession(t, cfg, stub)
	defer s.Close()

	if s.Format().Identical() {
		t.Fatal("RGBA source should be converted")
	}
	if stub.Settings.Format != pixfmt.NV12 {
		t.Errorf("codec format = %s, want nv12", stub.Settings.Format)
	}

	src := sourceFrame(t, cfg.Source, 0)
	for i := range src.Planes[0] {
		src.Planes[0][i] = 255
	}
	res, err := s.Encode(src)
	if err != nil || !res.Accepted {
		t.Fatalf("Encode = %+v, %v", res, err)
	}
	got := stub.Accepted[0]
	if got.Format != pixfmt.NV12 {
		t.Fatalf("codec received %s", got.Format)
	}
	if y := got.Planes[0][0]; y != 235 {
		t.Errorf("white luma = %d, want 235", y)
	}
}

func TestConfigurationErrors(t *testing.T) {
	unsupported := format.FactoryFunc(func(src, dst pixfmt.VideoInfo) (format.Converter, error) {
		return nil, format.ErrUnsupportedConversion
	})

	tests := []struct {
		name   string
		modify func(*config.Config, *codectest.Stub)
		want   error
	}{
		{
			name:   "format override not supported",
			modify: func(c *config.Config, _ *codectest.Stub) { c.Format = pixfmt.YUV444P },
			want:   format.ErrUnsupportedFormat,
		},
		{
			name: "incomplete source",
			modify: func(c *config.Config, _ *codectest.Stub) {
				c.Source.Range = pixfmt.RangeUnspecified
			},
			want: format.ErrIncompleteFormat,
		},
		{
			name: "no converter",
			modify: func(c *config.Config, s *codectest.Stub) {
				s.Formats = []pixfmt.PixelFormat{pixfmt.YUV444P10}
			},
			want: format.ErrUnsupportedConversion,
		},
		{
			name:   "invalid frame rate",
			modify: func(c *config.Config, _ *codectest.Stub) { c.FPSNum = 0 },
			want:   config.ErrInvalidRate,
		},
		{
			name:   "open fails",
			modify: func(_ *config.Config, s *codectest.Stub) { s.OpenErr = errors.New("no such encoder") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(pixfmt.YUV420P)
			stub := codectest.New(0)
			tt.modify(&cfg, stub)

			s, err := encoder.New(cfg, stub,
				encoder.WithLogger(logging.Discard()),
				encoder.WithConverters(unsupported))
			if err == nil {
				s.Close()
				t.Fatal("New succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !stub.Closed {
				t.Error("codec left open after a configuration error")
			}
			t.Logf("%s: %v", tt.name, err)
		})
	}
}

func TestHandlerOverridesFormat(t *testing.T) {
	cfg := testConfig(pixfmt.YUV420P)
	cfg.CustomOptions = "-profile=4444"
	stub := codectest.New(0)
	stub.NameValue = "prores_ks"
	stub.Kind = bitstream.OutOfBand
	stub.Caps = codec.CapIntraOnly
	stub.Formats = []pixfmt.PixelFormat{pixfmt.YUV422P10, pixfmt.YUV444P10}

	var built []pixfmt.VideoInfo
	factory := format.FactoryFunc(func(src, dst pixfmt.VideoInfo) (format.Converter, error) {
		built = append(built, dst)
		return nopConverter{}, nil
	})
	s := newSession(t, cfg, stub, encoder.WithConverters(factory))
	defer s.Close()

	if stub.Settings.Format != pixfmt.YUV444P10 {
		t.Errorf("codec format = %s, want yuv444p10", stub.Settings.Format)
	}
	if stub.Settings.GOPSize != 0 {
		t.Errorf("intra-only codec got GOP %d", stub.Settings.GOPSize)
	}
	if len(built) != 1 || built[0].Format != pixfmt.YUV444P10 {
		t.Errorf("converter built for %v", built)
	}
}

func TestOutOfBandHeader(t *testing.T) {
	stub := codectest.New(0)
	stub.Kind = bitstream.OutOfBand
	stub.Extra = []byte{0x01, 0x64, 0x00, 0x1f}
	s := newSession(t, testConfig(pixfmt.YUV420P), stub)
	defer s.Close()

	if !s.Header().Empty() {
		t.Error("header set before the first packet")
	}
	if _, err := s.Encode(sourceFrame(t, testConfig(pixfmt.YUV420P).Source, 0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if h := s.Header(); !bytes.Equal(h.Config, stub.Extra) || len(h.SEI) != 0 {
		t.Errorf("header = %+v, want extradata verbatim", h)
	}
}

type nopConverter struct{}

func (nopConverter) Convert(dst, src *frame.Frame) error { return nil }

// hwCodec is a stub that also allocates device surfaces
type hwCodec struct {
	*codectest.Stub
	*hwframetest.Allocator
}

func newHardware(t *testing.T) (*encoder.Session, *hwCodec, *hwframetest.Device, *hwframetest.CountingGuard, *metrics.Metrics) {
	t.Helper()
	cfg := testConfig(pixfmt.NV12)
	cfg.Hardware = true

	c := &hwCodec{Stub: codectest.New(0), Allocator: &hwframetest.Allocator{}}
	c.Caps = codec.CapHardware | codec.CapDelay
	dev := hwframetest.NewDevice()
	guard := &hwframetest.CountingGuard{}
	m := metrics.New()

	s := newSession(t, cfg, c,
		encoder.WithDevice(dev),
		encoder.WithGuard(guard),
		encoder.WithMetrics(m))
	return s, c, dev, guard, m
}

func TestEncodeTexture(t *testing.T) {
	s, c, dev, guard, m := newHardware(t)

	if !s.Hardware() || s.Lag() != 0 {
		t.Fatalf("hardware=%v lag=%d", s.Hardware(), s.Lag())
	}
	if c.Settings.Format != pixfmt.D3D11 || c.Settings.SoftwareFormat != pixfmt.NV12 {
		t.Errorf("settings format %s/%s", c.Settings.Format, c.Settings.SoftwareFormat)
	}
	if c.Settings.Device == nil {
		t.Fatal("codec got no device context")
	}

	content := []byte("frame-0")
	dev.Share(7, content, 0)

	next := uint64(1)
	res, err := s.EncodeTexture(7, 0, &next, 0)
	if err != nil || !res.Accepted || res.Packets != 1 {
		t.Fatalf("EncodeTexture = %+v, %v", res, err)
	}
	if next != 0 {
		t.Errorf("next key after a completed frame = %d, want the lock key 0", next)
	}
	mutex := dev.Mutex(7)
	if len(mutex.Released) != 1 || mutex.Released[0] != 0 {
		t.Errorf("released keys %v, want [0]", mutex.Released)
	}
	surface := c.Accepted[0].Surface.(*hwframetest.Texture)
	if !bytes.Equal(surface.Content, content) {
		t.Errorf("surface holds %q, want %q", surface.Content, content)
	}
	if surface.Priority != hwframe.EvictionPriorityMaximum {
		t.Errorf("surface eviction priority = %#x", surface.Priority)
	}

	// the renderer draws the next picture and hands the texture over with key 1
	mutex.Produce(1)
	next = 2
	if res, err := s.EncodeTexture(7, 1, &next, 1); err != nil || !res.Accepted {
		t.Fatalf("second EncodeTexture = %+v, %v", res, err)
	}
	if next != 1 {
		t.Errorf("next key = %d, want 1", next)
	}

	// key 5 was never released, so it times out and is handed back
	next = 6
	res, err = s.EncodeTexture(7, 5, &next, 2)
	if err != nil {
		t.Fatalf("lock timeout returned error %v", err)
	}
	if res.Accepted {
		t.Error("frame accepted without the keyed mutex")
	}
	if next != 5 {
		t.Errorf("next key = %d, want retry with 5", next)
	}
	if got := m.Total(metrics.LockTimeouts); got != 1 {
		t.Errorf("lock timeouts = %v, want 1", got)
	}

	if _, err := s.Encode(sourceFrame(t, testConfig(pixfmt.NV12).Source, 3)); !errors.Is(err, encoder.ErrWrongPath) {
		t.Errorf("Encode on a texture session error = %v, want ErrWrongPath", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if guard.Nested {
		t.Error("graphics guard entered recursively")
	}
	if guard.Depth != 0 {
		t.Errorf("guard depth after Close = %d", guard.Depth)
	}
	if !surface.Released {
		t.Error("surface not released after Close")
	}
}

func TestTextureCodecCallsHoldGuard(t *testing.T) {
	s, c, dev, guard, _ := newHardware(t)

	var sendDepth, receiveDepth []int
	c.OnSend = func(*frame.Frame) error {
		sendDepth = append(sendDepth, guard.Depth)
		return nil
	}
	c.OnReceive = func(p *codec.Packet) error {
		receiveDepth = append(receiveDepth, guard.Depth)
		*p = codectest.Packet(0, true)
		return nil
	}

	dev.Share(7, []byte("frame"), 0)
	next := uint64(1)
	if res, err := s.EncodeTexture(7, 0, &next, 0); err != nil || !res.Accepted {
		t.Fatalf("EncodeTexture = %+v, %v", res, err)
	}

	// a codec locking the device context from Send would enter the guard a
	// second time on the same goroutine
	if len(sendDepth) != 1 || sendDepth[0] != 1 {
		t.Errorf("guard depth during Send = %v, want [1]", sendDepth)
	}
	if len(receiveDepth) != 1 || receiveDepth[0] != 1 {
		t.Errorf("guard depth during Receive = %v, want [1]", receiveDepth)
	}
	if guard.Depth != 0 {
		t.Errorf("guard depth after the round = %d", guard.Depth)
	}

	c.OnSend, c.OnReceive = nil, nil
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTextureSessionNeedsSupport(t *testing.T) {
	withAllocator := func(s *codectest.Stub) codec.Codec {
		return &hwCodec{Stub: s, Allocator: &hwframetest.Allocator{}}
	}

	tests := []struct {
		name   string
		modify func(*config.Config, *codectest.Stub)
		wrap   func(*codectest.Stub) codec.Codec
		device hwframe.Device
		want   error
	}{
		{
			name:   "software codec",
			modify: func(_ *config.Config, s *codectest.Stub) { s.Caps = 0 },
			wrap:   withAllocator,
			device: hwframetest.NewDevice(),
			want:   encoder.ErrHardwareDisabled,
		},
		{
			name: "no device",
			wrap: withAllocator,
			want: hwframe.ErrNoDevice,
		},
		{
			name:   "format override",
			modify: func(c *config.Config, _ *codectest.Stub) { c.Format = pixfmt.NV12 },
			wrap:   withAllocator,
			device: hwframetest.NewDevice(),
			want:   encoder.ErrHardwareDisabled,
		},
		{
			name:   "gpu selected",
			modify: func(c *config.Config, _ *codectest.Stub) { c.GPU = 0 },
			wrap:   withAllocator,
			device: hwframetest.NewDevice(),
			want:   encoder.ErrHardwareDisabled,
		},
		{
			name:   "rescaled",
			modify: func(c *config.Config, _ *codectest.Stub) { c.Width, c.Height = 32, 16 },
			wrap:   withAllocator,
			device: hwframetest.NewDevice(),
			want:   encoder.ErrHardwareDisabled,
		},
		{
			name:   "no surface allocator",
			wrap:   func(s *codectest.Stub) codec.Codec { return s },
			device: hwframetest.NewDevice(),
			want:   hwframe.ErrNoAllocator,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(pixfmt.NV12)
			cfg.Hardware = true
			stub := codectest.New(0)
			stub.Caps = codec.CapHardware
			if tt.modify != nil {
				tt.modify(&cfg, stub)
			}

			opts := []encoder.Option{encoder.WithLogger(logging.Discard()), encoder.WithGuard(&hwframetest.CountingGuard{})}
			if tt.device != nil {
				opts = append(opts, encoder.WithDevice(tt.device))
			}
			s, err := encoder.New(cfg, tt.wrap(stub), opts...)
			if err == nil {
				s.Close()
				t.Fatal("New succeeded")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !stub.Closed || stub.Opened {
				t.Errorf("codec opened=%v closed=%v after setup error", stub.Opened, stub.Closed)
			}
		})
	}
}

func TestEncodeTextureOnSoftwareSession(t *testing.T) {
	s := newSession(t, testConfig(pixfmt.YUV420P), codectest.New(0))
	defer s.Close()

	var next uint64
	if _, err := s.EncodeTexture(1, 0, &next, 0); !errors.Is(err, encoder.ErrWrongPath) {
		t.Errorf("EncodeTexture error = %v, want ErrWrongPath", err)
	}
}

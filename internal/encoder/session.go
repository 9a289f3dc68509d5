// Package encoder drives a stateful codec one frame at a time: it converts or
// copies each picture into a pooled frame, submits it, drains packets and
// flushes the codec on Close.
package encoder

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kataras/golog"
	"github.com/linuxmatters/encodebridge/internal/bitstream"
	"github.com/linuxmatters/encodebridge/internal/codec"
	"github.com/linuxmatters/encodebridge/internal/config"
	"github.com/linuxmatters/encodebridge/internal/format"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/hwframe"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/metrics"
	"github.com/linuxmatters/encodebridge/internal/options"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

const (
	// RoundBudget bounds one submit/drain call
	RoundBudget = 50 * time.Millisecond
	// RetryInterval is the pause between unproductive attempts
	RetryInterval = time.Millisecond
	// FlushTimeout bounds how long Close waits on a codec that stops
	// producing packets without reporting end of stream
	FlushTimeout = 5 * time.Second
)

var (
	// ErrCodecDeadlock is returned by Encode when the codec refuses input
	// and has no output in the same round
	ErrCodecDeadlock = errors.New("codec deadlocked: busy on both submit and drain")

	// ErrClosed is returned by Encode and EncodeTexture after Close
	ErrClosed = errors.New("session is closed")
	// ErrWrongPath is returned for a host frame on a texture session, or a
	// texture on a software session
	ErrWrongPath = errors.New("frame type does not match session mode")
	// ErrHardwareDisabled is returned by New when texture mode was asked for
	// but the codec, device or configuration rules it out
	ErrHardwareDisabled = errors.New("hardware encoding unavailable")
)

// PacketSink receives a private copy of every packet the codec emits
type PacketSink interface {
	WritePacket(p codec.Packet) error
}

// SinkFunc adapts a function to PacketSink
type SinkFunc func(p codec.Packet) error

func (fn SinkFunc) WritePacket(p codec.Packet) error {
	return fn(p)
}

// Result reports what happened to one frame. A frame that was not accepted
// has been dropped and its buffer returned to the pool.
type Result struct {
	Accepted bool
	Packets  int
}

// Session owns a codec from open to flush. It is driven from one goroutine.
type Session struct {
	id       string
	cfg      config.Config
	codec    codec.Codec
	handler  codec.Handler
	hardware bool
	lag      int

	submitted int
	packets   int
	closed    bool

	format  *format.Negotiated
	pool    *frame.Pool
	bridge  *hwframe.Bridge
	header  *bitstream.Extractor
	packet  codec.Packet
	applied []options.Pair

	// set through options
	lookup     codec.Lookup
	device     hwframe.Device
	guard      hwframe.Guard
	sink       PacketSink
	converters []format.ConverterFactory
	poolOpts   []frame.PoolOption
	log        *golog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	sleep      func(time.Duration)
}

// Option configures a Session
type Option func(*Session)

// WithLookup replaces the built-in handler registry
func WithLookup(l codec.Lookup) Option {
	return func(s *Session) { s.lookup = l }
}

// WithDevice supplies the renderer's graphics device for zero-copy
// sessions. The device must outlive the session.
func WithDevice(d hwframe.Device) Option {
	return func(s *Session) { s.device = d }
}

// WithGuard replaces the process-wide graphics guard
func WithGuard(g hwframe.Guard) Option {
	return func(s *Session) { s.guard = g }
}

// WithSink sets where emitted packets go. Without one packets are counted
// and dropped.
func WithSink(sink PacketSink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithConverters adds converter factories tried after the built-in ones
func WithConverters(f ...format.ConverterFactory) Option {
	return func(s *Session) { s.converters = append(s.converters, f...) }
}

// WithPoolOptions passes options through to the session's frame pool
func WithPoolOptions(opts ...frame.PoolOption) Option {
	return func(s *Session) { s.poolOpts = append(s.poolOpts, opts...) }
}

// WithLogger replaces the "[encoder]" component logger
func WithLogger(l *golog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics records session, pool and bridge counters in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces time.Now and time.Sleep
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(s *Session) {
		s.now = now
		s.sleep = sleep
	}
}

// New configures and opens c for cfg. The session takes ownership of c: it
// is closed here on failure and by Close otherwise. Configuration errors
// leave nothing running.
func New(cfg config.Config, c codec.Codec, opts ...Option) (*Session, error) {
	s := &Session{
		id:    uuid.NewString(),
		cfg:   cfg,
		codec: c,
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Child("encoder")
	}
	if s.lookup == nil {
		s.lookup = codec.NewRegistry()
	}
	if s.guard == nil {
		s.guard = hwframe.Graphics()
	}

	if err := s.init(); err != nil {
		if cerr := c.Close(); cerr != nil {
			s.log.Warnf("failed to close codec after setup error: %v", cerr)
		}
		return nil, err
	}
	s.logSettings()
	return s, nil
}

func (s *Session) init() error {
	cfg := s.cfg
	c := s.codec
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.handler = s.lookup.Lookup(c.Name())
	if s.handler == nil {
		s.handler = codec.DefaultHandler{}
	}
	isHardware := s.handler.IsHardwareEncoder(c)

	if cfg.Hardware {
		if err := s.checkHardware(isHardware); err != nil {
			return err
		}
		s.hardware = true
	}

	out := cfg.Output()
	target, err := format.Negotiate(cfg.Source.Format, c.SupportedFormats(), cfg.Format)
	if err != nil {
		return fmt.Errorf("failed to negotiate pixel format: %w", err)
	}
	pairs, _ := options.Parse(cfg.CustomOptions)
	custom := make(map[string]string, len(pairs))
	for _, p := range pairs {
		custom[p.Key] = p.Value
	}
	if f := s.handler.OverrideFormat(c, target, custom); f != target {
		s.log.Debugf("%s overrides format %s with %s", c.Name(), target, f)
		target = f
	}
	out.Format = target

	threads := 1
	if s.handler.HasThreadingSupport(c) {
		threads = cfg.ResolveThreads()
	}
	if !s.hardware {
		s.lag = threads
	}

	settings := codec.Settings{
		Width:      out.Width,
		Height:     out.Height,
		Format:     out.Format,
		Range:      out.Range,
		Space:      out.Space,
		TimeBase:   codec.Rational{Num: cfg.FPSDen, Den: cfg.FPSNum},
		FrameRate:  codec.Rational{Num: cfg.FPSNum, Den: cfg.FPSDen},
		Threads:    threads,
		Compliance: cfg.Compliance,
	}
	if s.handler.HasKeyframeSupport(c) {
		settings.GOPSize = cfg.GOPSize()
		settings.KeyintMin = settings.GOPSize
	}

	if s.hardware {
		alloc, _ := c.(hwframe.SurfaceAllocator)
		s.bridge, err = hwframe.NewBridge(s.device, alloc,
			hwframe.WithGuard(s.guard),
			hwframe.WithLogger(s.log),
			hwframe.WithMetrics(s.metrics))
		if err != nil {
			return fmt.Errorf("failed to set up hardware frames: %w", err)
		}
		ctx, err := s.bridge.CreateDeviceContext()
		if err != nil {
			return fmt.Errorf("failed to create device context: %w", err)
		}
		settings.Device = ctx
		settings.SoftwareFormat = settings.Format
		settings.Format = pixfmt.D3D11
	}

	if err := c.Configure(settings); err != nil {
		return fmt.Errorf("failed to configure %s: %w", c.Name(), err)
	}
	if !s.hardware && isHardware && cfg.GPU >= 0 {
		if err := c.SetOption("gpu", strconv.Itoa(cfg.GPU)); err != nil {
			s.log.Warnf("failed to select gpu %d: %v", cfg.GPU, err)
		}
	}
	s.applied = options.Apply(c, cfg.CustomOptions, s.log)

	if err := c.Open(); err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Name(), err)
	}

	poolInfo := out
	var alloc frame.Allocator = frame.SoftwareAllocator{Align: frame.DefaultAlignment}
	if s.hardware {
		poolInfo.Format = pixfmt.D3D11
		alloc = s.bridge
	} else {
		s.format, err = format.NewNegotiated(cfg.Source, out, s.converters...)
		if err != nil {
			return fmt.Errorf("failed to initialise converter: %w", err)
		}
		if a, ok := c.(frame.Allocator); ok {
			alloc = a
		}
	}

	poolOpts := append([]frame.PoolOption{
		frame.WithLogger(s.log),
		frame.WithMetrics(s.metrics),
	}, s.poolOpts...)
	s.pool = frame.NewPool(alloc, poolInfo, poolOpts...)
	s.header = bitstream.NewExtractor(c.Bitstream())
	return nil
}

func (s *Session) checkHardware(isHardware bool) error {
	switch {
	case !isHardware:
		return fmt.Errorf("%w: %s does not take GPU surfaces", ErrHardwareDisabled, s.codec.Name())
	case s.device == nil:
		return fmt.Errorf("%w: %w", ErrHardwareDisabled, hwframe.ErrNoDevice)
	case s.cfg.Format != pixfmt.None:
		return fmt.Errorf("%w: format override %s", ErrHardwareDisabled, s.cfg.Format)
	case s.cfg.GPU != config.GPUAuto:
		return fmt.Errorf("%w: gpu %d selected", ErrHardwareDisabled, s.cfg.GPU)
	case s.cfg.Scaled():
		return fmt.Errorf("%w: output is rescaled", ErrHardwareDisabled)
	}
	return nil
}

func (s *Session) logSettings() {
	out := s.pool.Info()
	if s.format != nil {
		out = s.format.Target
	}
	gop := "codec default"
	if s.handler.HasKeyframeSupport(s.codec) {
		gop = strconv.Itoa(s.cfg.GOPSize())
	}
	custom := "(none)"
	if s.cfg.CustomOptions != "" {
		custom = s.cfg.CustomOptions
	}

	s.log.Infof("session %s settings:\n"+
		"\tencoder:      %s\n"+
		"\tcapabilities: %s\n"+
		"\tmode:         %s\n"+
		"\tsource:       %s\n"+
		"\toutput:       %s\n"+
		"\tfps:          %d/%d\n"+
		"\tkeyint:       %s\n"+
		"\tlag:          %d\n"+
		"\tcustom:       %s",
		s.id, s.codec.Name(), s.codec.Capabilities(), s.mode(),
		s.cfg.Source, out, s.cfg.FPSNum, s.cfg.FPSDen, gop, s.lag, custom)
}

func (s *Session) mode() string {
	if s.hardware {
		return "texture"
	}
	if s.format.Identical() {
		return "software (plane copy)"
	}
	return "software (converted)"
}

// Encode submits one producer frame. The frame is converted, or copied
// when no conversion is needed, into a pooled buffer and src stays owned by
// the caller. Per-frame failures are logged and reported through Result;
// the only codec error returned is ErrCodecDeadlock.
func (s *Session) Encode(src *frame.Frame) (Result, error) {
	if s.closed {
		return Result{}, ErrClosed
	}
	if s.hardware {
		return Result{}, fmt.Errorf("%w: host frame sent to a texture session", ErrWrongPath)
	}

	dst, err := s.pool.Acquire()
	if err != nil {
		s.log.Errorf("failed to acquire frame: %v", err)
		s.metrics.FrameDropped("alloc")
		return Result{}, nil
	}
	if err := s.format.Convert(dst, src); err != nil {
		s.log.Errorf("failed to convert frame %d: %v", src.PTS, err)
		s.pool.Release(dst)
		s.metrics.FrameDropped("convert")
		return Result{}, nil
	}
	dst.PTS = src.PTS
	return s.submit(dst)
}

// EncodeTexture copies the producer's shared texture into a codec surface
// and submits it. When the copy fails, nextLockKey is set as described for
// hwframe.Bridge.CopyFromSource. After a completed round it is set to
// lockKey, so the producer's next picture is expected under the same key.
func (s *Session) EncodeTexture(handle, lockKey uint64, nextLockKey *uint64, pts int64) (Result, error) {
	if s.closed {
		return Result{}, ErrClosed
	}
	if !s.hardware {
		return Result{}, fmt.Errorf("%w: texture sent to a software session", ErrWrongPath)
	}

	dst, err := s.pool.Acquire()
	if err != nil {
		s.log.Errorf("failed to acquire surface: %v", err)
		s.metrics.FrameDropped("alloc")
		return Result{}, nil
	}
	if err := s.bridge.CopyFromSource(dst, handle, lockKey, nextLockKey); err != nil {
		s.log.Warnf("dropping texture frame %d: %v", pts, err)
		s.pool.Release(dst)
		s.metrics.FrameDropped("texture")
		return Result{}, nil
	}
	dst.PTS = pts
	res, err := s.submit(dst)
	if err == nil && nextLockKey != nil {
		*nextLockKey = lockKey
	}
	return res, err
}

// submit runs the send/receive rounds for f within RoundBudget. Until lag
// frames have been accepted the codec may hold pictures without output, so
// a drained packet is only waited for once that threshold is reached.
func (s *Session) submit(f *frame.Frame) (Result, error) {
	start := s.now()
	deadline := start.Add(RoundBudget)
	defer func() {
		s.metrics.ObserveRound(s.now().Sub(start).Seconds())
	}()

	shouldLag := s.submitted >= s.lag
	var (
		res                  Result
		sent, received, busy bool
	)

	for (!sent || (shouldLag && !received)) && !s.now().After(deadline) {
		if !sent {
			err := s.send(f)
			switch {
			case err == nil:
				sent, res.Accepted = true, true
				s.pool.PushInFlight(f)
				s.submitted++
				s.metrics.FrameSubmitted()
			case errors.Is(err, codec.ErrAgain):
				busy = true
				s.metrics.CodecBusy()
				if received {
					s.log.Warnf("codec still busy after a drain, skipping frame %d", f.PTS)
					sent = true
				}
			case errors.Is(err, codec.ErrEOF):
				s.log.Warnf("codec reached end of stream, dropping frame %d", f.PTS)
				sent = true
			default:
				s.log.Errorf("failed to send frame %d: %v", f.PTS, err)
				s.pool.Release(f)
				s.metrics.FrameDropped("send")
				return res, nil
			}
		}

		if !received {
			err := s.receive()
			switch {
			case err == nil:
				received = true
				res.Packets++
			case errors.Is(err, codec.ErrEOF):
				received = true
			case errors.Is(err, codec.ErrAgain):
				if sent {
					received = true
				} else if busy {
					s.log.Errorf("%s is busy on both submit and drain", s.codec.Name())
					s.pool.Release(f)
					s.metrics.CodecDeadlock()
					s.metrics.FrameDropped("deadlock")
					return res, fmt.Errorf("%w (%s)", ErrCodecDeadlock, s.codec.Name())
				}
			default:
				s.log.Errorf("failed to receive packet: %v", err)
				if !res.Accepted {
					s.pool.Release(f)
					s.metrics.FrameDropped("receive")
				}
				return res, nil
			}
		}

		if !sent || !received {
			s.sleep(RetryInterval)
		}
	}

	if !res.Accepted {
		if !sent {
			s.log.Warnf("encode round exceeded %v, dropping frame %d", RoundBudget, f.PTS)
		}
		s.pool.Release(f)
		s.metrics.FrameDropped("rejected")
	}
	return res, nil
}

func (s *Session) send(f *frame.Frame) error {
	if s.hardware {
		s.guard.Enter()
		defer s.guard.Leave()
	}
	return s.codec.Send(f)
}

func (s *Session) receive() error {
	if s.hardware {
		s.guard.Enter()
	}
	err := s.codec.Receive(&s.packet)
	if s.hardware {
		s.guard.Leave()
	}
	if err != nil {
		return err
	}
	s.emit(&s.packet)
	// one packet out means the oldest picture is no longer referenced
	s.pool.Recycle()
	return nil
}

func (s *Session) emit(p *codec.Packet) {
	if !s.header.Done() {
		s.header.Process(p.Data, s.codec.Extradata())
		h := s.header.Header()
		s.log.Debugf("captured header: %d bytes config, %d bytes sei", len(h.Config), len(h.SEI))
	}
	s.handler.ProcessPacket(s.codec, p)
	p.Priority = bitstream.DropPriority(s.codec.Bitstream(), p.Keyframe, p.Data)

	s.packets++
	s.metrics.PacketEmitted(len(p.Data))
	if s.sink == nil {
		return
	}
	if err := s.sink.WritePacket(p.Clone()); err != nil {
		s.log.Errorf("failed to write packet %d: %v", p.PTS, err)
	}
}

// Header returns the configuration and SEI units captured from the first
// packet. It is empty until then.
func (s *Session) Header() bitstream.Header {
	return s.header.Header()
}

// Close flushes a codec that buffers frames, then releases it. Flush errors
// are logged; the codec is closed regardless and every frame it held is
// returned to the pool before the pool is freed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.codec.Capabilities().Has(codec.CapDelay) {
		if s.hardware {
			s.guard.Enter()
		}
		s.flush()
		if s.hardware {
			s.guard.Leave()
		}
	}

	var err error
	if cerr := s.codec.Close(); cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", s.codec.Name(), cerr)
		s.log.Error(err)
	}
	s.pool.Drain()
	stats := s.pool.Stats()
	s.pool.Close()

	s.log.Infof("session %s closed: %d frames submitted, %d packets, %d buffers allocated",
		s.id, s.submitted, s.packets, stats.Allocated)
	return err
}

// flush drains the codec after end of input. Frames it still references
// are returned by the caller once the codec is closed.
func (s *Session) flush() {
	s.log.Debugf("flushing %s", s.codec.Name())
	idleSince := s.now()
	for {
		if err := s.codec.Send(nil); err != nil && !errors.Is(err, codec.ErrEOF) && !errors.Is(err, codec.ErrAgain) {
			s.log.Warnf("failed to signal end of input: %v", err)
		}

		err := s.codec.Receive(&s.packet)
		if err == nil {
			s.emit(&s.packet)
		}
		switch {
		case err == nil:
			idleSince = s.now()
		case errors.Is(err, codec.ErrEOF):
			return
		case errors.Is(err, codec.ErrAgain):
			if s.now().Sub(idleSince) > FlushTimeout {
				s.log.Errorf("gave up flushing after %v without output", FlushTimeout)
				return
			}
		default:
			s.log.Errorf("failed to drain packet during flush: %v", err)
			return
		}
		s.sleep(RetryInterval)
	}
}

// ID identifies the session in logs
func (s *Session) ID() string { return s.id }

// Hardware reports whether the session encodes GPU surfaces
func (s *Session) Hardware() bool { return s.hardware }

// Lag is the number of frames the codec may hold before a packet is expected
func (s *Session) Lag() int { return s.lag }

// Submitted counts the frames the codec accepted
func (s *Session) Submitted() int { return s.submitted }

// Format is the negotiated conversion, nil for texture sessions
func (s *Session) Format() *format.Negotiated { return s.format }

// Options returns the custom options the codec accepted
func (s *Session) Options() []options.Pair { return s.applied }

// PoolStats reports the frame pool's allocation and reuse counts
func (s *Session) PoolStats() frame.Stats { return s.pool.Stats() }

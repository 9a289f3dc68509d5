package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/kataras/golog"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/metrics"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// DefaultIdleThreshold bounds how long returned frames keep accumulating on
// the reuse stack after its last push
const DefaultIdleThreshold = time.Second

// DefaultAlignment is the linesize alignment for software frames
const DefaultAlignment = 32

// ErrNoAllocator is returned by Acquire when the stack is empty and the pool
// cannot allocate
var ErrNoAllocator = errors.New("frame pool has no allocator")

// Allocator creates a new frame for the given geometry
type Allocator interface {
	Allocate(info pixfmt.VideoInfo) (*Frame, error)
}

// AllocatorFunc adapts a function to Allocator
type AllocatorFunc func(info pixfmt.VideoInfo) (*Frame, error)

func (fn AllocatorFunc) Allocate(info pixfmt.VideoInfo) (*Frame, error) {
	return fn(info)
}

// Freer is implemented by allocators whose frames own native resources
type Freer interface {
	Free(f *Frame)
}

// SoftwareAllocator allocates host-memory planes with aligned linesizes
type SoftwareAllocator struct {
	Align int
}

func (a SoftwareAllocator) Allocate(info pixfmt.VideoInfo) (*Frame, error) {
	return New(info, a.Align)
}

// Stats is a snapshot of pool activity
type Stats struct {
	Allocated int
	Reused    int
	Discarded int
	Free      int
	InFlight  int
}

// Pool recycles frames between the producer and the codec. It keeps a LIFO
// reuse stack and a FIFO of frames the codec still references. A frame is
// on the stack, in the FIFO or held by a caller, never in two places.
//
// Pool is not safe for concurrent use; it is driven by the encode thread.
type Pool struct {
	alloc    Allocator
	info     pixfmt.VideoInfo
	free     []*Frame
	inFlight []*Frame
	lastPush time.Time
	idle     time.Duration
	now      func() time.Time
	nextID   uint64
	stats    Stats
	log      *golog.Logger
	metrics  *metrics.Metrics
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithClock replaces time.Now, for idle-threshold tests
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// WithIdleThreshold overrides DefaultIdleThreshold
func WithIdleThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.idle = d }
}

func WithLogger(l *golog.Logger) PoolOption {
	return func(p *Pool) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates a pool producing frames of info's geometry
func NewPool(alloc Allocator, info pixfmt.VideoInfo, opts ...PoolOption) *Pool {
	p := &Pool{
		alloc: alloc,
		info:  info,
		idle:  DefaultIdleThreshold,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logging.Child("pool")
	}
	return p
}

// Info returns the geometry frames are allocated for
func (p *Pool) Info() pixfmt.VideoInfo {
	return p.info
}

// Acquire returns the most recently freed frame of the current geometry, or
// allocates one. It never blocks.
func (p *Pool) Acquire() (*Frame, error) {
	for len(p.free) > 0 {
		f := p.free[len(p.free)-1]
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]

		if !f.Matches(p.info) {
			p.discard(f)
			continue
		}

		f.state = stateHeld
		p.stats.Reused++
		p.metrics.PoolReused()
		p.report()
		return f, nil
	}

	if p.alloc == nil {
		return nil, ErrNoAllocator
	}
	f, err := p.alloc.Allocate(p.info)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate frame: %w", err)
	}
	p.nextID++
	f.id = p.nextID
	f.state = stateHeld
	p.stats.Allocated++
	p.metrics.PoolAllocated()
	p.log.Debugf("allocated frame %d (%s)", f.id, p.info)
	return f, nil
}

// Release returns a frame the codec no longer needs. While the stack is
// non-empty, a frame returned later than the idle threshold after the last
// push is discarded; an empty stack always accepts and restarts the timer.
func (p *Pool) Release(f *Frame) {
	if f == nil {
		return
	}
	switch f.state {
	case stateFree, stateGone:
		p.log.Warnf("frame %d released twice, ignoring", f.id)
		return
	case stateInFlight:
		p.removeInFlight(f)
	}

	if !f.Matches(p.info) {
		p.discard(f)
		return
	}

	now := p.now()
	if len(p.free) > 0 && now.Sub(p.lastPush) > p.idle {
		p.discard(f)
		return
	}

	f.state = stateFree
	p.free = append(p.free, f)
	p.lastPush = now
	p.report()
}

// PushInFlight records that the codec accepted f
func (p *Pool) PushInFlight(f *Frame) {
	f.state = stateInFlight
	p.inFlight = append(p.inFlight, f)
	p.report()
}

// PopInFlight removes the oldest frame the codec holds, nil if none
func (p *Pool) PopInFlight() *Frame {
	if len(p.inFlight) == 0 {
		return nil
	}
	f := p.inFlight[0]
	p.inFlight[0] = nil
	p.inFlight = p.inFlight[1:]
	f.state = stateHeld
	p.report()
	return f
}

// Recycle moves the oldest in-flight frame back to the reuse stack. Called
// once per drained packet.
func (p *Pool) Recycle() {
	if f := p.PopInFlight(); f != nil {
		p.Release(f)
	}
}

// Drain empties the in-flight FIFO, releasing every frame
func (p *Pool) Drain() {
	for len(p.inFlight) > 0 {
		p.Recycle()
	}
}

// Reconfigure switches the pool to a new geometry. Frames of the old
// geometry are dropped from the stack.
func (p *Pool) Reconfigure(info pixfmt.VideoInfo) {
	p.info = info
	kept := p.free[:0]
	for _, f := range p.free {
		if f.Matches(info) {
			kept = append(kept, f)
			continue
		}
		p.discard(f)
	}
	for i := len(kept); i < len(p.free); i++ {
		p.free[i] = nil
	}
	p.free = kept
	p.report()
}

// Close frees every frame on the stack and in the FIFO. Frames held by
// callers stay valid until they are released.
func (p *Pool) Close() {
	for _, f := range p.inFlight {
		p.discard(f)
	}
	for _, f := range p.free {
		p.discard(f)
	}
	p.inFlight = nil
	p.free = nil
	p.report()
}

func (p *Pool) Stats() Stats {
	s := p.stats
	s.Free = len(p.free)
	s.InFlight = len(p.inFlight)
	return s
}

func (p *Pool) FreeLen() int     { return len(p.free) }
func (p *Pool) InFlightLen() int { return len(p.inFlight) }

func (p *Pool) discard(f *Frame) {
	f.state = stateGone
	p.stats.Discarded++
	p.metrics.PoolDiscarded()
	if fr, ok := p.alloc.(Freer); ok {
		fr.Free(f)
	}
	p.log.Debugf("discarded frame %d", f.id)
}

func (p *Pool) removeInFlight(f *Frame) {
	for i, g := range p.inFlight {
		if g == f {
			p.inFlight = append(p.inFlight[:i], p.inFlight[i+1:]...)
			return
		}
	}
}

func (p *Pool) report() {
	p.metrics.PoolSizes(len(p.free), len(p.inFlight))
}

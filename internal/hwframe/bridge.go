package hwframe

import (
	"errors"
	"fmt"
	"time"

	"github.com/kataras/golog"
	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/logging"
	"github.com/linuxmatters/encodebridge/internal/metrics"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Bridge wraps the renderer's device for a hardware encoder and copies
// shared textures into codec-owned surfaces
type Bridge struct {
	device  Device
	alloc   SurfaceAllocator
	guard   Guard
	ctx     *DeviceContext
	timeout time.Duration
	log     *golog.Logger
	metrics *metrics.Metrics
}

type Option func(*Bridge)

// WithGuard replaces the process-wide graphics guard
func WithGuard(g Guard) Option {
	return func(b *Bridge) { b.guard = g }
}

// WithLockTimeout overrides LockTimeout
func WithLockTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

func WithLogger(l *golog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// NewBridge binds a borrowed device to the codec's surface allocator
func NewBridge(dev Device, alloc SurfaceAllocator, opts ...Option) (*Bridge, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	if alloc == nil {
		return nil, ErrNoAllocator
	}
	b := &Bridge{
		device:  dev,
		alloc:   alloc,
		guard:   Graphics(),
		timeout: LockTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logging.Child("hwframe")
	}
	return b, nil
}

// CreateDeviceContext wraps the device for the codec. Lock and Unlock enter
// and leave the graphics guard so the codec's threads serialise with the
// renderer.
func (b *Bridge) CreateDeviceContext() (*DeviceContext, error) {
	b.guard.Enter()
	defer b.guard.Leave()

	if b.ctx == nil {
		b.ctx = &DeviceContext{
			Device: b.device,
			Lock:   b.guard.Enter,
			Unlock: b.guard.Leave,
		}
		b.log.Debug("created device context")
	}
	return b.ctx, nil
}

// AllocateFrame asks the codec for a surface of info's geometry and pins it
// against eviction
func (b *Bridge) AllocateFrame(info pixfmt.VideoInfo) (*frame.Frame, error) {
	ctx, err := b.CreateDeviceContext()
	if err != nil {
		return nil, err
	}

	// The allocator locks through ctx itself
	f, err := b.alloc.AllocateSurface(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate surface: %w", err)
	}
	tex, ok := f.Surface.(Texture)
	if !ok {
		return nil, fmt.Errorf("allocated frame carries no texture (%T)", f.Surface)
	}

	b.guard.Enter()
	tex.SetEvictionPriority(EvictionPriorityMaximum)
	b.guard.Leave()
	return f, nil
}

// Allocate makes the bridge a frame.Allocator for the session pool
func (b *Bridge) Allocate(info pixfmt.VideoInfo) (*frame.Frame, error) {
	return b.AllocateFrame(info)
}

// Free releases the surface of a discarded frame
func (b *Bridge) Free(f *frame.Frame) {
	if tex, ok := f.Surface.(Texture); ok {
		b.guard.Enter()
		tex.Release()
		b.guard.Leave()
	}
	f.Surface = nil
}

// CopyFromSource copies the shared texture behind handle into dst.
//
// The source's keyed mutex is acquired with lockKey and, once the copy is
// done, released with lockKey. A second release with *nextLockKey follows;
// the mutex is usually no longer ours by then, so its result is only logged.
// When the handle is invalid or the mutex cannot be acquired, *nextLockKey is
// set to lockKey so the producer retries with the same key. On success
// *nextLockKey is left for the caller. Errors only affect this frame.
func (b *Bridge) CopyFromSource(dst *frame.Frame, handle, lockKey uint64, nextLockKey *uint64) error {
	var next uint64
	if nextLockKey == nil {
		nextLockKey = &next
	}
	if handle == InvalidHandle {
		*nextLockKey = lockKey
		return ErrInvalidHandle
	}
	dstTex, ok := dst.Surface.(Texture)
	if !ok {
		return fmt.Errorf("destination frame %d has no surface", dst.ID())
	}

	b.guard.Enter()
	defer b.guard.Leave()

	src, err := b.device.OpenSharedTexture(handle)
	if err != nil {
		return fmt.Errorf("failed to open shared texture 0x%x: %w", handle, err)
	}
	defer src.Release()

	km, err := src.KeyedMutex()
	if err != nil {
		return fmt.Errorf("failed to query keyed mutex: %w", err)
	}
	defer km.Release()

	if err := km.AcquireSync(lockKey, b.timeout); err != nil {
		*nextLockKey = lockKey
		if errors.Is(err, ErrLockTimeout) {
			b.metrics.LockTimeout()
		}
		return fmt.Errorf("failed to acquire keyed mutex (key %d): %w", lockKey, err)
	}

	priority := src.EvictionPriority()
	src.SetEvictionPriority(EvictionPriorityMaximum)
	copyErr := b.device.CopyResource(dstTex, src)
	src.SetEvictionPriority(priority)

	if err := km.ReleaseSync(lockKey); err != nil {
		return fmt.Errorf("failed to release keyed mutex (key %d): %w", lockKey, err)
	}
	if err := km.ReleaseSync(*nextLockKey); err != nil {
		b.log.Debugf("release with next key %d: %v", *nextLockKey, err)
	}
	if copyErr != nil {
		return fmt.Errorf("failed to copy texture: %w", copyErr)
	}
	return nil
}

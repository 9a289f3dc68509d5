// Package hwframe moves GPU surfaces between a renderer and a hardware
// encoder without a round trip through host memory.
package hwframe

import (
	"errors"
	"sync"
	"time"

	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// InvalidHandle is the value producers use for "no shared texture"
const InvalidHandle uint64 = 0xFFFFFFFF

// LockTimeout is the keyed mutex wait for one frame
const LockTimeout = time.Second

// EvictionPriorityMaximum keeps a resource resident under memory pressure
const EvictionPriorityMaximum uint32 = 0xc8000000

var (
	ErrUnsupported   = errors.New("hardware frames are not supported on this platform")
	ErrNoDevice      = errors.New("no graphics device")
	ErrNoAllocator   = errors.New("codec cannot allocate hardware surfaces")
	ErrInvalidHandle = errors.New("invalid shared texture handle")
	ErrLockTimeout   = errors.New("timed out acquiring keyed mutex")
)

// Texture is a GPU resource that can be copied and pinned
type Texture interface {
	EvictionPriority() uint32
	SetEvictionPriority(p uint32)
	Release()
}

// KeyedMutex serialises access to a texture shared between processes
type KeyedMutex interface {
	// AcquireSync returns ErrLockTimeout when key is not released in time
	AcquireSync(key uint64, timeout time.Duration) error
	ReleaseSync(key uint64) error
	Release()
}

// SharedTexture is a texture opened from another process's handle
type SharedTexture interface {
	Texture
	KeyedMutex() (KeyedMutex, error)
}

// Device is the renderer's graphics device. It is borrowed and must outlive
// every session that uses it.
type Device interface {
	OpenSharedTexture(handle uint64) (SharedTexture, error)
	CopyResource(dst, src Texture) error
}

// Guard serialises GPU API calls against the renderer. A session holds it
// around every codec call in texture mode, so a codec that locks its
// DeviceContext from inside Send or Receive on the same goroutine needs a
// re-entrant Guard.
type Guard interface {
	Enter()
	Leave()
}

// MutexGuard is a Guard over a plain mutex. It is not re-entrant: codecs
// used with it may only lock the DeviceContext from their own worker
// goroutines.
type MutexGuard struct {
	mu sync.Mutex
}

func (g *MutexGuard) Enter() { g.mu.Lock() }
func (g *MutexGuard) Leave() { g.mu.Unlock() }

var graphics Guard = &MutexGuard{}

// Graphics returns the process-wide graphics context guard. It is held per
// GPU call, never across a whole encode round.
func Graphics() Guard {
	return graphics
}

// SetGraphics replaces the process-wide guard, typically with the renderer's
// own context lock, which must be re-entrant for codecs that lock the device
// synchronously (see Guard). Call it before any session starts.
func SetGraphics(g Guard) {
	if g != nil {
		graphics = g
	}
}

// DeviceContext is the device handed to the codec. The codec calls Lock and
// Unlock around its own use of the device from its worker threads. Lock
// enters the same Guard the session already holds during Send and Receive.
type DeviceContext struct {
	Device Device
	Lock   func()
	Unlock func()
}

// SurfaceAllocator is implemented by codecs that create their own GPU
// surfaces inside a device context
type SurfaceAllocator interface {
	AllocateSurface(ctx *DeviceContext, info pixfmt.VideoInfo) (*frame.Frame, error)
}

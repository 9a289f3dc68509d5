// Package hwframetest provides an in-memory graphics device for tests
package hwframetest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linuxmatters/encodebridge/internal/frame"
	"github.com/linuxmatters/encodebridge/internal/hwframe"
	"github.com/linuxmatters/encodebridge/internal/pixfmt"
)

// Texture is a fake GPU resource holding a byte payload
type Texture struct {
	Name     string
	Content  []byte
	Priority uint32
	Released bool

	// Priorities records every SetEvictionPriority call
	Priorities []uint32

	mutex *Mutex
}

func (t *Texture) EvictionPriority() uint32 { return t.Priority }

func (t *Texture) SetEvictionPriority(p uint32) {
	t.Priority = p
	t.Priorities = append(t.Priorities, p)
}

func (t *Texture) Release() { t.Released = true }

func (t *Texture) KeyedMutex() (hwframe.KeyedMutex, error) {
	if t.mutex == nil {
		return nil, errors.New("texture is not shared")
	}
	return t.mutex, nil
}

// Mutex is a keyed mutex that records its calls. Like DXGI it refuses a
// release while nobody holds it.
type Mutex struct {
	// Owner is the key that may currently be acquired
	Owner    uint64
	Held     bool
	Acquired []uint64
	Released []uint64
	// Refused holds the keys of releases made without holding the mutex
	Refused []uint64

	// FailRelease makes ReleaseSync fail
	FailRelease bool
}

// ErrNotHeld is returned by ReleaseSync on a mutex nobody holds
var ErrNotHeld = errors.New("keyed mutex is not held")

func (m *Mutex) AcquireSync(key uint64, timeout time.Duration) error {
	if m.Held || key != m.Owner {
		return hwframe.ErrLockTimeout
	}
	m.Held = true
	m.Acquired = append(m.Acquired, key)
	return nil
}

func (m *Mutex) ReleaseSync(key uint64) error {
	if m.FailRelease {
		return errors.New("release failed")
	}
	if !m.Held {
		m.Refused = append(m.Refused, key)
		return ErrNotHeld
	}
	m.Released = append(m.Released, key)
	m.Held = false
	m.Owner = key
	return nil
}

func (m *Mutex) Release() {}

// Produce plays the renderer's turn: it takes the mutex with its current
// owner key and releases it with key.
func (m *Mutex) Produce(key uint64) {
	m.Held = false
	m.Owner = key
}

// Device is a fake Device with a table of shared textures
type Device struct {
	mu      sync.Mutex
	Shared  map[uint64]*Texture
	Copies  int
	CopyErr error
}

func NewDevice() *Device {
	return &Device{Shared: make(map[uint64]*Texture)}
}

// Share registers a texture under handle, owned by key
func (d *Device) Share(handle uint64, content []byte, key uint64) *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &Texture{
		Name:    fmt.Sprintf("shared-%d", handle),
		Content: content,
		mutex:   &Mutex{Owner: key},
	}
	d.Shared[handle] = t
	return t
}

// Mutex returns the keyed mutex of a shared texture
func (d *Device) Mutex(handle uint64) *Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.Shared[handle]; ok {
		return t.mutex
	}
	return nil
}

func (d *Device) OpenSharedTexture(handle uint64) (hwframe.SharedTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.Shared[handle]
	if !ok {
		return nil, fmt.Errorf("no shared texture 0x%x", handle)
	}
	t.Released = false
	return t, nil
}

func (d *Device) CopyResource(dst, src hwframe.Texture) error {
	if d.CopyErr != nil {
		return d.CopyErr
	}
	dt, ok := dst.(*Texture)
	if !ok {
		return fmt.Errorf("unexpected destination %T", dst)
	}
	st, ok := src.(*Texture)
	if !ok {
		return fmt.Errorf("unexpected source %T", src)
	}
	dt.Content = append(dt.Content[:0], st.Content...)
	d.Copies++
	return nil
}

// Allocator hands out fake surfaces and counts them
type Allocator struct {
	Allocated int
	Contexts  []*hwframe.DeviceContext
	Err       error
}

func (a *Allocator) AllocateSurface(ctx *hwframe.DeviceContext, info pixfmt.VideoInfo) (*frame.Frame, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	ctx.Lock()
	defer ctx.Unlock()
	a.Allocated++
	a.Contexts = append(a.Contexts, ctx)
	return &frame.Frame{
		Width:   info.Width,
		Height:  info.Height,
		Format:  pixfmt.D3D11,
		Range:   info.Range,
		Space:   info.Space,
		Surface: &Texture{Name: fmt.Sprintf("surface-%d", a.Allocated)},
	}, nil
}

// CountingGuard is a Guard that tracks nesting
type CountingGuard struct {
	mu     sync.Mutex
	Enters int
	Depth  int
	Nested bool
}

func (g *CountingGuard) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Enters++
	g.Depth++
	if g.Depth > 1 {
		g.Nested = true
	}
}

func (g *CountingGuard) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Depth--
}

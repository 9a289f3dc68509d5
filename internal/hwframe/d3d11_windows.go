//go:build windows && (amd64 || arm64)

package hwframe

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// COM vtable indices
const (
	vtblQueryInterface = 0 // IUnknown
	vtblAddRef         = 1 // IUnknown
	vtblRelease        = 2 // IUnknown

	d3d11DeviceOpenSharedResource    = 28 // ID3D11Device
	d3d11CtxCopyResource             = 47 // ID3D11DeviceContext
	d3d11ResourceSetEvictionPriority = 8  // ID3D11Resource
	d3d11ResourceGetEvictionPriority = 9  // ID3D11Resource
	dxgiKeyedMutexAcquireSync        = 8  // IDXGIKeyedMutex
	dxgiKeyedMutexReleaseSync        = 9  // IDXGIKeyedMutex
)

// AcquireSync success codes that are not S_OK
const (
	waitAbandoned = 0x00000080
	waitTimeout   = 0x00000102
)

var (
	iidID3D11Texture2D = windows.GUID{Data1: 0x6f15aaf2, Data2: 0xd208, Data3: 0x4e89, Data4: [8]byte{0x9a, 0xb4, 0x48, 0x95, 0x35, 0xd3, 0x4f, 0x9c}}
	iidIDXGIKeyedMutex = windows.GUID{Data1: 0x9d8e1289, Data2: 0xd7b3, Data3: 0x465f, Data4: [8]byte{0x81, 0x26, 0x25, 0x0e, 0x34, 0x9a, 0xf8, 0x5d}}
)

func comVtblFn(obj uintptr, idx int) uintptr {
	vtable := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtable + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

func comCall(obj uintptr, idx int, args ...uintptr) (uintptr, error) {
	all := make([]uintptr, 0, 1+len(args))
	all = append(all, obj)
	all = append(all, args...)
	hr, _, _ := syscall.SyscallN(comVtblFn(obj, idx), all...)
	if int32(hr) < 0 {
		return hr, fmt.Errorf("COM vtable[%d] HRESULT 0x%08X", idx, uint32(hr))
	}
	return hr, nil
}

func comAddRef(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(comVtblFn(obj, vtblAddRef), obj)
	}
}

func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(comVtblFn(obj, vtblRelease), obj)
	}
}

// D3D11Device is a Device over the renderer's ID3D11Device and immediate
// context
type D3D11Device struct {
	device  uintptr
	context uintptr
}

// OpenD3D11Device takes a reference on the renderer's device and immediate
// context. Close drops them.
func OpenD3D11Device(device, context uintptr) (*D3D11Device, error) {
	if device == 0 || context == 0 {
		return nil, ErrNoDevice
	}
	comAddRef(device)
	comAddRef(context)
	return &D3D11Device{device: device, context: context}, nil
}

func (d *D3D11Device) Close() {
	comRelease(d.context)
	comRelease(d.device)
	d.context, d.device = 0, 0
}

func (d *D3D11Device) OpenSharedTexture(handle uint64) (SharedTexture, error) {
	var tex uintptr
	_, err := comCall(d.device, d3d11DeviceOpenSharedResource,
		uintptr(windows.Handle(handle)),
		uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&tex)),
	)
	if err != nil {
		return nil, fmt.Errorf("OpenSharedResource: %w", err)
	}
	return &d3d11Texture{ptr: tex}, nil
}

func (d *D3D11Device) CopyResource(dst, src Texture) error {
	dt, ok := dst.(*d3d11Texture)
	if !ok {
		return fmt.Errorf("destination is not a D3D11 texture (%T)", dst)
	}
	st, ok := src.(*d3d11Texture)
	if !ok {
		return fmt.Errorf("source is not a D3D11 texture (%T)", src)
	}
	// CopyResource returns void
	syscall.SyscallN(comVtblFn(d.context, d3d11CtxCopyResource), d.context, dt.ptr, st.ptr)
	return nil
}

// WrapD3D11Texture adopts a codec-owned ID3D11Texture2D pointer. Release on
// the result drops that reference.
func WrapD3D11Texture(ptr uintptr) Texture {
	return &d3d11Texture{ptr: ptr}
}

type d3d11Texture struct {
	ptr uintptr
}

func (t *d3d11Texture) EvictionPriority() uint32 {
	ret, _, _ := syscall.SyscallN(comVtblFn(t.ptr, d3d11ResourceGetEvictionPriority), t.ptr)
	return uint32(ret)
}

func (t *d3d11Texture) SetEvictionPriority(p uint32) {
	syscall.SyscallN(comVtblFn(t.ptr, d3d11ResourceSetEvictionPriority), t.ptr, uintptr(p))
}

func (t *d3d11Texture) Release() {
	comRelease(t.ptr)
	t.ptr = 0
}

func (t *d3d11Texture) KeyedMutex() (KeyedMutex, error) {
	var km uintptr
	_, err := comCall(t.ptr, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIKeyedMutex)),
		uintptr(unsafe.Pointer(&km)),
	)
	if err != nil {
		return nil, fmt.Errorf("QueryInterface IDXGIKeyedMutex: %w", err)
	}
	return &dxgiKeyedMutex{ptr: km}, nil
}

type dxgiKeyedMutex struct {
	ptr uintptr
}

func (m *dxgiKeyedMutex) AcquireSync(key uint64, timeout time.Duration) error {
	hr, _, _ := syscall.SyscallN(comVtblFn(m.ptr, dxgiKeyedMutexAcquireSync),
		m.ptr, uintptr(key), uintptr(uint32(timeout.Milliseconds())))
	switch {
	case hr == waitTimeout:
		return ErrLockTimeout
	case hr == waitAbandoned:
		return fmt.Errorf("keyed mutex abandoned by its owner")
	case int32(hr) < 0:
		return fmt.Errorf("AcquireSync HRESULT 0x%08X", uint32(hr))
	}
	return nil
}

func (m *dxgiKeyedMutex) ReleaseSync(key uint64) error {
	if _, err := comCall(m.ptr, dxgiKeyedMutexReleaseSync, uintptr(key)); err != nil {
		return fmt.Errorf("ReleaseSync: %w", err)
	}
	return nil
}

func (m *dxgiKeyedMutex) Release() {
	comRelease(m.ptr)
	m.ptr = 0
}

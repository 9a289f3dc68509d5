//go:build !windows || !(amd64 || arm64)

package hwframe

// D3D11Device is only available on 64-bit Windows
type D3D11Device struct{}

func OpenD3D11Device(device, context uintptr) (*D3D11Device, error) {
	return nil, ErrUnsupported
}

func (d *D3D11Device) Close() {}

func (d *D3D11Device) OpenSharedTexture(handle uint64) (SharedTexture, error) {
	return nil, ErrUnsupported
}

func (d *D3D11Device) CopyResource(dst, src Texture) error {
	return ErrUnsupported
}

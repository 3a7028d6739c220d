package wgpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

// Backend implements backend.RenderBackend on a HAL device.
type Backend struct {
	provider gpucontext.DeviceProvider
	opts     []Option
	dev      *Device
	borrowed bool
}

var _ backend.RenderBackend = (*Backend)(nil)

// init registers the GPU backend on package import.
func init() {
	backend.Register(backend.BackendWGPU, func() backend.RenderBackend {
		return NewBackend()
	})
}

// NewBackend creates a backend that opens its own device in Init.
func NewBackend(opts ...Option) *Backend {
	return &Backend{opts: opts}
}

// NewBackendWithProvider creates a backend on the device of a host GPU
// context.
func NewBackendWithProvider(provider gpucontext.DeviceProvider, opts ...Option) *Backend {
	return &Backend{provider: provider, opts: opts}
}

// NewBackendWithDevice creates a backend on an existing device. Close does
// not close the device.
func NewBackendWithDevice(d *Device) *Backend {
	return &Backend{dev: d, borrowed: true}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendWGPU }

// Init opens the device. Calling Init twice is a no-op.
func (b *Backend) Init() error {
	if b.dev != nil {
		return nil
	}
	var (
		d   *Device
		err error
	)
	if b.provider != nil {
		d, err = NewDevice(b.provider, b.opts...)
	} else {
		d, err = Open(b.opts...)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrBackendNotAvailable, err)
	}
	b.dev = d
	return nil
}

// Close releases the device unless it was borrowed.
func (b *Backend) Close() {
	if b.dev != nil && !b.borrowed {
		b.dev.Close()
	}
	b.dev = nil
}

// Device returns the device, or nil before Init.
func (b *Backend) Device() stylize.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// GPUDevice returns the concrete device, or nil before Init.
func (b *Backend) GPUDevice() *Device { return b.dev }

// Format returns Format.
func (b *Backend) Format() gputypes.TextureFormat { return Format }

// NewRenderPipeline compiles the shader's WGSL.
func (b *Backend) NewRenderPipeline(sh *backend.Shader) (any, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	p, err := b.dev.RenderPipeline(sh)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewComputePipeline compiles the shader's WGSL.
func (b *Backend) NewComputePipeline(sh *backend.Shader) (any, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	p, err := b.dev.ComputePipeline(sh)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewSampler returns the device sampler for f.
func (b *Backend) NewSampler(f backend.Filter) (any, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	s, err := b.dev.Sampler(f)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewStorage creates a texture compute passes can write and later passes
// can sample.
func (b *Backend) NewStorage(label string, size stylize.FrameSize) (stylize.Surface, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	s, err := b.dev.newSurface(stylize.SurfaceDescriptor{
		Label:  label,
		Size:   size,
		Format: Format,
		Usage: gputypes.TextureUsageStorageBinding |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upload creates a sampleable surface holding img.
func (b *Backend) Upload(label string, img image.Image) (stylize.Surface, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	s, err := b.dev.Upload(label, img)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Download reads a surface back to memory.
func (b *Backend) Download(s stylize.Surface) (*image.NRGBA, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	return b.dev.Download(s)
}

package cpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

type renderPipeline struct {
	label  string
	kernel backend.RenderKernel
}

type computePipeline struct {
	label  string
	kernel backend.ComputeKernel
}

// Backend is the CPU implementation of backend.RenderBackend.
type Backend struct {
	opts []Option
	dev  *Device
}

var _ backend.RenderBackend = (*Backend)(nil)

// init registers the CPU backend on package import.
func init() {
	backend.Register(backend.BackendCPU, func() backend.RenderBackend {
		return NewBackend()
	})
}

// NewBackend creates a CPU backend. The device is created by Init.
func NewBackend(opts ...Option) *Backend {
	return &Backend{opts: opts}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendCPU }

// Init creates the device. Calling Init twice is a no-op.
func (b *Backend) Init() error {
	if b.dev == nil {
		b.dev = NewDevice(b.opts...)
	}
	return nil
}

// Close releases the device.
func (b *Backend) Close() {
	if b.dev != nil {
		b.dev.Close()
		b.dev = nil
	}
}

// Device returns the CPU device, or nil before Init.
func (b *Backend) Device() stylize.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// CPUDevice returns the concrete device, or nil before Init.
func (b *Backend) CPUDevice() *Device { return b.dev }

// Format returns Format.
func (b *Backend) Format() gputypes.TextureFormat { return Format }

// NewRenderPipeline wraps the shader's Render kernel.
func (b *Backend) NewRenderPipeline(sh *backend.Shader) (any, error) {
	if sh.Render == nil {
		return nil, fmt.Errorf("cpu: render shader %q: %w", sh.Label, backend.ErrNoKernel)
	}
	return &renderPipeline{label: sh.Label, kernel: sh.Render}, nil
}

// NewComputePipeline wraps the shader's Compute kernel.
func (b *Backend) NewComputePipeline(sh *backend.Shader) (any, error) {
	if sh.Compute == nil {
		return nil, fmt.Errorf("cpu: compute shader %q: %w", sh.Label, backend.ErrNoKernel)
	}
	return &computePipeline{label: sh.Label, kernel: sh.Compute}, nil
}

// NewSampler returns a sampler with the given filter.
func (b *Backend) NewSampler(f backend.Filter) (any, error) {
	return &Sampler{Filter: f}, nil
}

// NewStorage creates a surface compute kernels can write.
func (b *Backend) NewStorage(label string, size stylize.FrameSize) (stylize.Surface, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	s, err := b.dev.newSurface(stylize.SurfaceDescriptor{
		Label:  label,
		Size:   size,
		Format: Format,
		Usage:  gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upload copies img into a new surface.
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

// Download copies a surface back to memory.
func (b *Backend) Download(s stylize.Surface) (*image.NRGBA, error) {
	if b.dev == nil {
		return nil, backend.ErrNotInitialized
	}
	return b.dev.Download(s)
}

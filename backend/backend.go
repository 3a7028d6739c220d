package backend

import (
	"errors"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stylize"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrNoKernel is returned when a shader has no code for the backend.
	ErrNoKernel = errors.New("backend: shader has no kernel for this backend")
)

// Filter selects texture sampling.
type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
)

// String returns the filter name.
func (f Filter) String() string {
	if f == FilterLinear {
		return "linear"
	}
	return "nearest"
}

// RenderBackend creates the device and the device-specific objects effect
// builders put into pass descriptors.
//
// Backends must be registered via Register() and are selected via
// Get() or InitDefault().
type RenderBackend interface {
	// Name returns the backend identifier (e.g., "cpu", "wgpu").
	Name() string

	// Init initializes the backend.
	// This should be called before any other method.
	Init() error

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()

	// Device returns the device passes are executed on.
	Device() stylize.Device

	// Format is the color format of surfaces created by Upload and of
	// intermediate surfaces.
	Format() gputypes.TextureFormat

	// NewRenderPipeline compiles a full-screen render shader.
	NewRenderPipeline(sh *Shader) (any, error)

	// NewComputePipeline compiles a compute shader.
	NewComputePipeline(sh *Shader) (any, error)

	// NewSampler creates a clamp-to-edge sampler.
	NewSampler(f Filter) (any, error)

	// NewStorage creates a surface compute passes can write.
	NewStorage(label string, size stylize.FrameSize) (stylize.Surface, error)

	// Upload creates a sampleable surface holding img.
	Upload(label string, img image.Image) (stylize.Surface, error)

	// Download reads a surface back to memory.
	Download(s stylize.Surface) (*image.NRGBA, error)
}

package backend

import (
	"sort"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/stylize"
)

// Backend name constants.
const (
	// BackendWGPU is the name of the GPU backend on gogpu/wgpu HAL.
	BackendWGPU = "wgpu"
	// BackendCPU is the name of the pure Go reference backend.
	BackendCPU = "cpu"
)

// BackendFactory creates a new backend instance.
type BackendFactory func() RenderBackend

// Priority order for backend selection (first available wins).
var registry = gpucontext.NewRegistry[RenderBackend](
	gpucontext.WithPriority(BackendWGPU, BackendCPU),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory BackendFactory) {
	registry.Register(name, factory)
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) RenderBackend {
	return registry.Get(name)
}

// Init creates and initializes the named backend.
func Init(name string) (RenderBackend, error) {
	b := Get(name)
	if b == nil {
		return nil, ErrBackendNotAvailable
	}
	if err := b.Init(); err != nil {
		return nil, err
	}
	stylize.Logger().Info("backend selected", "name", b.Name())
	return b, nil
}

// InitDefault initializes the best backend that starts successfully.
// Priority order: wgpu > cpu, then any other registered backend.
func InitDefault() (RenderBackend, error) {
	tried := map[string]bool{}
	order := append([]string{BackendWGPU, BackendCPU}, Available()...)
	for _, name := range order {
		if tried[name] || !IsRegistered(name) {
			continue
		}
		tried[name] = true
		b, err := Init(name)
		if err == nil {
			return b, nil
		}
		stylize.Logger().Debug("backend unavailable", "name", name, "err", err)
	}
	return nil, ErrBackendNotAvailable
}

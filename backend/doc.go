// Package backend provides the pluggable device backends for stylize.
//
// A backend owns a stylize.Device and knows how to turn a backend-neutral
// Shader into the opaque pipeline handle stored in a PassDescriptor.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/stylize/backend/cpu"
//
// # Backend Selection
//
// Use InitDefault() to start the best available backend, or Init() to
// request a specific one by name:
//
//	b, err := backend.InitDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	exec := stylize.NewExecutor(b.Device())
//
// # Shaders
//
// A Shader carries WGSL for GPU backends and Go kernels for the CPU
// backend. Bindings follow one layout everywhere: sampler at slot 0, the
// input image at slot 1, uniforms and extra textures from slot 2. Uniforms
// are []float32 values bound with stylize.BindingBuffer.
//
// # Available Backends
//
//   - "cpu": pure Go reference device (always available)
//   - "wgpu": GPU device on gogpu/wgpu HAL
package backend

// Package wgpu runs stylize programs on the GPU through gogpu/wgpu HAL.
//
// The backend compiles each shader's WGSL to SPIR-V with naga and keeps the
// resulting pipelines in an LRU cache keyed by source, entry points and
// bind group layout. Every pipeline uses a single bind group (group 0)
// built per pass from the pass bindings:
//
//	binding kind          resource
//	sampler               *wgpu.Sampler (Backend.NewSampler)
//	texture               *wgpu.Surface, sampled as texture_2d<f32>
//	storage-texture       *wgpu.Surface, texture_storage_2d<rgba8unorm, write>
//	buffer                []float32, uploaded as a uniform buffer
//
// Render pipelines draw a six-vertex full-screen quad into an rgba8unorm
// target; the vertex stage must derive positions from vertex_index.
//
// # Device creation
//
// Open tries the HAL backends in BackendPriority order. HAL backends
// register themselves on import:
//
//	import (
//		_ "github.com/gogpu/wgpu/hal/vulkan"
//		_ "github.com/gogpu/stylize/backend/wgpu"
//	)
//
// A host that already owns a device passes its gpucontext.DeviceProvider to
// NewBackendWithProvider instead.
//
// # Resource lifetime
//
// Bind groups and uniform buffers of a batch, and textures of destroyed
// surfaces, are kept until the queue reports the submission complete.
// Device.Busy reports in-flight work so the render loop can skip a frame
// instead of queueing behind the GPU. Loss of the device is reported as
// stylize.ErrDeviceLost.
package wgpu

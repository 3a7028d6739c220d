package stylize

import "github.com/gogpu/gputypes"

// Surface is a 2D color texture owned by a Device.
type Surface interface {
	Label() string
	Size() FrameSize
	Format() gputypes.TextureFormat
}

// SurfaceDescriptor describes a surface to create.
type SurfaceDescriptor struct {
	Label  string
	Size   FrameSize
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// IntermediateUsage is the usage of executor-owned intermediate surfaces:
// written as a render attachment, then sampled by the next pass.
const IntermediateUsage = gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageCopySrc

// Device is the GPU abstraction the executor drives. Implementations are
// provided by the backend packages. The device and its format are passed
// explicitly to every component that needs them.
type Device interface {
	// CreateSurface allocates a surface. Failure means device exhaustion.
	CreateSurface(desc SurfaceDescriptor) (Surface, error)

	// DestroySurface releases a surface created by this device.
	DestroySurface(s Surface)

	// BeginBatch opens a command batch. Work recorded into it reaches the
	// queue on Submit.
	BeginBatch(label string) (CommandBatch, error)
}

// CommandBatch records passes for one queue submission.
type CommandBatch interface {
	BeginRenderPass(label string, target Surface) (RenderPassEncoder, error)
	BeginComputePass(label string) (ComputePassEncoder, error)

	// Submit ends recording and submits the batch to the queue.
	Submit() error

	// Discard abandons an unsubmitted batch.
	Discard()
}

// RenderPassEncoder records one render pass.
type RenderPassEncoder interface {
	SetPipeline(pipeline any) error
	SetBindings(bindings []Binding) error
	Draw(vertexCount, instanceCount uint32)
	End() error
}

// ComputePassEncoder records one compute pass.
type ComputePassEncoder interface {
	SetPipeline(pipeline any) error
	SetBindings(bindings []Binding) error
	Dispatch(x, y, z uint32)
	End() error
}

// BusyReporter is implemented by devices that can tell whether previously
// submitted work is still in flight.
type BusyReporter interface {
	Busy() bool
}

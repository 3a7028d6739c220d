// Package stylize is a multi-pass shader orchestration engine for image
// stylization effects.
//
// # Overview
//
// An effect describes one frame as [ProgramInstructions]: an ordered list of
// [PassDescriptor] values, each a render or compute pass with an opaque
// pipeline handle and slot-indexed resource bindings. The [Executor] runs the
// passes in order on a [Device], feeding each render pass's output into
// binding slot 1 of the next pass through transient intermediate surfaces
// managed by a [SurfaceManager].
//
// The [RenderLoop] renders a [Renderable] once, or, when it is animated,
// repeatedly: each tick waits for the effect's cadence, then for the next
// paint opportunity of the [Scheduler], then rebuilds and executes the
// instructions with the advanced time value.
//
// # Quick Start
//
//	dev := cpu.NewDevice()
//	exec := stylize.NewExecutor(dev)
//	loop := stylize.NewRenderLoop(exec, stylize.NewEventLoop(0))
//
//	session, err := loop.StartOrReplace(stylize.SessionConfig{
//	    Renderable: effect,
//	    Size:       stylize.FrameSize{Width: 640, Height: 480},
//	    Target:     canvas,
//	})
//
// # Batching
//
// Every render pass ends its command batch with a submit. A compute pass
// records into a batch without submitting, and the pass after it joins the
// same batch. A compute pass can never be the terminal pass.
//
// # Time
//
// Each tick advances the session time by lastTick - now seconds, scaled by
// the renderable's [TimeScaler] if present. The phase therefore runs
// backwards relative to the wall clock; generators consuming it are
// phase-sensitive and depend on this direction.
//
// # Backends
//
// Package backend/cpu executes pipelines as Go pixel kernels and is the
// reference backend. Package backend/wgpu drives a gogpu/wgpu HAL device.
package stylize

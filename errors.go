package stylize

import "errors"

// Configuration errors. They indicate a defect in an effect builder or host
// and are never retried.
var (
	// ErrEmptyProgram is returned when ProgramInstructions has no passes.
	ErrEmptyProgram = errors.New("stylize: program has no passes")

	// ErrTerminalCompute is returned when the last pass is a compute pass.
	// Compute passes write storage textures only, never the presentable
	// terminal surface.
	ErrTerminalCompute = errors.New("stylize: terminal pass must be a render pass")

	// ErrInvalidFrameSize is returned for frames with a zero dimension.
	ErrInvalidFrameSize = errors.New("stylize: invalid frame size")

	// ErrInvalidWorkgroupTile is returned for compute passes without a tile size.
	ErrInvalidWorkgroupTile = errors.New("stylize: compute pass needs a positive workgroup tile")

	// ErrNoTerminal is returned when Execute is called without a terminal surface.
	ErrNoTerminal = errors.New("stylize: no terminal surface")

	// ErrSizeMismatch is returned when the terminal surface is not frame sized.
	ErrSizeMismatch = errors.New("stylize: terminal surface size does not match frame")
)

// Device errors. They abort the current render and stop animation.
var (
	// ErrSurfaceAllocation wraps a device failure to allocate an intermediate surface.
	ErrSurfaceAllocation = errors.New("stylize: intermediate surface allocation failed")

	// ErrDeviceLost is returned by a RenderLoop after DeviceLost was reported.
	ErrDeviceLost = errors.New("stylize: device lost")

	// ErrSurfaceManagerClosed is returned by Allocate after Close.
	ErrSurfaceManagerClosed = errors.New("stylize: surface manager closed")
)

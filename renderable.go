package stylize

import "time"

// Common animation cadences.
const (
	Cadence10Hz = time.Second / 10
	Cadence20Hz = time.Second / 20
	Cadence30Hz = time.Second / 30
	Cadence60Hz = time.Second / 60
)

// Renderable builds the pass plan for one frame.
//
// BuildInstructions is called fresh for every render, single-shot or per
// tick, so time-varying uniforms are always current. Animated and Cadence
// are owned by the effect, not by the loop.
type Renderable interface {
	BuildInstructions(time float64, size FrameSize) (*ProgramInstructions, error)
	Animated() bool
	Cadence() time.Duration
}

// RenderableFunc adapts a build function to a non-animated Renderable.
type RenderableFunc func(time float64, size FrameSize) (*ProgramInstructions, error)

// BuildInstructions calls f.
func (f RenderableFunc) BuildInstructions(time float64, size FrameSize) (*ProgramInstructions, error) {
	return f(time, size)
}

// Animated returns false.
func (RenderableFunc) Animated() bool { return false }

// Cadence returns 0.
func (RenderableFunc) Cadence() time.Duration { return 0 }

package studio

import (
	"time"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/effects"
	"github.com/gogpu/stylize/source"
)

// Composition renders a source followed by an optional effect. The first
// effect pass reads the source output through the executor's slot-1
// rewiring.
type Composition struct {
	Source source.Source
	Effect effects.Effect

	// Speed scales the animation phase; 0 means 1.
	Speed float64
}

var (
	_ stylize.Renderable = (*Composition)(nil)
	_ stylize.TimeScaler = (*Composition)(nil)
)

// BuildInstructions implements stylize.Renderable.
func (c *Composition) BuildInstructions(t float64, size stylize.FrameSize) (*stylize.ProgramInstructions, error) {
	passes, err := c.Source.Passes(t, size)
	if err != nil {
		return nil, err
	}
	label := c.Source.Name()
	if c.Effect != nil {
		more, err := c.Effect.Passes(t, size)
		if err != nil {
			return nil, err
		}
		passes = append(passes, more...)
		label += "+" + c.Effect.Name()
	}
	return &stylize.ProgramInstructions{Label: label, Passes: passes}, nil
}

// Animated reports whether the source or the effect animates.
func (c *Composition) Animated() bool {
	return c.Source.Animated() || (c.Effect != nil && c.Effect.Animated())
}

// Cadence is the faster of the animated parts' cadences.
func (c *Composition) Cadence() time.Duration {
	var d time.Duration
	pick := func(animated bool, cadence time.Duration) {
		if animated && cadence > 0 && (d == 0 || cadence < d) {
			d = cadence
		}
	}
	pick(c.Source.Animated(), c.Source.Cadence())
	if c.Effect != nil {
		pick(c.Effect.Animated(), c.Effect.Cadence())
	}
	return d
}

// TimeScale implements stylize.TimeScaler.
func (c *Composition) TimeScale() float64 {
	if c.Speed == 0 {
		return 1
	}
	return c.Speed
}

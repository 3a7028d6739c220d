// Package effects builds the pass lists of the image effects.
//
// An Effect compiles its pipelines once, on the backend it is created for,
// and returns fresh pass descriptors for every frame. Effect passes follow
// the passes of a source: the first effect pass declares its input at
// stylize.InputSlot without a resource and the executor wires it to the
// source output.
//
// Render shaders share one bind group layout:
//
//	@binding(0) sampler
//	@binding(1) input texture
//	@binding(2) uniforms, a struct of f32 fields
//
// Effects are looked up by name:
//
//	e, err := effects.New(effects.NameASCII, b)
//	if err != nil {
//		return err
//	}
//	defer e.Close()
//	passes, err := e.Passes(t, size)
package effects

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/params"
)

// Effect names.
const (
	NameGrayscale = "grayscale"
	NameThreshold = "threshold"
	NameInvert    = "invert"
	NameScale     = "scale"
	NameCRT       = "crt"
	NameDoG       = "dog"
	NameCel       = "cel"
	NameASCII     = "ascii"
)

// ErrUnknownEffect is returned by New for unregistered names.
var ErrUnknownEffect = errors.New("effects: unknown effect")

// Effect builds the passes of one image effect.
type Effect interface {
	// Name is the registered name.
	Name() string

	// Params are the user-tunable parameters. Changing one affects the
	// passes built afterwards.
	Params() *params.Set

	// Passes returns the passes applying the effect at time to a frame of
	// size. The last pass is a render pass.
	Passes(time float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error)

	Animated() bool
	Cadence() time.Duration

	// Close releases device resources owned by the effect.
	Close()
}

// Constructor creates an effect on a backend.
type Constructor func(b backend.RenderBackend) (Effect, error)

var registry = gpucontext.NewRegistry[Constructor](
	gpucontext.WithPriority(NameASCII, NameCel, NameDoG, NameCRT),
)

func init() {
	Register(NameGrayscale, NewGrayscale)
	Register(NameThreshold, NewThreshold)
	Register(NameInvert, NewInvert)
	Register(NameScale, NewScale)
	Register(NameCRT, NewCRT)
	Register(NameDoG, NewDoG)
	Register(NameCel, NewCel)
	Register(NameASCII, NewASCII)
}

// Register makes an effect available under name, replacing any effect
// registered under the same name.
func Register(name string, c Constructor) {
	registry.Register(name, func() Constructor { return c })
}

// Has reports whether name is registered.
func Has(name string) bool { return registry.Has(name) }

// New creates the effect registered under name.
func New(name string, b backend.RenderBackend) (Effect, error) {
	c := registry.Get(name)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	e, err := c(b)
	if err != nil {
		return nil, fmt.Errorf("effects: create %s: %w", name, err)
	}
	return e, nil
}

// Names returns the registered names, sorted.
func Names() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}

// Default returns the name of the preferred registered effect.
func Default() string { return registry.BestName() }

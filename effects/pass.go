package effects

import (
	"errors"
	"time"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/params"
)

// UniformSlot is the binding slot of an effect's uniform values.
const UniformSlot uint32 = 2

var errShortUniforms = errors.New("effects: uniform buffer too short")

var (
	slotSampler  = backend.Slot{Binding: 0, Kind: stylize.BindingSampler}
	slotInput    = backend.Slot{Binding: stylize.InputSlot, Kind: stylize.BindingTexture}
	slotUniforms = backend.Slot{Binding: UniformSlot, Kind: stylize.BindingBuffer}
)

// inputBindings is the header shared by render shaders.
const inputBindings = `
@group(0) @binding(0) var srcSampler: sampler;
@group(0) @binding(1) var srcTexture: texture_2d<f32>;
`

// renderShader wraps a fragment stage with the full-screen vertex stage and
// the default layout.
func renderShader(label, fragment string, kernel backend.RenderKernel, extra ...backend.Slot) *backend.Shader {
	layout := append([]backend.Slot{slotSampler, slotInput, slotUniforms}, extra...)
	return &backend.Shader{
		Label:  label,
		WGSL:   backend.QuadWGSL + inputBindings + fragment,
		Layout: layout,
		Render: kernel,
	}
}

// stage is a compiled render pipeline with the sampler it reads through.
type stage struct {
	label    string
	pipeline any
	sampler  any
}

func newStage(b backend.RenderBackend, sh *backend.Shader, filter backend.Filter) (*stage, error) {
	p, err := b.NewRenderPipeline(sh)
	if err != nil {
		return nil, err
	}
	s, err := b.NewSampler(filter)
	if err != nil {
		return nil, err
	}
	return &stage{label: sh.Label, pipeline: p, sampler: s}, nil
}

// pass returns a render pass reading the previous pass output, with u bound
// at UniformSlot and extra bindings after it.
func (s *stage) pass(u []float32, extra ...stylize.Binding) stylize.PassDescriptor {
	bindings := make([]stylize.Binding, 0, 3+len(extra))
	bindings = append(bindings,
		stylize.Binding{Slot: 0, Kind: stylize.BindingSampler, Resource: s.sampler},
		stylize.Binding{Slot: stylize.InputSlot, Kind: stylize.BindingTexture},
		stylize.Binding{Slot: UniformSlot, Kind: stylize.BindingBuffer, Resource: u},
	)
	bindings = append(bindings, extra...)
	return stylize.PassDescriptor{
		Label:    s.label,
		Kind:     stylize.PassRender,
		Pipeline: s.pipeline,
		Bindings: bindings,
	}
}

// base carries what every effect has in common.
type base struct {
	name    string
	set     *params.Set
	cadence time.Duration
}

func (e *base) Name() string { return e.name }
func (e *base) Params() *params.Set { return e.set }
func (e *base) Animated() bool { return e.cadence > 0 }
func (e *base) Cadence() time.Duration { return e.cadence }
func (e *base) Close() {}

// uniformsOf returns the uniform values of a CPU kernel's pass.
func uniformsOf(in backend.Inputs) []float32 {
	u, err := in.Uniforms(UniformSlot)
	if err != nil {
		return nil
	}
	return u
}

// unit converts an 8-bit channel to 0..1.
func unit(v uint8) float32 { return float32(v) / 255 }

// byte8 converts a 0..1 value to an 8-bit channel, clamping.
func byte8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func clamp01(v float32) float32 { return min(max(v, 0), 1) }

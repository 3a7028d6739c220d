// Package source provides the textures effects are applied to.
//
// A Source contributes the first passes of a program: they render the
// source into a frame-sized surface whose output the executor wires into
// slot 1 of the first effect pass. Two sources are provided: Image, a
// decoded picture fitted into a maximum frame, and Perlin, a procedural
// noise field that can animate.
package source

import (
	"errors"
	"image/color"
	"time"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/params"
)

// Source names.
const (
	NameImage  = "image"
	NamePerlin = "perlin"
)

var (
	// ErrTooLarge is returned for encoded images over MaxInputBytes.
	ErrTooLarge = errors.New("source: input exceeds 10 MiB")

	// ErrClosed is returned by Passes after Close.
	ErrClosed = errors.New("source: closed")
)

// Source renders the texture an effect is applied to.
type Source interface {
	// Name is the kind of source, NameImage or NamePerlin.
	Name() string

	// Key identifies the content. Selecting a source with the same key as
	// the active one is a no-op.
	Key() string

	// Params are the user-tunable parameters.
	Params() *params.Set

	// Size is the natural frame size of the source.
	Size() stylize.FrameSize

	// Passes returns the passes rendering the source at time into a frame
	// of size. The last pass is a render pass.
	Passes(time float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error)

	Animated() bool
	Cadence() time.Duration

	// Close releases device resources.
	Close()
}

const blitWGSL = backend.QuadWGSL + `
@group(0) @binding(0) var srcSampler: sampler;
@group(0) @binding(1) var srcTexture: texture_2d<f32>;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	return textureSample(srcTexture, srcSampler, in.uv);
}
`

// blitShader stretches the texture at slot 1 over the target.
func blitShader(label string) *backend.Shader {
	return &backend.Shader{
		Label: label,
		WGSL:  blitWGSL,
		Layout: []backend.Slot{
			{Binding: 0, Kind: stylize.BindingSampler},
			{Binding: stylize.InputSlot, Kind: stylize.BindingTexture},
		},
		Render: func(in backend.Inputs) (backend.FragmentFunc, error) {
			tex, err := in.Texture(stylize.InputSlot)
			if err != nil {
				return nil, err
			}
			size := in.Size()
			return func(x, y int) color.NRGBA {
				u, v := backend.UV(x, y, size)
				return tex.Sample(u, v)
			}, nil
		},
	}
}

// blitter draws an uploaded surface with a linear sampler.
type blitter struct {
	label    string
	pipeline any
	sampler  any
}

func newBlitter(b backend.RenderBackend, label string) (*blitter, error) {
	p, err := b.NewRenderPipeline(blitShader(label))
	if err != nil {
		return nil, err
	}
	s, err := b.NewSampler(backend.FilterLinear)
	if err != nil {
		return nil, err
	}
	return &blitter{label: label, pipeline: p, sampler: s}, nil
}

func (bl *blitter) pass(src stylize.Surface) stylize.PassDescriptor {
	return stylize.PassDescriptor{
		Label:    bl.label,
		Kind:     stylize.PassRender,
		Pipeline: bl.pipeline,
		Bindings: []stylize.Binding{
			{Slot: 0, Kind: stylize.BindingSampler, Resource: bl.sampler},
			{Slot: stylize.InputSlot, Kind: stylize.BindingTexture, Resource: src},
		},
	}
}

package backend

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/stylize"
)

// Default shader entry points.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
	DefaultComputeEntry  = "cs_main"
)

// Slot declares one entry of a shader's bind group layout.
type Slot struct {
	Binding uint32
	Kind    stylize.BindingKind
}

// Shader is a backend-neutral shader. GPU backends compile WGSL; the CPU
// backend runs the Go kernels. A shader may carry both.
type Shader struct {
	Label string

	// WGSL source with entry points named by the *Entry fields.
	WGSL          string
	VertexEntry   string
	FragmentEntry string
	ComputeEntry  string

	// Layout is the bind group 0 layout, in binding order.
	Layout []Slot

	// Render is the CPU kernel of a render shader.
	Render RenderKernel

	// Compute is the CPU kernel of a compute shader.
	Compute ComputeKernel
}

// Entry returns the configured entry point or the default.
func (s *Shader) Entry(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// Validate checks that every slot binding is unique.
func (s *Shader) Validate() error {
	seen := make(map[uint32]bool, len(s.Layout))
	for _, slot := range s.Layout {
		if seen[slot.Binding] {
			return fmt.Errorf("backend: shader %q: duplicate binding %d", s.Label, slot.Binding)
		}
		seen[slot.Binding] = true
	}
	return nil
}

// Texture is read access to a bound surface from a CPU kernel.
type Texture interface {
	Size() stylize.FrameSize

	// Load returns the texel at (x, y), clamped to the edge.
	Load(x, y int) color.NRGBA

	// Sample returns the filtered color at normalized (u, v) using the
	// sampler bound at slot 0.
	Sample(u, v float32) color.NRGBA

	// Image exposes the texels. Kernels must not modify it.
	Image() *image.NRGBA
}

// Inputs gives a CPU kernel access to the resources bound to its pass.
type Inputs interface {
	// Size is the frame size the pass covers.
	Size() stylize.FrameSize

	// Texture returns the texture-shaped binding at slot.
	Texture(slot uint32) (Texture, error)

	// Uniforms returns the float values bound at slot.
	Uniforms(slot uint32) ([]float32, error)

	// Storage returns the writable image bound at slot.
	Storage(slot uint32) (*image.NRGBA, error)
}

// FragmentFunc shades the pixel at (x, y).
type FragmentFunc func(x, y int) color.NRGBA

// RenderKernel prepares a pass from its inputs and returns the per-pixel
// function. Whole-image work such as blurs belongs in the kernel body, not
// in the returned function.
type RenderKernel func(in Inputs) (FragmentFunc, error)

// ComputeKernel runs a dispatch of groups workgroups.
type ComputeKernel func(in Inputs, groups [3]uint32) error

// Uniform returns u[i], or fallback when u is too short.
func Uniform(u []float32, i int, fallback float32) float32 {
	if i < len(u) {
		return u[i]
	}
	return fallback
}

// QuadWGSL is the vertex stage shared by full-screen render shaders. vs_main
// covers the target with two triangles from vertex_index alone and passes
// uv in 0..1 with the origin at the top left. Fragment stages take a
// VertexOutput.
const QuadWGSL = `
struct VertexOutput {
	@builtin(position) position: vec4<f32>,
	@location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) vertex_index: u32) -> VertexOutput {
	let corner = select(vertex_index, vertex_index - 2u, vertex_index > 2u);
	let x = f32(corner & 1u);
	let y = f32(corner >> 1u);
	var result: VertexOutput;
	result.position = vec4<f32>(x * 2.0 - 1.0, 1.0 - y * 2.0, 0.0, 1.0);
	result.uv = vec2<f32>(x, y);
	return result;
}
`

// UV returns the normalized coordinates of the center of pixel (x, y), as
// the fragment stage of QuadWGSL sees them.
func UV(x, y int, size stylize.FrameSize) (u, v float32) {
	return (float32(x) + 0.5) / float32(size.Width), (float32(y) + 0.5) / float32(size.Height)
}

package effects

import (
	"image/color"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/internal/filter"
	"github.com/gogpu/stylize/params"
)

const matrixWGSL = `
struct Transform {
	m: mat4x4<f32>,
	bias: vec4<f32>,
};

@group(0) @binding(2) var<uniform> transform: Transform;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let c = textureSample(srcTexture, srcSampler, in.uv);
	return clamp(transform.m * c + transform.bias, vec4<f32>(0.0), vec4<f32>(1.0));
}
`

// packMatrix lays m out as a column-major mat4x4 followed by the bias
// vector, in 0..1 color units.
func packMatrix(m filter.ColorMatrix) []float32 {
	u := make([]float32, 20)
	for col := range 4 {
		for row := range 4 {
			u[col*4+row] = m[row*5+col]
		}
	}
	for row := range 4 {
		u[16+row] = m[row*5+4] / 255
	}
	return u
}

// unpackMatrix reverses packMatrix.
func unpackMatrix(u []float32) filter.ColorMatrix {
	if len(u) < 20 {
		return filter.Identity()
	}
	var m filter.ColorMatrix
	for col := range 4 {
		for row := range 4 {
			m[row*5+col] = u[col*4+row]
		}
	}
	for row := range 4 {
		m[row*5+4] = u[16+row] * 255
	}
	return m
}

func matrixKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	m := unpackMatrix(uniformsOf(in))
	size := in.Size()
	return func(x, y int) color.NRGBA {
		return m.Apply(tex.Sample(backend.UV(x, y, size)))
	}, nil
}

// Matrix applies a color matrix built from its parameters.
type Matrix struct {
	base
	stage  *stage
	matrix func(*params.Set) filter.ColorMatrix
}

var _ Effect = (*Matrix)(nil)

func newMatrix(b backend.RenderBackend, name string, matrix func(*params.Set) filter.ColorMatrix, ps ...params.Param) (*Matrix, error) {
	st, err := newStage(b, renderShader(name, matrixWGSL, matrixKernel), backend.FilterNearest)
	if err != nil {
		return nil, err
	}
	return &Matrix{
		base:   base{name: name, set: params.NewSet(ps...)},
		stage:  st,
		matrix: matrix,
	}, nil
}

// NewGrayscale writes the unweighted mean of R, G and B to every channel.
func NewGrayscale(b backend.RenderBackend) (Effect, error) {
	return newMatrix(b, NameGrayscale, func(*params.Set) filter.ColorMatrix { return filter.Grayscale() })
}

// NewInvert inverts the color channels.
func NewInvert(b backend.RenderBackend) (Effect, error) {
	return newMatrix(b, NameInvert, func(*params.Set) filter.ColorMatrix { return filter.Invert() })
}

// NewScale multiplies the color channels by "factor" and blends toward
// gray by "saturation".
func NewScale(b backend.RenderBackend) (Effect, error) {
	return newMatrix(b, NameScale,
		func(s *params.Set) filter.ColorMatrix {
			m := filter.Scale(s.Float32("factor"))
			return m.Then(filter.Saturation(s.Float32("saturation")))
		},
		params.Number("factor", 0.5, params.Min(0), params.Max(4), params.Step(0.05)),
		params.Number("saturation", 1, params.Min(0), params.Max(2), params.Step(0.05)),
	)
}

// Matrix returns the current color matrix.
func (e *Matrix) Matrix() filter.ColorMatrix { return e.matrix(e.set) }

// Passes returns the single matrix pass.
func (e *Matrix) Passes(_ float64, _ stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	return []stylize.PassDescriptor{e.stage.pass(packMatrix(e.Matrix()))}, nil
}

const thresholdWGSL = `
struct Threshold {
	cutoff: f32,
};

@group(0) @binding(2) var<uniform> threshold: Threshold;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let c = textureSample(srcTexture, srcSampler, in.uv);
	let mean = (c.r + c.g + c.b) / 3.0;
	let v = select(0.0, 1.0, mean < threshold.cutoff);
	return vec4<f32>(v, v, v, c.a);
}
`

func thresholdKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	cutoff := backend.Uniform(uniformsOf(in), 0, 0.5) * 255
	size := in.Size()
	return func(x, y int) color.NRGBA {
		c := tex.Sample(backend.UV(x, y, size))
		mean := (float32(c.R) + float32(c.G) + float32(c.B)) / 3
		if mean < cutoff {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	}, nil
}

// Threshold paints pixels whose channel mean is below "cutoff" white and
// the rest black.
type Threshold struct {
	base
	stage *stage
}

var _ Effect = (*Threshold)(nil)

// NewThreshold creates the threshold effect. The cutoff is in 0..255.
func NewThreshold(b backend.RenderBackend) (Effect, error) {
	st, err := newStage(b, renderShader(NameThreshold, thresholdWGSL, thresholdKernel), backend.FilterNearest)
	if err != nil {
		return nil, err
	}
	return &Threshold{
		base: base{name: NameThreshold, set: params.NewSet(
			params.Number("cutoff", 128, params.Min(0), params.Max(255), params.Step(1)),
		)},
		stage: st,
	}, nil
}

// Passes returns the single threshold pass.
func (e *Threshold) Passes(_ float64, _ stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	return []stylize.PassDescriptor{e.stage.pass([]float32{e.set.Float32("cutoff") / 255})}, nil
}

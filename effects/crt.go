package effects

import (
	"image/color"
	"math"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/params"
)

const crtWGSL = `
struct CRT {
	width: f32,
	height: f32,
	time: f32,
	curvature: f32,
	scanlines: f32,
	vignette: f32,
	roll: f32,
	pad: f32,
};

@group(0) @binding(2) var<uniform> crt: CRT;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	var cc = in.uv * 2.0 - vec2<f32>(1.0, 1.0);
	let r2 = dot(cc, cc);
	cc = cc * (1.0 + crt.curvature * r2);
	let uv = cc * 0.5 + vec2<f32>(0.5, 0.5);
	if (uv.x < 0.0 || uv.x > 1.0 || uv.y < 0.0 || uv.y > 1.0) {
		return vec4<f32>(0.0, 0.0, 0.0, 1.0);
	}
	var c = textureSample(srcTexture, srcSampler, uv).rgb;

	let scan = 1.0 - crt.scanlines * 0.5 * (1.0 - cos(uv.y * crt.height * 3.14159265));
	c = c * scan;

	let phase = crt.time * crt.roll;
	let rollY = phase - floor(phase);
	let d = abs(uv.y - rollY);
	c = c + vec3<f32>(0.12, 0.12, 0.12) * (1.0 - smoothstep(0.0, 0.03, d));

	c = c * (1.0 - crt.vignette * r2 * 0.5);
	return vec4<f32>(clamp(c, vec3<f32>(0.0), vec3<f32>(1.0)), 1.0);
}
`

// Fields of the CRT uniform struct.
const (
	crtWidth = iota
	crtHeight
	crtTime
	crtCurvature
	crtScanlines
	crtVignette
	crtRoll
	crtLen
)

func crtKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	vals := uniformsOf(in)
	size := in.Size()
	height := backend.Uniform(vals, crtHeight, float32(size.Height))
	t := backend.Uniform(vals, crtTime, 0)
	curvature := backend.Uniform(vals, crtCurvature, 0)
	scanlines := backend.Uniform(vals, crtScanlines, 0)
	vignette := backend.Uniform(vals, crtVignette, 0)
	roll := backend.Uniform(vals, crtRoll, 0)

	phase := t * roll
	line := phase - float32(math.Floor(float64(phase)))

	return func(x, y int) color.NRGBA {
		u, v := backend.UV(x, y, size)
		cx, cy := u*2-1, v*2-1
		r2 := cx*cx + cy*cy
		cx *= 1 + curvature*r2
		cy *= 1 + curvature*r2
		u, v = cx*0.5+0.5, cy*0.5+0.5
		if u < 0 || u > 1 || v < 0 || v > 1 {
			return color.NRGBA{A: 255}
		}
		c := tex.Sample(u, v)
		r, g, b := unit(c.R), unit(c.G), unit(c.B)

		scan := 1 - scanlines*0.5*(1-float32(math.Cos(float64(v*height*math.Pi))))
		glow := 0.12 * (1 - smoothstep(0, 0.03, abs32(v-line)))
		shade := 1 - vignette*r2*0.5

		return color.NRGBA{
			R: byte8((r*scan + glow) * shade),
			G: byte8((g*scan + glow) * shade),
			B: byte8((b*scan + glow) * shade),
			A: 255,
		}
	}, nil
}

func smoothstep(e0, e1, x float32) float32 {
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// CRT imitates a cathode ray tube: barrel distortion, scanlines, a
// vignette and a bright line rolling down the screen.
type CRT struct {
	base
	stage *stage
}

var _ Effect = (*CRT)(nil)

// NewCRT creates the CRT effect. It animates at 30 Hz.
func NewCRT(b backend.RenderBackend) (Effect, error) {
	st, err := newStage(b, renderShader(NameCRT, crtWGSL, crtKernel), backend.FilterLinear)
	if err != nil {
		return nil, err
	}
	return &CRT{
		base: base{
			name:    NameCRT,
			cadence: stylize.Cadence30Hz,
			set: params.NewSet(
				params.Number("curvature", 0.08, params.Min(0), params.Max(0.5), params.Step(0.01)),
				params.Number("scanlines", 0.4, params.Min(0), params.Max(1), params.Step(0.05)),
				params.Number("vignette", 0.5, params.Min(0), params.Max(1), params.Step(0.05)),
				params.Number("roll", 0.25, params.Min(0), params.Step(0.05), params.Title("Rolling line speed, screens per second")),
			),
		},
		stage: st,
	}, nil
}

// Passes returns the single CRT pass for time t.
func (e *CRT) Passes(t float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	u := make([]float32, crtLen+1)
	u[crtWidth] = float32(size.Width)
	u[crtHeight] = float32(size.Height)
	u[crtTime] = float32(t)
	u[crtCurvature] = e.set.Float32("curvature")
	u[crtScanlines] = e.set.Float32("scanlines")
	u[crtVignette] = e.set.Float32("vignette")
	u[crtRoll] = e.set.Float32("roll")
	return []stylize.PassDescriptor{e.stage.pass(u)}, nil
}

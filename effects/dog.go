package effects

import (
	"image/color"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/internal/filter"
	"github.com/gogpu/stylize/params"
)

// DoG styles.
const (
	StyleQuantized  = "quantized"
	StyleHyperbolic = "hyperbolic"
)

// blurWGSL computes two gaussian blurs of the input luma in one loop. The
// footprint is capped at a radius of 12 texels.
const blurWGSL = `
fn luma(c: vec3<f32>) -> f32 {
	return dot(c, vec3<f32>(0.299, 0.587, 0.114));
}

fn blurPair(p: vec2<i32>, s1: f32, s2: f32) -> vec2<f32> {
	let dims = vec2<i32>(textureDimensions(srcTexture));
	let a = max(s1, 0.01);
	let b = max(s2, 0.01);
	let radius = min(i32(ceil(max(a, b) * 3.0)), 12);
	var sum = vec2<f32>(0.0, 0.0);
	var weight = vec2<f32>(0.0, 0.0);
	for (var dy = -radius; dy <= radius; dy = dy + 1) {
		for (var dx = -radius; dx <= radius; dx = dx + 1) {
			let q = clamp(p + vec2<i32>(dx, dy), vec2<i32>(0, 0), dims - vec2<i32>(1, 1));
			let l = luma(textureLoad(srcTexture, q, 0).rgb);
			let d2 = f32(dx * dx + dy * dy);
			let w = vec2<f32>(exp(-d2 / (2.0 * a * a)), exp(-d2 / (2.0 * b * b)));
			sum = sum + w * l;
			weight = weight + w;
		}
	}
	return sum / weight;
}
`

// secondSigma is the wider blur of a difference of gaussians. At dog 1 the
// ratio is the classic 1.6.
func secondSigma(blur, dog float64) float64 {
	return blur * (1 + 0.6*dog)
}

// blurPair is the CPU counterpart of the WGSL blurPair: the luma of tex
// blurred at s1 and at s2.
func blurPair(tex backend.Texture, s1, s2 float32) (g1, g2 *filter.Plane) {
	l := filter.Luma(tex.Image())
	return l.Blur(float64(s1)), l.Blur(float64(s2))
}

// xdog maps a sharpened difference of gaussians to 0..1. Values at or above
// eps are white; below it the quantized style is black and the hyperbolic
// style falls off with tanh.
func xdog(g1, g2, tau, eps, phi float32, hyperbolic bool) float32 {
	d := (1+tau)*g1 - tau*g2
	if d >= eps {
		return 1
	}
	if !hyperbolic {
		return 0
	}
	return clamp01(1 + float32(math.Tanh(float64(phi*(d-eps)))))
}

const dogWGSL = blurWGSL + `
struct DoG {
	width: f32,
	height: f32,
	sigma1: f32,
	sigma2: f32,
	tau: f32,
	eps: f32,
	phi: f32,
	hyperbolic: f32,
	ink: vec4<f32>,
	paper: vec4<f32>,
};

@group(0) @binding(2) var<uniform> dog: DoG;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let g = blurPair(vec2<i32>(in.position.xy), dog.sigma1, dog.sigma2);
	let d = (1.0 + dog.tau) * g.x - dog.tau * g.y;
	var v = 1.0;
	if (d < dog.eps) {
		v = select(0.0, clamp(1.0 + tanh(dog.phi * (d - dog.eps)), 0.0, 1.0), dog.hyperbolic > 0.5);
	}
	return mix(dog.ink, dog.paper, v);
}
`

// Fields of the DoG uniform struct.
const (
	dogWidth = iota
	dogHeight
	dogSigma1
	dogSigma2
	dogTau
	dogEps
	dogPhi
	dogHyperbolic
	dogInk
	dogPaper = dogInk + 4
	dogLen   = dogPaper + 4
)

func dogKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	u := uniformsOf(in)
	if len(u) < dogLen {
		return nil, errShortUniforms
	}
	g1, g2 := blurPair(tex, u[dogSigma1], u[dogSigma2])
	hyperbolic := u[dogHyperbolic] > 0.5
	ink, paper := u[dogInk:dogInk+4], u[dogPaper:dogPaper+4]
	return func(x, y int) color.NRGBA {
		v := xdog(g1.At(x, y), g2.At(x, y), u[dogTau], u[dogEps], u[dogPhi], hyperbolic)
		return color.NRGBA{
			R: byte8(ink[0] + (paper[0]-ink[0])*v),
			G: byte8(ink[1] + (paper[1]-ink[1])*v),
			B: byte8(ink[2] + (paper[2]-ink[2])*v),
			A: byte8(ink[3] + (paper[3]-ink[3])*v),
		}
	}, nil
}

// DoG is an extended difference-of-gaussians line drawing in two colors.
type DoG struct {
	base
	stage *stage

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Effect = (*DoG)(nil)

// NewDoG creates the DoG filter effect.
func NewDoG(b backend.RenderBackend) (Effect, error) {
	st, err := newStage(b, renderShader(NameDoG, dogWGSL, dogKernel), backend.FilterNearest)
	if err != nil {
		return nil, err
	}
	e := &DoG{stage: st, rng: rand.New(rand.NewPCG(0x5eed, 0xd06))}
	e.base = base{name: NameDoG, set: params.NewSet(
		params.Number("blur", 1, params.Min(0), params.Step(0.1)),
		params.Number("dog", 1, params.Min(0), params.Step(0.1), params.Label("DoG"), params.Title("Width of the second blur")),
		params.Number("tau", 1, params.Step(0.1), params.Label("Sharpness")),
		params.Number("thresh", 3, params.Step(0.1), params.Label("Threshold")),
		params.Number("scaler", 2, params.Min(0), params.Step(0.1), params.Title("Softness of the hyperbolic falloff")),
		params.Enum("style", StyleQuantized, StyleQuantized, StyleHyperbolic),
		params.Color("ink", color.NRGBA{A: 255}),
		params.Color("paper", color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		params.Button("genPalette", e.genPalette, params.Label("Generate palette")),
	)}
	return e, nil
}

// genPalette picks a dark ink and a light paper of complementary hues.
func (e *DoG) genPalette() {
	e.mu.Lock()
	seeds := newSeeds(e.rng)
	e.mu.Unlock()
	pal := Palette(2, HarmonyComplementary, seeds)
	_ = e.set.Set("ink", pal[0])
	_ = e.set.Set("paper", pal[1])
}

// Passes returns the single DoG pass.
func (e *DoG) Passes(_ float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	blur := e.set.Float("blur")
	u := make([]float32, dogLen)
	u[dogWidth] = float32(size.Width)
	u[dogHeight] = float32(size.Height)
	u[dogSigma1] = float32(blur)
	u[dogSigma2] = float32(secondSigma(blur, e.set.Float("dog")))
	u[dogTau] = e.set.Float32("tau")
	u[dogEps] = e.set.Float32("thresh") / 10
	u[dogPhi] = e.set.Float32("scaler") * 5
	if e.set.Choice("style") == StyleHyperbolic {
		u[dogHyperbolic] = 1
	}
	putColor(u[dogInk:], e.set.Color("ink"))
	putColor(u[dogPaper:], e.set.Color("paper"))
	return []stylize.PassDescriptor{e.stage.pass(u)}, nil
}

// putColor writes c as a vec4 in 0..1.
func putColor(dst []float32, c color.NRGBA) {
	dst[0], dst[1], dst[2], dst[3] = unit(c.R), unit(c.G), unit(c.B), unit(c.A)
}

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

// MaxLevels is the largest number of cel tones.
const MaxLevels = 16

const celWGSL = blurWGSL + `
struct Cel {
	width: f32,
	height: f32,
	sigma1: f32,
	sigma2: f32,
	tau: f32,
	levels: f32,
	pad0: f32,
	pad1: f32,
	palette: array<vec4<f32>, 16>,
};

@group(0) @binding(2) var<uniform> cel: Cel;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let g = blurPair(vec2<i32>(in.position.xy), cel.sigma1, cel.sigma2);
	let n = i32(cel.levels);
	let level = clamp(i32(floor(g.x * cel.levels)), 0, n - 1);
	var c = cel.palette[level];
	if (cel.tau * (g.y - g.x) > 0.02) {
		c = vec4<f32>(c.rgb * 0.1, 1.0);
	}
	return c;
}
`

// Fields of the cel uniform struct.
const (
	celWidth = iota
	celHeight
	celSigma1
	celSigma2
	celTau
	celLevels
	celPalette = 8
	celLen     = celPalette + 4*MaxLevels
)

// outlineEps is how far the wide blur must exceed the narrow one for a
// pixel to be inked as an outline.
const outlineEps = 0.02

func celKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	u := uniformsOf(in)
	if len(u) < celLen {
		return nil, errShortUniforms
	}
	g1, g2 := blurPair(tex, u[celSigma1], u[celSigma2])
	levels := max(int(u[celLevels]), 1)
	tau := u[celTau]
	pal := make([]color.NRGBA, levels)
	for i := range pal {
		c := u[celPalette+4*i:]
		pal[i] = color.NRGBA{R: byte8(c[0]), G: byte8(c[1]), B: byte8(c[2]), A: byte8(c[3])}
	}
	return func(x, y int) color.NRGBA {
		a, b := g1.At(x, y), g2.At(x, y)
		level := min(max(int(math.Floor(float64(a*float32(levels)))), 0), levels-1)
		c := pal[level]
		if tau*(b-a) > outlineEps {
			return color.NRGBA{R: byte8(unit(c.R) * 0.1), G: byte8(unit(c.G) * 0.1), B: byte8(unit(c.B) * 0.1), A: 255}
		}
		return c
	}, nil
}

const antialiasWGSL = `
struct Antialias {
	width: f32,
	height: f32,
	radius: f32,
	pad: f32,
};

@group(0) @binding(2) var<uniform> aa: Antialias;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let dims = vec2<i32>(textureDimensions(srcTexture));
	let p = vec2<i32>(in.position.xy);
	let r = clamp(i32(round(aa.radius)), 0, 8);
	var sum = vec4<f32>(0.0, 0.0, 0.0, 0.0);
	for (var dy = -r; dy <= r; dy = dy + 1) {
		for (var dx = -r; dx <= r; dx = dx + 1) {
			let q = clamp(p + vec2<i32>(dx, dy), vec2<i32>(0, 0), dims - vec2<i32>(1, 1));
			sum = sum + textureLoad(srcTexture, q, 0);
		}
	}
	let side = f32(2 * r + 1);
	return sum / (side * side);
}
`

func antialiasKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	r := int(math.Round(float64(backend.Uniform(uniformsOf(in), 2, 0))))
	r = min(max(r, 0), 8)
	blurred := filter.ConvolveNRGBA(tex.Image(), filter.BoxKernel(r))
	return func(x, y int) color.NRGBA { return blurred.NRGBAAt(x, y) }, nil
}

// Cel flattens the picture into a few palette tones with inked outlines,
// optionally followed by a box blur that softens aliased edges.
type Cel struct {
	base
	cel *stage
	aa  *stage

	mu    sync.Mutex
	rng   *rand.Rand
	seeds Seeds
}

var _ Effect = (*Cel)(nil)

// NewCel creates the cel shading effect.
func NewCel(b backend.RenderBackend) (Effect, error) {
	cel, err := newStage(b, renderShader(NameCel, celWGSL, celKernel), backend.FilterNearest)
	if err != nil {
		return nil, err
	}
	aa, err := newStage(b, renderShader("antialias", antialiasWGSL, antialiasKernel), backend.FilterNearest)
	if err != nil {
		return nil, err
	}
	e := &Cel{cel: cel, aa: aa, rng: rand.New(rand.NewPCG(0xce1, 0x5eed))}
	e.seeds = newSeeds(e.rng)
	e.base = base{name: NameCel, set: params.NewSet(
		params.Number("blur", 3, params.Min(0), params.Step(0.1)),
		params.Number("dog", 1, params.Min(0), params.Step(0.1), params.Label("DoG")),
		params.Number("tau", 1, params.Min(0), params.Step(0.1), params.Title("Outline strength")),
		params.Number("quantize", 4, params.Min(2), params.Max(MaxLevels), params.Step(1), params.Title("Number of tones")),
		params.Bool("aa", true, params.Label("Antialias")),
		params.Number("aaStrength", 1, params.Min(0), params.Max(8), params.Step(0.1)),
		params.EnumOf("harmony", HarmonyAnalogous, []params.Choice{
			{ID: HarmonyAnalogous, Label: "Analogous"},
			{ID: HarmonyEquidistant, Label: "Equidistant"},
			{ID: HarmonyMonochromatic, Label: "Monochromatic"},
			{ID: HarmonyComplementary, Label: "Complementary"},
		}, params.Title("How palette hues relate")),
		params.Button("genPalette", e.Reseed, params.Label("Generate palette")),
	)}
	e.set.Watch(func(c params.Change) {
		if c.ID == "quantize" {
			e.Reseed()
		}
	})
	return e, nil
}

// Reseed draws new palette seeds.
func (e *Cel) Reseed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeds = newSeeds(e.rng)
}

// Palette returns the current tones.
func (e *Cel) Palette() []color.NRGBA {
	e.mu.Lock()
	seeds := e.seeds
	e.mu.Unlock()
	return Palette(int(e.set.Float("quantize")), e.set.Choice("harmony"), seeds)
}

// Passes returns the cel pass and, with "aa" on, the antialias pass.
func (e *Cel) Passes(_ float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	blur := e.set.Float("blur")
	pal := e.Palette()

	u := make([]float32, celLen)
	u[celWidth] = float32(size.Width)
	u[celHeight] = float32(size.Height)
	u[celSigma1] = float32(blur)
	u[celSigma2] = float32(secondSigma(blur, e.set.Float("dog")))
	u[celTau] = e.set.Float32("tau")
	u[celLevels] = float32(len(pal))
	for i, c := range pal {
		putColor(u[celPalette+4*i:], c)
	}
	passes := []stylize.PassDescriptor{e.cel.pass(u)}

	if e.set.Bool("aa") {
		aa := []float32{float32(size.Width), float32(size.Height), e.set.Float32("aaStrength"), 0}
		passes = append(passes, e.aa.pass(aa))
	}
	return passes, nil
}

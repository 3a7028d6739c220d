package effects_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend/cpu"
	"github.com/gogpu/stylize/effects"
	"github.com/gogpu/stylize/source"
)

var (
	black = color.NRGBA{A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

func newBackend(t *testing.T) *cpu.Backend {
	t.Helper()
	b := cpu.NewBackend(cpu.WithWorkers(2))
	require.NoError(t, b.Init())
	t.Cleanup(b.Close)
	return b
}

func newEffect(t *testing.T, b *cpu.Backend, name string) effects.Effect {
	t.Helper()
	e, err := effects.New(name, b)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// halves paints the left half of a w×h image dark and the right half light.
func halves(w, h int, dark, light color.NRGBA) *image.NRGBA {
	img := fill(w, h, dark)
	for y := range h {
		for x := w / 2; x < w; x++ {
			img.SetNRGBA(x, y, light)
		}
	}
	return img
}

// apply runs img through the given effects at time tm on the CPU device.
func apply(t *testing.T, b *cpu.Backend, img *image.NRGBA, tm float64, chain ...effects.Effect) *image.NRGBA {
	t.Helper()
	src, err := source.NewImage(b, img)
	require.NoError(t, err)
	defer src.Close()

	size := src.Size()
	passes, err := src.Passes(tm, size)
	require.NoError(t, err)
	for _, e := range chain {
		p, err := e.Passes(tm, size)
		require.NoError(t, err)
		passes = append(passes, p...)
	}

	terminal, err := b.Device().CreateSurface(stylize.SurfaceDescriptor{Label: "frame", Size: size, Format: cpu.Format})
	require.NoError(t, err)
	defer b.Device().DestroySurface(terminal)

	exec := stylize.NewExecutor(b.Device())
	require.NoError(t, exec.Execute(&stylize.ProgramInstructions{Label: "effects", Passes: passes}, size, terminal))
	out, err := b.Download(terminal)
	require.NoError(t, err)
	return out
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{
		effects.NameGrayscale, effects.NameThreshold, effects.NameInvert, effects.NameScale,
		effects.NameCRT, effects.NameDoG, effects.NameCel, effects.NameASCII,
	} {
		assert.True(t, effects.Has(name), name)
		assert.Contains(t, effects.Names(), name)
	}
	assert.IsIncreasing(t, effects.Names())
	assert.Equal(t, effects.NameASCII, effects.Default())

	b := newBackend(t)
	_, err := effects.New("sepia", b)
	assert.ErrorIs(t, err, effects.ErrUnknownEffect)

	e := newEffect(t, b, effects.NameInvert)
	assert.Equal(t, effects.NameInvert, e.Name())
	assert.False(t, e.Animated())
	assert.Zero(t, e.Cadence())
}

func TestGrayscaleThenThreshold(t *testing.T) {
	b := newBackend(t)
	img := fill(100, 100, color.NRGBA{R: 200, G: 50, B: 50, A: 255})
	gray := newEffect(t, b, effects.NameGrayscale)
	threshold := newEffect(t, b, effects.NameThreshold)

	out := apply(t, b, img, 0, gray)
	assert.Equal(t, color.NRGBA{R: 100, G: 100, B: 100, A: 255}, out.NRGBAAt(10, 10))

	out = apply(t, b, img, 0, gray, threshold)
	assert.Equal(t, white, out.NRGBAAt(10, 10))

	require.NoError(t, threshold.Params().SetFloat("cutoff", 100))
	out = apply(t, b, img, 0, gray, threshold)
	assert.Equal(t, black, out.NRGBAAt(10, 10), "the cutoff is exclusive")
}

func TestMatrixEffects(t *testing.T) {
	b := newBackend(t)
	img := fill(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	out := apply(t, b, img, 0, newEffect(t, b, effects.NameInvert))
	assert.Equal(t, color.NRGBA{R: 55, G: 155, B: 205, A: 255}, out.NRGBAAt(1, 1))

	scale := newEffect(t, b, effects.NameScale)
	out = apply(t, b, img, 0, scale)
	assert.Equal(t, color.NRGBA{R: 100, G: 50, B: 25, A: 255}, out.NRGBAAt(2, 3))

	require.NoError(t, scale.Params().SetFloat("factor", 2))
	require.NoError(t, scale.Params().SetFloat("saturation", 0))
	out = apply(t, b, img, 0, scale)
	c := out.NRGBAAt(0, 0)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)
}

func TestCRT(t *testing.T) {
	b := newBackend(t)
	crt := newEffect(t, b, effects.NameCRT)
	assert.True(t, crt.Animated())
	assert.Equal(t, stylize.Cadence30Hz, crt.Cadence())

	img := fill(64, 64, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	require.NoError(t, crt.Params().SetFloat("curvature", 0.5))
	out := apply(t, b, img, 0, crt)
	assert.Equal(t, black, out.NRGBAAt(0, 0), "corners fall outside the curved screen")

	// The rolling line is at the top at t=0 and mid-screen at t=2.
	mid := apply(t, b, img, 2, crt)
	assert.Greater(t, mid.NRGBAAt(32, 32).R, out.NRGBAAt(32, 32).R)
}

func TestDoG(t *testing.T) {
	b := newBackend(t)
	dog := newEffect(t, b, effects.NameDoG)
	img := halves(32, 8, black, white)

	out := apply(t, b, img, 0, dog)
	assert.Equal(t, black, out.NRGBAAt(2, 4), "dark areas take the ink")
	assert.Equal(t, white, out.NRGBAAt(29, 4), "light areas take the paper")

	require.NoError(t, dog.Params().Set("style", effects.StyleHyperbolic))
	soft := apply(t, b, img, 0, dog)
	assert.Greater(t, soft.NRGBAAt(2, 4).R, uint8(0), "the hyperbolic falloff is not pure ink")
	assert.Equal(t, white, soft.NRGBAAt(29, 4))

	ink := dog.Params().Color("ink")
	require.NoError(t, dog.Params().Press("genPalette"))
	assert.NotEqual(t, ink, dog.Params().Color("ink"))
}

func TestCel(t *testing.T) {
	b := newBackend(t)
	e := newEffect(t, b, effects.NameCel)
	cel := e.(*effects.Cel)

	pal := cel.Palette()
	require.Len(t, pal, 4)

	passes, err := cel.Passes(0, stylize.FrameSize{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Len(t, passes, 2, "antialias pass is on by default")

	require.NoError(t, cel.Params().SetBool("aa", false))
	passes, err = cel.Passes(0, stylize.FrameSize{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Len(t, passes, 1)

	// A flat gray at 128 lands in tone 2 of 4 and has no outline.
	img := fill(16, 16, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	out := apply(t, b, img, 0, cel)
	assert.Equal(t, pal[2], out.NRGBAAt(8, 8))
	require.NoError(t, cel.Params().SetBool("aa", true))
	out = apply(t, b, img, 0, cel)
	assert.Equal(t, pal[2], out.NRGBAAt(8, 8))

	require.NoError(t, cel.Params().SetFloat("quantize", 6))
	assert.Len(t, cel.Palette(), 6)
	require.NoError(t, cel.Params().SetFloat("quantize", 4))
	assert.NotEqual(t, pal, cel.Palette(), "changing the tone count reseeds the palette")

	before := cel.Palette()
	require.NoError(t, cel.Params().Press("genPalette"))
	assert.NotEqual(t, before, cel.Palette())
}

func TestPalette(t *testing.T) {
	seeds := effects.Seeds{0.1, 0.5, 0.5, 0.5}
	for _, harmony := range []string{
		effects.HarmonyAnalogous, effects.HarmonyEquidistant,
		effects.HarmonyMonochromatic, effects.HarmonyComplementary,
	} {
		t.Run(harmony, func(t *testing.T) {
			pal := effects.Palette(5, harmony, seeds)
			require.Len(t, pal, 5)
			for i := 1; i < len(pal); i++ {
				prev, cur := pal[i-1], pal[i]
				assert.Greater(t, max(cur.R, cur.G, cur.B), max(prev.R, prev.G, prev.B), "tones brighten")
				assert.Equal(t, uint8(255), cur.A)
			}
		})
	}
	assert.Nil(t, effects.Palette(0, effects.HarmonyAnalogous, seeds))
	assert.Len(t, effects.Palette(1, effects.HarmonyAnalogous, seeds), 1)
}

func TestASCII(t *testing.T) {
	b := newBackend(t)
	e := newEffect(t, b, effects.NameASCII)
	ascii := e.(*effects.ASCII)
	ramp, edges := ascii.Glyphs()

	size := stylize.FrameSize{Width: 32, Height: 16}
	passes, err := ascii.Passes(0, size)
	require.NoError(t, err)
	require.Len(t, passes, 4)
	kinds := []stylize.PassKind{passes[0].Kind, passes[1].Kind, passes[2].Kind, passes[3].Kind}
	assert.Equal(t, []stylize.PassKind{stylize.PassRender, stylize.PassRender, stylize.PassCompute, stylize.PassRender}, kinds)
	assert.Equal(t, uint32(effects.ASCIICell), passes[2].WorkgroupTile)

	before := b.CPUDevice().Stats().ComputePasses
	out := apply(t, b, halves(32, 16, black, white), 0, ascii)
	assert.Equal(t, before+1, b.CPUDevice().Stats().ComputePasses)

	cell := effects.ASCIICell
	glyphAt := func(col, row int) []uint8 {
		var ink []uint8
		for y := row * cell; y < (row+1)*cell; y++ {
			for x := col * cell; x < (col+1)*cell; x++ {
				ink = append(ink, out.NRGBAAt(x, y).R)
			}
		}
		return ink
	}
	atlasGlyph := func(img *image.NRGBA, k int) []uint8 {
		var ink []uint8
		for y := range cell {
			for x := k * cell; x < (k+1)*cell; x++ {
				ink = append(ink, img.NRGBAAt(x, y).R)
			}
		}
		return ink
	}

	for row := range 2 {
		assert.Equal(t, atlasGlyph(ramp.Image, 0), glyphAt(0, row), "dark cells are blank")
		assert.Equal(t, atlasGlyph(ramp.Image, ramp.Len()-1), glyphAt(3, row), "light cells take the densest glyph")
		assert.Equal(t, atlasGlyph(edges.Image, 0), glyphAt(1, row), "a vertical edge draws |")
		assert.Equal(t, atlasGlyph(edges.Image, 0), glyphAt(2, row))
	}

	require.NoError(t, ascii.Params().SetBool("edges", false))
	out = apply(t, b, halves(32, 16, black, white), 0, ascii)
	assert.Equal(t, atlasGlyph(ramp.Image, 0), glyphAt(1, 0), "without edges the dark side stays blank")
}

func TestASCIIClose(t *testing.T) {
	b := newBackend(t)
	e, err := effects.New(effects.NameASCII, b)
	require.NoError(t, err)
	_, err = e.Passes(0, stylize.FrameSize{Width: 16, Height: 16})
	require.NoError(t, err)
	assert.Positive(t, b.CPUDevice().Stats().LivePixels)

	e.Close()
	assert.Zero(t, b.CPUDevice().Stats().LivePixels)

	_, err = e.Passes(0, stylize.FrameSize{})
	assert.ErrorIs(t, err, stylize.ErrInvalidFrameSize)
}

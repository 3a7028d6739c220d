package effects

import (
	"image/color"
	"math"
	"math/rand/v2"
)

// Palette harmonies.
const (
	HarmonyAnalogous     = "analogous"
	HarmonyEquidistant   = "equidistant"
	HarmonyMonochromatic = "monochromatic"
	HarmonyComplementary = "complementary"
)

// Seeds are the random values a palette is derived from, each in 0..1:
// base hue, saturation, hue spread and value jitter.
type Seeds [4]float64

func newSeeds(rng *rand.Rand) Seeds {
	return Seeds{rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64()}
}

// Palette returns n opaque colors in order of increasing HSV value. The hues
// follow harmony around the base hue of seeds.
func Palette(n int, harmony string, seeds Seeds) []color.NRGBA {
	if n <= 0 {
		return nil
	}
	h0 := seeds[0]
	sat := 0.35 + 0.45*seeds[1]
	spread := 0.08 + 0.12*seeds[2]

	out := make([]color.NRGBA, n)
	for i := range out {
		t := 1.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		var h float64
		switch harmony {
		case HarmonyEquidistant:
			h = h0 + float64(i)/float64(n)
		case HarmonyMonochromatic:
			h = h0
		case HarmonyComplementary:
			h = h0 + 0.5*float64(i%2)
		default:
			h = h0 + (t-0.5)*spread
		}
		v := 0.1 + 0.85*t + 0.05*(seeds[3]-0.5)*t*(1-t)
		out[i] = hsv(h, sat*(1-0.3*t), v)
	}
	return out
}

// hsv converts hue (turns), saturation and value to an opaque color.
func hsv(h, s, v float64) color.NRGBA {
	h -= math.Floor(h)
	s = math.Min(math.Max(s, 0), 1)
	v = math.Min(math.Max(v, 0), 1)

	h6 := h * 6
	sector := int(h6) % 6
	f := h6 - math.Floor(h6)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch sector {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.NRGBA{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
		A: 255,
	}
}

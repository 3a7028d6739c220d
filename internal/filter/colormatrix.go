package filter

import "image/color"

// ColorMatrix is a 4x5 color transform in row-major order:
//
//	[R']   [a00 a01 a02 a03 a04]   [R]
//	[G'] = [a10 a11 a12 a13 a14] * [G]
//	[B']   [a20 a21 a22 a23 a24]   [B]
//	[A']   [a30 a31 a32 a33 a34]   [A]
//	                               [1]
//
// Channels are straight-alpha values in 0..255; the fifth column is a bias.
type ColorMatrix [20]float32

// Identity returns the pass-through matrix.
func Identity() ColorMatrix {
	return ColorMatrix{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Grayscale returns a matrix writing the unweighted mean of R, G and B to
// every color channel.
func Grayscale() ColorMatrix {
	const third = float32(1.0 / 3.0)
	return ColorMatrix{
		third, third, third, 0, 0,
		third, third, third, 0, 0,
		third, third, third, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Invert returns a matrix inverting the color channels.
func Invert() ColorMatrix {
	return ColorMatrix{
		-1, 0, 0, 0, 255,
		0, -1, 0, 0, 255,
		0, 0, -1, 0, 255,
		0, 0, 0, 1, 0,
	}
}

// Scale returns a matrix multiplying the color channels by factor.
func Scale(factor float32) ColorMatrix {
	return ColorMatrix{
		factor, 0, 0, 0, 0,
		0, factor, 0, 0, 0,
		0, 0, factor, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Saturation blends between Rec. 709 luminance (0) and identity (1).
func Saturation(factor float32) ColorMatrix {
	const (
		lumR = 0.2126
		lumG = 0.7152
		lumB = 0.0722
	)
	inv := 1 - factor
	return ColorMatrix{
		lumR*inv + factor, lumG * inv, lumB * inv, 0, 0,
		lumR * inv, lumG*inv + factor, lumB * inv, 0, 0,
		lumR * inv, lumG * inv, lumB*inv + factor, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Apply transforms one color.
func (m *ColorMatrix) Apply(c color.NRGBA) color.NRGBA {
	r, g, b, a := float32(c.R), float32(c.G), float32(c.B), float32(c.A)
	return color.NRGBA{
		R: clampUint8(m[0]*r + m[1]*g + m[2]*b + m[3]*a + m[4]),
		G: clampUint8(m[5]*r + m[6]*g + m[7]*b + m[8]*a + m[9]),
		B: clampUint8(m[10]*r + m[11]*g + m[12]*b + m[13]*a + m[14]),
		A: clampUint8(m[15]*r + m[16]*g + m[17]*b + m[18]*a + m[19]),
	}
}

// Then returns the matrix that applies m first, then other.
func (m *ColorMatrix) Then(other ColorMatrix) ColorMatrix {
	a := &other
	b := m
	var r ColorMatrix
	for row := range 4 {
		for col := range 4 {
			var sum float32
			for k := range 4 {
				sum += a[row*5+k] * b[k*5+col]
			}
			r[row*5+col] = sum
		}
		r[row*5+4] = a[row*5+0]*b[4] + a[row*5+1]*b[9] + a[row*5+2]*b[14] + a[row*5+3]*b[19] + a[row*5+4]
	}
	return r
}

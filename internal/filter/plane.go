package filter

import (
	"image"
	"math"
)

// Rec. 601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Plane is a single-channel float image.
type Plane struct {
	W, H int
	Pix  []float32
}

// NewPlane allocates a zeroed w×h plane.
func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float32, w*h)}
}

// At returns the value at (x, y) with edge extension.
func (p *Plane) At(x, y int) float32 {
	x = clampInt(x, 0, p.W-1)
	y = clampInt(y, 0, p.H-1)
	return p.Pix[y*p.W+x]
}

// Set stores v at (x, y).
func (p *Plane) Set(x, y int, v float32) {
	p.Pix[y*p.W+x] = v
}

// Luma returns the Rec. 601 luma of img in 0..1.
func Luma(img *image.NRGBA) *Plane {
	b := img.Bounds()
	p := NewPlane(b.Dx(), b.Dy())
	for y := range p.H {
		row := img.Pix[y*img.Stride:]
		for x := range p.W {
			i := x * 4
			p.Pix[y*p.W+x] = (lumaR*float32(row[i]) + lumaG*float32(row[i+1]) + lumaB*float32(row[i+2])) / 255
		}
	}
	return p
}

// Convolve applies a separable 1D kernel horizontally then vertically and
// returns a new plane.
func (p *Plane) Convolve(kernel []float32) *Plane {
	if len(kernel) <= 1 {
		out := NewPlane(p.W, p.H)
		copy(out.Pix, p.Pix)
		return out
	}
	half := len(kernel) / 2

	temp := NewPlane(p.W, p.H)
	for y := range p.H {
		row := p.Pix[y*p.W : (y+1)*p.W]
		for x := range p.W {
			var sum float32
			for k, w := range kernel {
				sum += row[clampInt(x+k-half, 0, p.W-1)] * w
			}
			temp.Pix[y*p.W+x] = sum
		}
	}

	out := NewPlane(p.W, p.H)
	for y := range p.H {
		for x := range p.W {
			var sum float32
			for k, w := range kernel {
				sum += temp.Pix[clampInt(y+k-half, 0, p.H-1)*p.W+x] * w
			}
			out.Pix[y*p.W+x] = sum
		}
	}
	return out
}

// Blur returns the Gaussian blur of p with standard deviation sigma.
func (p *Plane) Blur(sigma float64) *Plane {
	return p.Convolve(CachedGaussianKernel(sigma))
}

// Sobel returns the gradient magnitude and direction (radians, -π..π) of p.
func Sobel(p *Plane) (magnitude, direction *Plane) {
	magnitude = NewPlane(p.W, p.H)
	direction = NewPlane(p.W, p.H)
	for y := range p.H {
		for x := range p.W {
			tl, t, tr := p.At(x-1, y-1), p.At(x, y-1), p.At(x+1, y-1)
			l, r := p.At(x-1, y), p.At(x+1, y)
			bl, b, br := p.At(x-1, y+1), p.At(x, y+1), p.At(x+1, y+1)

			gx := (tr + 2*r + br) - (tl + 2*l + bl)
			gy := (bl + 2*b + br) - (tl + 2*t + tr)

			i := y*p.W + x
			magnitude.Pix[i] = float32(math.Hypot(float64(gx), float64(gy)))
			direction.Pix[i] = float32(math.Atan2(float64(gy), float64(gx)))
		}
	}
	return magnitude, direction
}

// ConvolveNRGBA applies a separable 1D kernel to all four channels of src
// and returns a new image.
func ConvolveNRGBA(src *image.NRGBA, kernel []float32) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if len(kernel) <= 1 {
		for y := range h {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w*4], src.Pix[y*src.Stride:])
		}
		return dst
	}
	half := len(kernel) / 2

	// Horizontal pass into a float buffer.
	temp := make([]float32, w*h*4)
	for y := range h {
		row := src.Pix[y*src.Stride:]
		for x := range w {
			var r, g, bl, a float32
			for k, wt := range kernel {
				i := clampInt(x+k-half, 0, w-1) * 4
				r += float32(row[i+0]) * wt
				g += float32(row[i+1]) * wt
				bl += float32(row[i+2]) * wt
				a += float32(row[i+3]) * wt
			}
			t := (y*w + x) * 4
			temp[t+0], temp[t+1], temp[t+2], temp[t+3] = r, g, bl, a
		}
	}

	// Vertical pass back to bytes.
	for y := range h {
		for x := range w {
			var r, g, bl, a float32
			for k, wt := range kernel {
				t := (clampInt(y+k-half, 0, h-1)*w + x) * 4
				r += temp[t+0] * wt
				g += temp[t+1] * wt
				bl += temp[t+2] * wt
				a += temp[t+3] * wt
			}
			d := y*dst.Stride + x*4
			dst.Pix[d+0] = clampUint8(r)
			dst.Pix[d+1] = clampUint8(g)
			dst.Pix[d+2] = clampUint8(bl)
			dst.Pix[d+3] = clampUint8(a)
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

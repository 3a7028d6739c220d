package filter

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func solidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestLuma(t *testing.T) {
	p := Luma(solidNRGBA(3, 2, color.NRGBA{255, 255, 255, 255}))
	if p.W != 3 || p.H != 2 {
		t.Fatalf("size = %dx%d, want 3x2", p.W, p.H)
	}
	for i, v := range p.Pix {
		if math.Abs(float64(v)-1) > 1e-4 {
			t.Errorf("Pix[%d] = %v, want 1", i, v)
		}
	}

	p = Luma(solidNRGBA(1, 1, color.NRGBA{255, 0, 0, 255}))
	if math.Abs(float64(p.Pix[0])-lumaR) > 1e-4 {
		t.Errorf("red luma = %v, want %v", p.Pix[0], lumaR)
	}
}

func TestPlaneAtClamps(t *testing.T) {
	p := NewPlane(2, 2)
	p.Set(0, 0, 1)
	p.Set(1, 1, 4)
	if got := p.At(-5, -5); got != 1 {
		t.Errorf("At(-5,-5) = %v, want 1", got)
	}
	if got := p.At(9, 9); got != 4 {
		t.Errorf("At(9,9) = %v, want 4", got)
	}
}

func TestBlurPreservesConstant(t *testing.T) {
	p := NewPlane(8, 8)
	for i := range p.Pix {
		p.Pix[i] = 0.25
	}
	out := p.Blur(2)
	for i, v := range out.Pix {
		if math.Abs(float64(v)-0.25) > 1e-4 {
			t.Fatalf("Pix[%d] = %v, want 0.25", i, v)
		}
	}
}

func TestBlurSpreadsImpulse(t *testing.T) {
	p := NewPlane(9, 9)
	p.Set(4, 4, 1)
	out := p.Blur(1)
	if out.At(4, 4) >= 1 {
		t.Errorf("center = %v, want < 1", out.At(4, 4))
	}
	if out.At(3, 4) <= 0 || out.At(4, 5) <= 0 {
		t.Error("neighbors should receive weight")
	}
	if out.At(3, 4) != out.At(5, 4) {
		t.Errorf("blur not symmetric: %v vs %v", out.At(3, 4), out.At(5, 4))
	}
}

func TestSobel(t *testing.T) {
	// Vertical edge: left half 0, right half 1.
	p := NewPlane(6, 4)
	for y := range p.H {
		for x := 3; x < p.W; x++ {
			p.Set(x, y, 1)
		}
	}
	mag, dir := Sobel(p)
	if mag.At(0, 1) != 0 {
		t.Errorf("flat region magnitude = %v, want 0", mag.At(0, 1))
	}
	if mag.At(2, 1) != 4 || mag.At(3, 1) != 4 {
		t.Errorf("edge magnitude = %v, %v, want 4", mag.At(2, 1), mag.At(3, 1))
	}
	if dir.At(2, 1) != 0 {
		t.Errorf("edge direction = %v, want 0", dir.At(2, 1))
	}
}

func TestConvolveNRGBA(t *testing.T) {
	src := solidNRGBA(5, 5, color.NRGBA{10, 20, 30, 255})
	out := ConvolveNRGBA(src, BoxKernel(1))
	if got := out.NRGBAAt(2, 2); got != (color.NRGBA{10, 20, 30, 255}) {
		t.Errorf("constant image changed: %v", got)
	}

	same := ConvolveNRGBA(src, []float32{1})
	if same == src {
		t.Error("identity kernel should return a copy")
	}
	if got := same.NRGBAAt(4, 4); got != src.NRGBAAt(4, 4) {
		t.Errorf("identity kernel changed pixel: %v", got)
	}
}

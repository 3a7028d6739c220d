package filter

import (
	"image/color"
	"testing"
)

func TestColorMatrixPresets(t *testing.T) {
	tests := []struct {
		name string
		m    ColorMatrix
		in   color.NRGBA
		want color.NRGBA
	}{
		{"identity", Identity(), color.NRGBA{12, 34, 56, 78}, color.NRGBA{12, 34, 56, 78}},
		{"grayscale mean", Grayscale(), color.NRGBA{200, 50, 50, 255}, color.NRGBA{100, 100, 100, 255}},
		{"invert", Invert(), color.NRGBA{255, 0, 10, 255}, color.NRGBA{0, 255, 245, 255}},
		{"invert keeps alpha", Invert(), color.NRGBA{0, 0, 0, 40}, color.NRGBA{255, 255, 255, 40}},
		{"scale half", Scale(0.5), color.NRGBA{200, 100, 50, 255}, color.NRGBA{100, 50, 25, 255}},
		{"scale clamps", Scale(2), color.NRGBA{200, 100, 50, 255}, color.NRGBA{255, 200, 100, 255}},
		{"saturation one", Saturation(1), color.NRGBA{200, 100, 50, 255}, color.NRGBA{200, 100, 50, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Apply(tt.in); got != tt.want {
				t.Errorf("Apply(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSaturationZeroIsGray(t *testing.T) {
	m := Saturation(0)
	got := m.Apply(color.NRGBA{200, 100, 50, 255})
	if got.R != got.G || got.G != got.B {
		t.Errorf("Saturation(0) = %v, want equal channels", got)
	}
}

func TestColorMatrixThen(t *testing.T) {
	in := color.NRGBA{200, 100, 50, 255}

	inv := Invert()
	double := inv.Then(Invert())
	if got := double.Apply(in); got != in {
		t.Errorf("invert then invert = %v, want %v", got, in)
	}

	// Order matters: invert then halve differs from halve then invert.
	a := inv.Then(Scale(0.5))
	half := Scale(0.5)
	b := half.Then(Invert())
	wantA := color.NRGBA{28, 78, 103, 255}
	wantB := color.NRGBA{155, 205, 230, 255}
	if got := a.Apply(in); got != wantA {
		t.Errorf("invert then scale = %v, want %v", got, wantA)
	}
	if got := b.Apply(in); got != wantB {
		t.Errorf("scale then invert = %v, want %v", got, wantB)
	}
}

package filter

import (
	"math"
	"testing"
)

func TestGaussianKernelIdentity(t *testing.T) {
	for _, sigma := range []float64{0, -5} {
		kernel := GaussianKernel(sigma)
		if len(kernel) != 1 || kernel[0] != 1.0 {
			t.Errorf("GaussianKernel(%v) = %v, want [1]", sigma, kernel)
		}
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 2, 3, 5, 10} {
		var sum float32
		for _, v := range GaussianKernel(sigma) {
			sum += v
		}
		if math.Abs(float64(sum)-1.0) > 0.001 {
			t.Errorf("GaussianKernel(%v) sum = %v, want ~1.0", sigma, sum)
		}
	}
}

func TestGaussianKernelShape(t *testing.T) {
	kernel := GaussianKernel(5)
	n := len(kernel)
	center := n / 2

	for i := 0; i < n/2; i++ {
		j := n - 1 - i
		if math.Abs(float64(kernel[i]-kernel[j])) > 0.0001 {
			t.Errorf("kernel[%d] = %v != kernel[%d] = %v", i, kernel[i], j, kernel[j])
		}
		if kernel[i] > kernel[center] {
			t.Errorf("kernel[%d] = %v exceeds center %v", i, kernel[i], kernel[center])
		}
	}
}

func TestKernelSize(t *testing.T) {
	tests := []struct {
		sigma float64
		want  int
	}{
		{0, 1},
		{-1, 1},
		{0.5, 5},
		{1.0, 7},
		{2.0, 13},
		{5.0, 31},
	}
	for _, tt := range tests {
		if got := KernelSize(tt.sigma); got != tt.want {
			t.Errorf("KernelSize(%v) = %d, want %d", tt.sigma, got, tt.want)
		}
		if got := len(GaussianKernel(tt.sigma)); got != tt.want {
			t.Errorf("len(GaussianKernel(%v)) = %d, want %d", tt.sigma, got, tt.want)
		}
	}
}

func TestBoxKernel(t *testing.T) {
	if k := BoxKernel(0); len(k) != 1 || k[0] != 1 {
		t.Errorf("BoxKernel(0) = %v, want [1]", k)
	}
	kernel := BoxKernel(3)
	if len(kernel) != 7 {
		t.Fatalf("BoxKernel(3) len = %d, want 7", len(kernel))
	}
	for i, v := range kernel {
		if math.Abs(float64(v)-1.0/7.0) > 0.0001 {
			t.Errorf("BoxKernel(3)[%d] = %v, want 1/7", i, v)
		}
	}
}

func TestCachedGaussianKernel(t *testing.T) {
	k1 := CachedGaussianKernel(2.5)
	k2 := CachedGaussianKernel(2.5)
	if &k1[0] != &k2[0] {
		t.Error("second lookup should return the cached slice")
	}
	if len(k1) != KernelSize(2.5) {
		t.Errorf("len = %d, want %d", len(k1), KernelSize(2.5))
	}
	if len(CachedGaussianKernel(5)) == len(k1) {
		t.Error("different sigmas should produce different kernel sizes")
	}
}

func BenchmarkCachedGaussianKernel(b *testing.B) {
	for b.Loop() {
		_ = CachedGaussianKernel(3)
	}
}

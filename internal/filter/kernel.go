package filter

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// GaussianKernel generates a normalized 1D Gaussian kernel with standard
// deviation sigma.
//
// The kernel size is 2*ceil(sigma*3)+1, covering three standard deviations.
// For sigma <= 0 it returns the identity kernel [1].
func GaussianKernel(sigma float64) []float32 {
	if sigma <= 0 {
		return []float32{1.0}
	}

	halfSize := int(math.Ceil(sigma * 3))
	size := halfSize*2 + 1
	kernel := make([]float32, size)

	// G(x) = exp(-x²/(2σ²)); the constant factor is dropped by normalization.
	twoSigmaSq := 2 * sigma * sigma
	sum := float64(0)
	for i := range size {
		x := float64(i - halfSize)
		val := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(val)
		sum += val
	}

	invSum := float32(1.0 / sum)
	for i := range kernel {
		kernel[i] *= invSum
	}
	return kernel
}

// BoxKernel generates a 1D box kernel of size 2*radius+1.
func BoxKernel(radius int) []float32 {
	if radius <= 0 {
		return []float32{1.0}
	}

	size := radius*2 + 1
	kernel := make([]float32, size)
	val := float32(1.0) / float32(size)
	for i := range kernel {
		kernel[i] = val
	}
	return kernel
}

// KernelSize returns the Gaussian kernel size for sigma.
func KernelSize(sigma float64) int {
	if sigma <= 0 {
		return 1
	}
	return int(math.Ceil(sigma*3))*2 + 1
}

// kernelCacheSize bounds the number of cached Gaussian kernels.
const kernelCacheSize = 64

var kernelCache = mustKernelCache()

func mustKernelCache() *lru.Cache[int, []float32] {
	c, err := lru.New[int, []float32](kernelCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

// CachedGaussianKernel returns a shared Gaussian kernel for sigma, quantized
// to 0.01. Callers must not modify the returned slice.
func CachedGaussianKernel(sigma float64) []float32 {
	key := int(math.Round(sigma * 100))
	if k, ok := kernelCache.Get(key); ok {
		return k
	}
	k := GaussianKernel(float64(key) / 100)
	kernelCache.Add(key, k)
	return k
}

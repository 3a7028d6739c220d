// Package filter provides the image math shared by the CPU effect kernels.
//
// It contains:
//   - Gaussian and box kernels, with an LRU cache for Gaussian kernels
//   - float planes with separable convolution and Sobel gradients
//   - 4x5 color matrices (grayscale, invert, scale, saturation)
//
// Planes hold one float32 channel per pixel in the 0..1 range. Edge pixels
// are extended when a kernel reaches past the border.
package filter

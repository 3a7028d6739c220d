// Package cpu is the pure Go reference backend for stylize.
//
// Surfaces are RGBA8 images in memory. Passes are recorded into batches and
// executed in order when the batch is submitted: render passes call the
// shader's backend.RenderKernel once, then shade every target pixel with
// the returned function across row bands in parallel; compute passes call
// the backend.ComputeKernel with the dispatch grid.
//
// The backend registers itself as "cpu":
//
//	import _ "github.com/gogpu/stylize/backend/cpu"
//
// The device never reports busy: work is complete when Submit returns.
package cpu

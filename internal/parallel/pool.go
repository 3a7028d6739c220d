// Package parallel splits per-pixel CPU work across goroutines.
package parallel

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// MinBandRows is the smallest number of rows handed to one goroutine.
// Images shorter than this run on the calling goroutine.
const MinBandRows = 16

// WorkerPool bounds how many goroutines a single call may use.
//
// Thread safety: WorkerPool is safe for concurrent use. Each call owns its
// own errgroup, so concurrent calls do not share a limit.
type WorkerPool struct {
	workers int
	running atomic.Bool
}

// NewWorkerPool creates a pool with the given goroutine limit.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{workers: workers}
	p.running.Store(true)
	return p
}

// Workers returns the goroutine limit.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// Close stops the pool. Later calls run nothing. Close is idempotent.
func (p *WorkerPool) Close() {
	p.running.Store(false)
}

// ExecuteAll runs every work item and waits for them. It returns the first
// error; items not yet started when an error occurs are skipped.
func (p *WorkerPool) ExecuteAll(work []func() error) error {
	if len(work) == 0 || !p.running.Load() {
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	var failed atomic.Bool
	for _, fn := range work {
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := fn(); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Rows splits [0, height) into contiguous bands and calls fn(y0, y1) for
// each band. It returns the first error.
func (p *WorkerPool) Rows(height int, fn func(y0, y1 int) error) error {
	if height <= 0 || !p.running.Load() {
		return nil
	}
	bands := Bands(height, p.workers)
	if len(bands) == 1 {
		return fn(bands[0][0], bands[0][1])
	}

	work := make([]func() error, len(bands))
	for i, b := range bands {
		work[i] = func() error { return fn(b[0], b[1]) }
	}
	return p.ExecuteAll(work)
}

// Bands divides height rows into at most 2*workers bands of at least
// MinBandRows rows each. The bands cover [0, height) in order.
func Bands(height, workers int) [][2]int {
	if height <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	n := min(workers*2, (height+MinBandRows-1)/MinBandRows)
	n = max(n, 1)

	bands := make([][2]int, 0, n)
	per, extra := height/n, height%n
	y := 0
	for i := range n {
		rows := per
		if i < extra {
			rows++
		}
		bands = append(bands, [2]int{y, y + rows})
		y += rows
	}
	return bands
}

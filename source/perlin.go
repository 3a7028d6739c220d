package source

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/furui/fastnoiselite-go"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/internal/parallel"
	"github.com/gogpu/stylize/params"
)

// Perlin noise styles.
const (
	StyleNatural     = "natural"
	StyleFractal     = "fractal"
	StyleNormalized  = "normalized"
	StyleBillowRidge = "billowRidge"
)

// DefaultPerlinSize is a portrait frame with the aspect ratio of A-series
// paper.
var DefaultPerlinSize = stylize.FrameSize{Width: 800, Height: uint32(math.Floor(800 * math.Sqrt2))}

// drift is how far the field moves per second at speed 1, in grid cells.
const drift = 0.25

// PerlinOption configures a Perlin source.
type PerlinOption func(*Perlin)

// WithSeed sets the noise seed.
func WithSeed(seed int64) PerlinOption {
	return func(p *Perlin) { p.seed = seed }
}

// WithPerlinSize sets the natural frame size.
func WithPerlinSize(size stylize.FrameSize) PerlinOption {
	return func(p *Perlin) {
		if size.Valid() {
			p.size = size
		}
	}
}

// WithWorkers sets how many goroutines generate the field.
func WithWorkers(n int) PerlinOption {
	return func(p *Perlin) { p.workers = n }
}

// Perlin is a procedural noise texture. The field is generated on the CPU
// with FastNoiseLite and uploaded whenever a parameter changes or, when
// animating, on every frame.
type Perlin struct {
	b       backend.RenderBackend
	size    stylize.FrameSize
	workers int
	set     *params.Set
	blit    *blitter
	pool    *parallel.WorkerPool

	mu       sync.Mutex
	seed     int64
	surface  stylize.Surface
	rendered float64
	dirty    bool
	closed   bool
}

var _ Source = (*Perlin)(nil)

// NewPerlin creates a noise source on b.
func NewPerlin(b backend.RenderBackend, opts ...PerlinOption) (*Perlin, error) {
	p := &Perlin{b: b, size: DefaultPerlinSize, seed: 1337, dirty: true}
	for _, opt := range opts {
		opt(p)
	}
	blit, err := newBlitter(b, "perlin")
	if err != nil {
		return nil, err
	}
	p.blit = blit
	p.pool = parallel.NewWorkerPool(p.workers)
	p.set = params.NewSet(
		params.Number("intensity", 1, params.Step(0.1), params.Min(0), params.Title("Contrast of the field")),
		params.Number("gridSize", 3, params.Step(0.1), params.Min(0.1), params.Title("Noise cells across the frame")),
		params.Enum("style", StyleNatural, StyleNatural, StyleFractal, StyleNormalized, StyleBillowRidge),
		params.Number("fractals", 5, params.Min(1), params.Max(10), params.Step(1), params.Title("Fractal octaves")),
		params.Bool("animate", false),
		params.Number("speed", 1, params.Step(0.1), params.Min(0)),
		params.Button("reseed", p.reseed, params.Title("Pick a new seed")),
	)
	p.set.Watch(func(params.Change) {
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
	})
	return p, nil
}

// Name returns NamePerlin.
func (p *Perlin) Name() string { return NamePerlin }

// Key is the same for every Perlin source: selecting noise while noise is
// shown is a no-op.
func (p *Perlin) Key() string { return NamePerlin }

// Params returns the noise parameters.
func (p *Perlin) Params() *params.Set { return p.set }

// Size returns the natural frame size.
func (p *Perlin) Size() stylize.FrameSize { return p.size }

// Animated reports the "animate" parameter.
func (p *Perlin) Animated() bool { return p.set.Bool("animate") }

// Cadence returns 30 Hz.
func (p *Perlin) Cadence() time.Duration { return stylize.Cadence30Hz }

// Seed returns the current seed.
func (p *Perlin) Seed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seed
}

func (p *Perlin) reseed() {
	p.mu.Lock()
	p.seed = p.seed*6364136223846793005 + 1442695040888963407
	p.mu.Unlock()
}

// Passes regenerates the field if needed and returns its blit pass.
func (p *Perlin) Passes(t float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	if !size.Valid() {
		size = p.size
	}
	animated := p.Animated()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	stale := p.surface == nil || p.dirty || p.surface.Size() != size || (animated && t != p.rendered)
	if stale {
		img, err := p.fieldLocked(t, size)
		if err != nil {
			return nil, err
		}
		surf, err := p.b.Upload("perlin", img)
		if err != nil {
			return nil, fmt.Errorf("source: upload noise: %w", err)
		}
		p.dropSurfaceLocked()
		p.surface = surf
		p.rendered = t
		p.dirty = false
	}
	return []stylize.PassDescriptor{p.blit.pass(p.surface)}, nil
}

// Field generates the noise image at time t.
func (p *Perlin) Field(t float64, size stylize.FrameSize) (*image.NRGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fieldLocked(t, size)
}

func (p *Perlin) fieldLocked(t float64, size stylize.FrameSize) (*image.NRGBA, error) {
	if !size.Valid() {
		return nil, stylize.ErrInvalidFrameSize
	}
	style := p.set.Choice("style")
	grid := p.set.Float("gridSize")
	intensity := p.set.Float("intensity")
	phase := 0.0
	if p.set.Bool("animate") {
		phase = t * p.set.Float("speed") * drift
	}

	noise := fastnoiselite.NewNoise()
	noise.SetNoiseType(fastnoiselite.NoiseTypePerlin)
	noise.Frequency = 1
	if style != StyleNatural {
		noise.FractalType = fastnoiselite.FractalTypeFBm
		noise.SetFractalOctaves(int32(p.set.Float("fractals")))
	}

	// The seed selects a distant region of the field.
	offX := float64(p.seed%4096) * 31.7
	offY := float64((p.seed/4096)%4096) * 17.3

	w, h := int(size.Width), int(size.Height)
	scale := grid / float64(max(w, h))
	values := make([]float64, w*h)
	err := p.pool.Rows(h, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			for x := range w {
				nx := float64(x)*scale + offX + phase
				ny := float64(y)*scale + offY
				n := float64(noise.GetNoise2D(fastnoiselite.FNLfloat(nx), fastnoiselite.FNLfloat(ny)))
				if style == StyleBillowRidge {
					n = 1 - math.Abs(n)
				} else {
					n = (n + 1) / 2
				}
				values[y*w+x] = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if style == StyleNormalized {
		normalize(values)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range values {
		v = 0.5 + (v-0.5)*intensity
		g := uint8(math.Round(math.Min(math.Max(v, 0), 1) * 255))
		img.Pix[i*4+0] = g
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = g
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// normalize stretches values to fill 0..1.
func normalize(values []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < 1e-12 {
		return
	}
	for i, v := range values {
		values[i] = (v - lo) / (hi - lo)
	}
}

// Close destroys the uploaded surface and stops the worker pool.
func (p *Perlin) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.dropSurfaceLocked()
	p.pool.Close()
}

func (p *Perlin) dropSurfaceLocked() {
	if p.surface == nil {
		return
	}
	if dev := p.b.Device(); dev != nil {
		dev.DestroySurface(p.surface)
	}
	p.surface = nil
}

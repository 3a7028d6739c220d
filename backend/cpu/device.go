package cpu

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/internal/parallel"
)

// Format is the color format of every CPU surface.
const Format = gputypes.TextureFormatRGBA8Unorm

// CPU device errors.
var (
	// ErrOutOfMemory is returned when a surface would exceed the pixel budget.
	ErrOutOfMemory = errors.New("cpu: surface pixel budget exhausted")

	// ErrForeignSurface is returned for surfaces created by another device.
	ErrForeignSurface = errors.New("cpu: surface not created by this device")

	// ErrSurfaceDestroyed is returned when a destroyed surface is used.
	ErrSurfaceDestroyed = errors.New("cpu: surface destroyed")

	// ErrPipelineType is returned when a pass is given a foreign pipeline.
	ErrPipelineType = errors.New("cpu: unsupported pipeline type")

	// ErrBatchClosed is returned when a submitted or discarded batch is reused.
	ErrBatchClosed = errors.New("cpu: batch already closed")
)

// Surface is an RGBA8 image owned by a Device.
type Surface struct {
	label     string
	size      stylize.FrameSize
	usage     gputypes.TextureUsage
	img       *image.NRGBA
	dev       *Device
	destroyed bool
}

func (s *Surface) Label() string                  { return s.label }
func (s *Surface) Size() stylize.FrameSize        { return s.size }
func (s *Surface) Format() gputypes.TextureFormat { return Format }

// Usage returns the usage the surface was created with.
func (s *Surface) Usage() gputypes.TextureUsage { return s.usage }

// Image returns the surface pixels. The image stays valid until the
// surface is destroyed.
func (s *Surface) Image() *image.NRGBA { return s.img }

// Stats counts device activity.
type Stats struct {
	Surfaces      uint64 // surfaces created
	Batches       uint64
	Submits       uint64
	Discards      uint64
	RenderPasses  uint64 // render passes executed
	ComputePasses uint64 // compute passes executed
	LivePixels    int
}

// Option configures a Device.
type Option func(*config)

type config struct {
	workers int
	budget  int
}

// WithWorkers bounds the goroutines shading one pass. The default is
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithPixelBudget limits the total pixels of live surfaces. CreateSurface
// fails with ErrOutOfMemory beyond it. Zero means unlimited.
func WithPixelBudget(pixels int) Option {
	return func(c *config) { c.budget = pixels }
}

// Device executes passes as Go pixel kernels. Commands are recorded into
// batches and run in order on Submit, so a pass sees the results of every
// pass submitted before it.
//
// Thread safety: surface creation and destruction are safe for concurrent
// use; a batch belongs to one goroutine.
type Device struct {
	pool   *parallel.WorkerPool
	budget int

	mu    sync.Mutex
	live  int
	stats Stats
}

// NewDevice creates a CPU device.
func NewDevice(opts ...Option) *Device {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Device{
		pool:   parallel.NewWorkerPool(cfg.workers),
		budget: cfg.budget,
	}
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.LivePixels = d.live
	return s
}

// Close stops the worker pool. Later submissions shade nothing.
func (d *Device) Close() {
	d.pool.Close()
}

// CreateSurface implements stylize.Device.
func (d *Device) CreateSurface(desc stylize.SurfaceDescriptor) (stylize.Surface, error) {
	s, err := d.newSurface(desc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Device) newSurface(desc stylize.SurfaceDescriptor) (*Surface, error) {
	if !desc.Size.Valid() {
		return nil, fmt.Errorf("cpu: create %q: %w", desc.Label, stylize.ErrInvalidFrameSize)
	}
	if desc.Format != Format && desc.Format != gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("cpu: create %q: unsupported format %v", desc.Label, desc.Format)
	}
	pixels := int(desc.Size.Pixels())

	d.mu.Lock()
	if d.budget > 0 && d.live+pixels > d.budget {
		live := d.live
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s needs %d pixels, %d of %d live",
			ErrOutOfMemory, desc.Size, pixels, live, d.budget)
	}
	d.live += pixels
	d.stats.Surfaces++
	d.mu.Unlock()

	return &Surface{
		label: desc.Label,
		size:  desc.Size,
		usage: desc.Usage,
		img:   image.NewNRGBA(image.Rect(0, 0, int(desc.Size.Width), int(desc.Size.Height))),
		dev:   d,
	}, nil
}

// DestroySurface implements stylize.Device. Foreign and already destroyed
// surfaces are ignored.
func (d *Device) DestroySurface(s stylize.Surface) {
	cs, ok := s.(*Surface)
	if !ok || cs == nil || cs.dev != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cs.destroyed {
		return
	}
	cs.destroyed = true
	d.live -= int(cs.size.Pixels())
	cs.img = nil
}

// Upload creates a surface holding a copy of img.
func (d *Device) Upload(label string, img image.Image) (*Surface, error) {
	b := img.Bounds()
	s, err := d.newSurface(stylize.SurfaceDescriptor{
		Label:  label,
		Size:   stylize.FrameSize{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
		Format: Format,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	xdraw.Copy(s.img, image.Point{}, img, b, xdraw.Src, nil)
	return s, nil
}

// Download returns a copy of the surface pixels.
func (d *Device) Download(s stylize.Surface) (*image.NRGBA, error) {
	cs, err := d.own(s)
	if err != nil {
		return nil, err
	}
	out := image.NewNRGBA(cs.img.Rect)
	copy(out.Pix, cs.img.Pix)
	return out, nil
}

// own checks that s is a live surface of this device.
func (d *Device) own(s stylize.Surface) (*Surface, error) {
	cs, ok := s.(*Surface)
	if !ok || cs == nil || cs.dev != d {
		return nil, fmt.Errorf("%w: %T", ErrForeignSurface, s)
	}
	d.mu.Lock()
	destroyed := cs.destroyed
	d.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: %q", ErrSurfaceDestroyed, cs.label)
	}
	return cs, nil
}

// BeginBatch implements stylize.Device.
func (d *Device) BeginBatch(label string) (stylize.CommandBatch, error) {
	d.mu.Lock()
	d.stats.Batches++
	d.mu.Unlock()
	return &batch{dev: d, label: label}, nil
}

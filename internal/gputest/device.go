// Package gputest provides an instrumented stylize.Device that records every
// call instead of executing it.
package gputest

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stylize"
)

// ErrOutOfMemory is returned by CreateSurface once the allocation limit is hit.
var ErrOutOfMemory = errors.New("gputest: out of device memory")

// Surface is a recorded surface.
type Surface struct {
	ID        int
	label     string
	size      stylize.FrameSize
	format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
	Destroyed bool
}

func (s *Surface) Label() string                  { return s.label }
func (s *Surface) Size() stylize.FrameSize        { return s.size }
func (s *Surface) Format() gputypes.TextureFormat { return s.format }

// PassRecord is one encoded pass.
type PassRecord struct {
	Label    string
	Kind     stylize.PassKind
	Pipeline any
	Bindings []stylize.Binding
	Target   *Surface
	Batch    int
	Vertices uint32
	Dispatch [3]uint32
	Ended    bool
}

// Input returns the resource bound at slot 1.
func (p PassRecord) Input() any {
	for _, b := range p.Bindings {
		if b.Slot == stylize.InputSlot {
			return b.Resource
		}
	}
	return nil
}

// Device records calls made by the executor.
type Device struct {
	Format gputypes.TextureFormat

	// AllocLimit makes CreateSurface fail once this many surfaces were
	// created. Zero means unlimited.
	AllocLimit int

	// FailSubmit makes every Submit fail with this error.
	FailSubmit error

	// IsBusy is returned by Busy.
	IsBusy bool

	// Log is the ordered call log, e.g. "batch", "render:blur", "submit".
	Log []string

	Passes    []PassRecord
	Surfaces  []*Surface
	batches   int
	submits   int
	discarded int
}

// NewDevice creates a recording device with RGBA8 surfaces.
func NewDevice() *Device {
	return &Device{Format: gputypes.TextureFormatRGBA8Unorm}
}

// NewTarget creates a terminal surface that is not counted as an allocation.
func (d *Device) NewTarget(label string, size stylize.FrameSize) *Surface {
	return &Surface{ID: -1, label: label, size: size, format: d.Format}
}

// BatchStarts returns the number of BeginBatch calls.
func (d *Device) BatchStarts() int { return d.batches }

// Submits returns the number of successful submissions.
func (d *Device) Submits() int { return d.submits }

// Discards returns the number of discarded batches.
func (d *Device) Discards() int { return d.discarded }

// Live returns the number of created surfaces not yet destroyed.
func (d *Device) Live() int {
	n := 0
	for _, s := range d.Surfaces {
		if !s.Destroyed {
			n++
		}
	}
	return n
}

// Reset clears the call log and counters, keeping surfaces.
func (d *Device) Reset() {
	d.Log = nil
	d.Passes = nil
	d.batches, d.submits, d.discarded = 0, 0, 0
}

// Busy implements stylize.BusyReporter.
func (d *Device) Busy() bool { return d.IsBusy }

func (d *Device) CreateSurface(desc stylize.SurfaceDescriptor) (stylize.Surface, error) {
	if d.AllocLimit > 0 && len(d.Surfaces) >= d.AllocLimit {
		d.Log = append(d.Log, "create:oom")
		return nil, ErrOutOfMemory
	}
	s := &Surface{
		ID:     len(d.Surfaces),
		label:  desc.Label,
		size:   desc.Size,
		format: desc.Format,
		Usage:  desc.Usage,
	}
	d.Surfaces = append(d.Surfaces, s)
	d.Log = append(d.Log, fmt.Sprintf("create:%d", s.ID))
	return s, nil
}

func (d *Device) DestroySurface(s stylize.Surface) {
	rs, ok := s.(*Surface)
	if !ok {
		panic(fmt.Sprintf("gputest: foreign surface %T", s))
	}
	if rs.Destroyed {
		panic(fmt.Sprintf("gputest: surface %d destroyed twice", rs.ID))
	}
	rs.Destroyed = true
	d.Log = append(d.Log, fmt.Sprintf("destroy:%d", rs.ID))
}

func (d *Device) BeginBatch(label string) (stylize.CommandBatch, error) {
	d.batches++
	d.Log = append(d.Log, "batch")
	return &batch{dev: d, index: d.batches}, nil
}

type batch struct {
	dev   *Device
	index int
	done  bool
}

func (b *batch) BeginRenderPass(label string, target stylize.Surface) (stylize.RenderPassEncoder, error) {
	rs, ok := target.(*Surface)
	if !ok {
		return nil, fmt.Errorf("gputest: foreign target %T", target)
	}
	if rs.Destroyed {
		return nil, fmt.Errorf("gputest: render into destroyed surface %d", rs.ID)
	}
	b.dev.Log = append(b.dev.Log, "render:"+label)
	b.dev.Passes = append(b.dev.Passes, PassRecord{Label: label, Kind: stylize.PassRender, Target: rs, Batch: b.index})
	return &encoder{dev: b.dev, idx: len(b.dev.Passes) - 1}, nil
}

func (b *batch) BeginComputePass(label string) (stylize.ComputePassEncoder, error) {
	b.dev.Log = append(b.dev.Log, "compute:"+label)
	b.dev.Passes = append(b.dev.Passes, PassRecord{Label: label, Kind: stylize.PassCompute, Batch: b.index})
	return &encoder{dev: b.dev, idx: len(b.dev.Passes) - 1}, nil
}

func (b *batch) Submit() error {
	if b.done {
		return errors.New("gputest: batch submitted twice")
	}
	b.done = true
	if b.dev.FailSubmit != nil {
		b.dev.Log = append(b.dev.Log, "submit:failed")
		return b.dev.FailSubmit
	}
	b.dev.submits++
	b.dev.Log = append(b.dev.Log, "submit")
	return nil
}

func (b *batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	b.dev.discarded++
	b.dev.Log = append(b.dev.Log, "discard")
}

// encoder records both render and compute passes.
type encoder struct {
	dev *Device
	idx int
}

func (e *encoder) rec() *PassRecord { return &e.dev.Passes[e.idx] }

func (e *encoder) SetPipeline(p any) error {
	if p == nil {
		return errors.New("gputest: nil pipeline")
	}
	e.rec().Pipeline = p
	return nil
}

func (e *encoder) SetBindings(bindings []stylize.Binding) error {
	for _, b := range bindings {
		if s, ok := b.Resource.(*Surface); ok && s.Destroyed {
			return fmt.Errorf("gputest: slot %d binds destroyed surface %d", b.Slot, s.ID)
		}
	}
	e.rec().Bindings = append([]stylize.Binding(nil), bindings...)
	return nil
}

func (e *encoder) Draw(vertexCount, instanceCount uint32) {
	e.rec().Vertices = vertexCount * instanceCount
}

func (e *encoder) Dispatch(x, y, z uint32) {
	e.rec().Dispatch = [3]uint32{x, y, z}
}

func (e *encoder) End() error {
	e.rec().Ended = true
	return nil
}

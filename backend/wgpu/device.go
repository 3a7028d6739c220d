package wgpu

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"unsafe"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

// Format is the color format of uploaded, storage and intermediate surfaces.
// Render pipelines target it.
const Format = gputypes.TextureFormatRGBA8Unorm

// GPU device errors.
var (
	// ErrNoAdapter is returned by Open when no HAL backend yields an adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

	// ErrNoHAL is returned when a DeviceProvider does not expose HAL types.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL device and queue")

	// ErrForeignSurface is returned for surfaces created by another device.
	ErrForeignSurface = errors.New("wgpu: surface not created by this device")

	// ErrSurfaceDestroyed is returned when a destroyed surface is used.
	ErrSurfaceDestroyed = errors.New("wgpu: surface destroyed")

	// ErrPipelineType is returned when a pass is given a foreign pipeline.
	ErrPipelineType = errors.New("wgpu: unsupported pipeline type")

	// ErrBatchClosed is returned when a submitted or discarded batch is reused.
	ErrBatchClosed = errors.New("wgpu: batch already closed")

	// ErrMissingBinding is returned when a pipeline slot has no binding.
	ErrMissingBinding = errors.New("wgpu: pipeline slot has no binding")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("wgpu: device closed")
)

// BackendPriority is the order in which Open tries HAL backends.
var BackendPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
}

// DefaultPipelineCacheSize bounds the number of distinct compiled shaders.
const DefaultPipelineCacheSize = 128

// Option configures a Device.
type Option func(*config)

type config struct {
	pipelineCache int
}

// WithPipelineCacheSize sets how many compiled pipelines are kept. Evicted
// pipelines are destroyed.
func WithPipelineCacheSize(n int) Option {
	return func(c *config) { c.pipelineCache = n }
}

// Surface is a 2D texture and its default view.
type Surface struct {
	label     string
	size      stylize.FrameSize
	format    gputypes.TextureFormat
	usage     gputypes.TextureUsage
	tex       hal.Texture
	view      hal.TextureView
	dev       *Device
	destroyed bool
}

func (s *Surface) Label() string                  { return s.label }
func (s *Surface) Size() stylize.FrameSize        { return s.size }
func (s *Surface) Format() gputypes.TextureFormat { return s.format }

// Usage returns the usage the texture was created with.
func (s *Surface) Usage() gputypes.TextureUsage { return s.usage }

// Sampler is a clamp-to-edge HAL sampler.
type Sampler struct {
	filter  backend.Filter
	sampler hal.Sampler
}

// Filter returns the sampler's filter.
func (s *Sampler) Filter() backend.Filter { return s.filter }

// retired holds objects that may still be referenced by submitted work.
// They are destroyed once the queue reports index complete.
type retired struct {
	index    uint64
	cmd      hal.CommandBuffer
	groups   []hal.BindGroup
	buffers  []hal.Buffer
	views    []hal.TextureView
	textures []hal.Texture
}

// Device implements stylize.Device on a HAL device and queue.
//
// Thread safety: all methods are safe for concurrent use; a batch belongs
// to one goroutine.
type Device struct {
	device hal.Device
	queue  hal.Queue
	name   string

	// Set by Open; destroyed by Close.
	instance hal.Instance
	adapter  hal.Adapter

	pipelines *pipelineCache

	mu             sync.Mutex
	lastSubmission uint64
	inflight       []retired
	samplers       map[backend.Filter]*Sampler
	lost           bool
	closed         bool
}

var (
	_ stylize.Device       = (*Device)(nil)
	_ stylize.BusyReporter = (*Device)(nil)
)

func newDevice(device hal.Device, queue hal.Queue, name string, opts []Option) *Device {
	cfg := config{pipelineCache: DefaultPipelineCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Device{
		device:   device,
		queue:    queue,
		name:     name,
		samplers: make(map[backend.Filter]*Sampler),
	}
	d.pipelines = newPipelineCache(d, cfg.pipelineCache)
	return d
}

// NewDevice wraps the device of a host GPU context. The provider must
// expose HalDevice() and HalQueue(); the device is not destroyed by Close.
func NewDevice(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNoHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNoHAL, hp.HalQueue())
	}
	info := provider.AdapterInfo()
	slogger().Info("wgpu: using host device", "adapter", info.Name, "type", info.Type)
	return newDevice(device, queue, info.Name, opts), nil
}

// NewDeviceFromHAL wraps an opened HAL device and queue. The device is not
// destroyed by Close.
func NewDeviceFromHAL(device hal.Device, queue hal.Queue, opts ...Option) *Device {
	return newDevice(device, queue, "", opts)
}

// Open creates a device on the first HAL backend in BackendPriority that
// is registered and has an adapter. HAL backends register on import, e.g.
//
//	import _ "github.com/gogpu/wgpu/hal/vulkan"
func Open(opts ...Option) (*Device, error) {
	for _, variant := range BackendPriority {
		d, err := OpenBackend(variant, opts...)
		if err == nil {
			return d, nil
		}
		slogger().Debug("wgpu: backend unavailable", "backend", variant, "err", err)
	}
	return nil, ErrNoAdapter
}

// OpenBackend creates a device on the given HAL backend, preferring a
// discrete adapter over an integrated one.
func OpenBackend(variant gputypes.Backend, opts ...Option) (*Device, error) {
	b, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %s backend not registered", ErrNoAdapter, variant)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s instance: %w", variant, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, variant)
	}

	chosen := pickAdapter(adapters)
	open, err := chosen.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open %s: %w", chosen.Info.Name, err)
	}
	slogger().Info("wgpu: adapter selected",
		"name", chosen.Info.Name, "type", chosen.Info.DeviceType, "backend", variant)

	d := newDevice(open.Device, open.Queue, chosen.Info.Name, opts)
	d.instance = instance
	d.adapter = chosen.Adapter
	return d, nil
}

func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// Name returns the adapter name, if known.
func (d *Device) Name() string { return d.name }

// HAL returns the underlying device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// Lost reports whether the device has reported loss.
func (d *Device) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Busy implements stylize.BusyReporter: it reports whether the last
// submission is still executing.
func (d *Device) Busy() bool {
	d.reclaim()
	d.mu.Lock()
	last := d.lastSubmission
	d.mu.Unlock()
	return d.queue.PollCompleted() < last
}

// Close waits for the queue to drain and releases every object the device
// created. Devices from Open are destroyed too.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.device.WaitIdle(); err != nil {
		slogger().Warn("wgpu: wait idle on close", "err", err)
	}
	d.reclaimAll()
	d.pipelines.purge()

	d.mu.Lock()
	for f, s := range d.samplers {
		d.device.DestroySampler(s.sampler)
		delete(d.samplers, f)
	}
	d.mu.Unlock()

	if d.instance != nil {
		d.device.Destroy()
		d.adapter.Destroy()
		d.instance.Destroy()
	}
}

// check converts HAL device loss into stylize.ErrDeviceLost.
func (d *Device) check(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, hal.ErrDeviceLost) {
		d.mu.Lock()
		first := !d.lost
		d.lost = true
		d.mu.Unlock()
		if first {
			slogger().Warn("wgpu: device lost", "adapter", d.name, "err", err)
		}
		return fmt.Errorf("%w: %w", stylize.ErrDeviceLost, err)
	}
	return err
}

func (d *Device) usable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return ErrClosed
	case d.lost:
		return stylize.ErrDeviceLost
	}
	return nil
}

// CreateSurface implements stylize.Device. An undefined format means
// Format; zero usage means stylize.IntermediateUsage.
func (d *Device) CreateSurface(desc stylize.SurfaceDescriptor) (stylize.Surface, error) {
	s, err := d.newSurface(desc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Device) newSurface(desc stylize.SurfaceDescriptor) (*Surface, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if !desc.Size.Valid() {
		return nil, fmt.Errorf("wgpu: create %q: %w", desc.Label, stylize.ErrInvalidFrameSize)
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = Format
	}
	if desc.Usage == 0 {
		desc.Usage = stylize.IntermediateUsage
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Size.Width, Height: desc.Size.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err))
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, d.check(fmt.Errorf("wgpu: create view %q: %w", desc.Label, err))
	}
	return &Surface{
		label:  desc.Label,
		size:   desc.Size,
		format: desc.Format,
		usage:  desc.Usage,
		tex:    tex,
		view:   view,
		dev:    d,
	}, nil
}

// DestroySurface implements stylize.Device. The texture is destroyed once
// the work submitted so far has completed.
func (d *Device) DestroySurface(s stylize.Surface) {
	gs, ok := s.(*Surface)
	if !ok || gs == nil || gs.dev != d {
		return
	}
	d.mu.Lock()
	if gs.destroyed {
		d.mu.Unlock()
		return
	}
	gs.destroyed = true
	d.inflight = append(d.inflight, retired{
		index:    d.lastSubmission,
		views:    []hal.TextureView{gs.view},
		textures: []hal.Texture{gs.tex},
	})
	d.mu.Unlock()
	d.reclaim()
}

// own checks that s is a live surface of this device.
func (d *Device) own(s stylize.Surface) (*Surface, error) {
	gs, ok := s.(*Surface)
	if !ok || gs == nil || gs.dev != d {
		return nil, fmt.Errorf("%w: %T", ErrForeignSurface, s)
	}
	d.mu.Lock()
	destroyed := gs.destroyed
	d.mu.Unlock()
	if destroyed {
		return nil, fmt.Errorf("%w: %q", ErrSurfaceDestroyed, gs.label)
	}
	return gs, nil
}

// Sampler returns the device's clamp-to-edge sampler for f.
func (d *Device) Sampler(f backend.Filter) (*Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers[f]; ok {
		return s, nil
	}
	mode := gputypes.FilterModeNearest
	if f == backend.FilterLinear {
		mode = gputypes.FilterModeLinear
	}
	hs, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "stylize " + f.String(),
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    mode,
		MinFilter:    mode,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler: %w", err)
	}
	s := &Sampler{filter: f, sampler: hs}
	d.samplers[f] = s
	return s, nil
}

// Upload creates a sampleable surface holding img.
func (d *Device) Upload(label string, img image.Image) (*Surface, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	s, err := d.newSurface(stylize.SurfaceDescriptor{
		Label:  label,
		Size:   stylize.FrameSize{Width: uint32(w), Height: uint32(h)},
		Format: Format,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	err = d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: s.tex, Aspect: gputypes.TextureAspectAll},
		src.Pix,
		&hal.ImageDataLayout{BytesPerRow: uint32(src.Stride), RowsPerImage: uint32(h)},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	if err != nil {
		d.DestroySurface(s)
		return nil, d.check(fmt.Errorf("wgpu: upload %q: %w", label, err))
	}
	return s, nil
}

// Download copies a surface into memory. It blocks until the queue is idle.
func (d *Device) Download(s stylize.Surface) (*image.NRGBA, error) {
	gs, err := d.own(s)
	if err != nil {
		return nil, err
	}
	w, h := gs.size.Width, gs.size.Height
	bytesPerRow := w * 4
	aligned := (bytesPerRow + 255) &^ 255
	size := uint64(aligned) * uint64(h)

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback " + gs.label,
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback buffer: %w", err))
	}
	defer d.device.DestroyBuffer(buf)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback encoder: %w", err))
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback encoding: %w", err))
	}
	encoder.CopyTextureToBuffer(gs.tex, buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: aligned, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: gs.tex, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback end: %w", err))
	}
	defer d.device.FreeCommandBuffer(cmd)

	idx, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback submit: %w", err))
	}
	d.noteSubmission(idx)
	if err := d.device.WaitIdle(); err != nil {
		return nil, d.check(fmt.Errorf("wgpu: readback wait: %w", err))
	}

	mapping, err := d.device.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: map readback: %w", err))
	}
	defer func() {
		if err := d.device.UnmapBuffer(buf); err != nil {
			slogger().Warn("wgpu: unmap readback", "err", err)
		}
	}()
	raw := unsafe.Slice((*byte)(mapping.Ptr), size)

	out := image.NewNRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := range int(h) {
		row := raw[uint64(y)*uint64(aligned):]
		copy(out.Pix[y*out.Stride:y*out.Stride+int(bytesPerRow)], row[:bytesPerRow])
	}
	return out, nil
}

func (d *Device) noteSubmission(idx uint64) {
	d.mu.Lock()
	if idx > d.lastSubmission {
		d.lastSubmission = idx
	}
	d.mu.Unlock()
}

func (d *Device) retire(r retired) {
	d.mu.Lock()
	d.inflight = append(d.inflight, r)
	d.mu.Unlock()
}

// reclaim destroys retired objects whose submission has completed.
func (d *Device) reclaim() {
	done := d.queue.PollCompleted()
	d.mu.Lock()
	var ready []retired
	kept := d.inflight[:0]
	for _, r := range d.inflight {
		if r.index <= done {
			ready = append(ready, r)
		} else {
			kept = append(kept, r)
		}
	}
	d.inflight = kept
	d.mu.Unlock()
	for _, r := range ready {
		d.destroy(r)
	}
}

func (d *Device) reclaimAll() {
	d.mu.Lock()
	all := d.inflight
	d.inflight = nil
	d.mu.Unlock()
	for _, r := range all {
		d.destroy(r)
	}
}

func (d *Device) destroy(r retired) {
	if r.cmd != nil {
		d.device.FreeCommandBuffer(r.cmd)
	}
	for _, g := range r.groups {
		d.device.DestroyBindGroup(g)
	}
	for _, b := range r.buffers {
		d.device.DestroyBuffer(b)
	}
	for _, v := range r.views {
		d.device.DestroyTextureView(v)
	}
	for _, t := range r.textures {
		d.device.DestroyTexture(t)
	}
}

// Pending returns the number of retired object sets awaiting completion.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

// BeginBatch implements stylize.Device. A batch records into one HAL command
// encoder and submits it as one command buffer.
func (d *Device) BeginBatch(label string) (stylize.CommandBatch, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	d.reclaim()
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: command encoder %q: %w", label, err))
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, d.check(fmt.Errorf("wgpu: begin encoding %q: %w", label, err))
	}
	return &batch{dev: d, label: label, encoder: encoder}, nil
}

type batch struct {
	dev     *Device
	label   string
	encoder hal.CommandEncoder

	// Objects referenced by the recorded passes.
	groups  []hal.BindGroup
	buffers []hal.Buffer

	open   bool
	closed bool
}

func (b *batch) begin() error {
	if b.closed {
		return ErrBatchClosed
	}
	if b.open {
		return fmt.Errorf("wgpu: batch %q: previous pass not ended", b.label)
	}
	return nil
}

func (b *batch) BeginRenderPass(label string, target stylize.Surface) (stylize.RenderPassEncoder, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	t, err := b.dev.own(target)
	if err != nil {
		return nil, fmt.Errorf("wgpu: render pass %q target: %w", label, err)
	}
	if t.format != Format {
		return nil, fmt.Errorf("wgpu: render pass %q target format %v, pipelines write %v", label, t.format, Format)
	}
	pass := b.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	b.open = true
	return &renderPass{b: b, label: label, pass: pass}, nil
}

func (b *batch) BeginComputePass(label string) (stylize.ComputePassEncoder, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	pass := b.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	b.open = true
	return &computePass{b: b, label: label, pass: pass}, nil
}

// Submit ends encoding and submits the command buffer. The bind groups and
// uniform buffers of the batch are destroyed once the GPU has finished it.
func (b *batch) Submit() error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	if b.open {
		b.encoder.DiscardEncoding()
		b.release()
		return fmt.Errorf("wgpu: batch %q submitted with an open pass", b.label)
	}

	cmd, err := b.encoder.EndEncoding()
	if err != nil {
		b.release()
		return b.dev.check(fmt.Errorf("wgpu: end encoding %q: %w", b.label, err))
	}
	idx, err := b.dev.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.dev.device.FreeCommandBuffer(cmd)
		b.release()
		return b.dev.check(fmt.Errorf("wgpu: submit %q: %w", b.label, err))
	}
	b.dev.noteSubmission(idx)
	b.dev.retire(retired{index: idx, cmd: cmd, groups: b.groups, buffers: b.buffers})
	b.groups, b.buffers = nil, nil
	slogger().Debug("wgpu: batch submitted", "batch", b.label, "submission", idx)
	return nil
}

func (b *batch) Discard() {
	if b.closed {
		return
	}
	b.closed = true
	b.encoder.DiscardEncoding()
	b.release()
}

// release destroys objects created for a batch that never reached the queue.
func (b *batch) release() {
	for _, g := range b.groups {
		b.dev.device.DestroyBindGroup(g)
	}
	for _, buf := range b.buffers {
		b.dev.device.DestroyBuffer(buf)
	}
	b.groups, b.buffers = nil, nil
}

// bindGroup builds group 0 for p from the pass bindings. Every slot of the
// pipeline layout must be bound; extra bindings are ignored.
func (b *batch) bindGroup(p *Pipeline, label string, bindings []stylize.Binding) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, 0, len(p.slots))
	for _, slot := range p.slots {
		bd, ok := findBinding(bindings, slot.Binding)
		if !ok {
			return nil, fmt.Errorf("%w: %q slot %d (%s)", ErrMissingBinding, label, slot.Binding, slot.Kind)
		}
		res, err := b.resource(slot, bd)
		if err != nil {
			return nil, fmt.Errorf("wgpu: %q slot %d: %w", label, slot.Binding, err)
		}
		entries = append(entries, gputypes.BindGroupEntry{Binding: slot.Binding, Resource: res})
	}
	group, err := b.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  p.groups,
		Entries: entries,
	})
	if err != nil {
		return nil, b.dev.check(fmt.Errorf("wgpu: bind group %q: %w", label, err))
	}
	b.groups = append(b.groups, group)
	return group, nil
}

func findBinding(bindings []stylize.Binding, slot uint32) (stylize.Binding, bool) {
	for _, bd := range bindings {
		if bd.Slot == slot {
			return bd, true
		}
	}
	return stylize.Binding{}, false
}

func (b *batch) resource(slot backend.Slot, bd stylize.Binding) (gputypes.BindingResource, error) {
	switch slot.Kind {
	case stylize.BindingSampler:
		s, ok := bd.Resource.(*Sampler)
		if !ok {
			return nil, fmt.Errorf("want *wgpu.Sampler, got %T", bd.Resource)
		}
		return gputypes.SamplerBinding{Sampler: s.sampler.NativeHandle()}, nil

	case stylize.BindingTexture, stylize.BindingStorageTexture:
		if !bd.Kind.TextureShaped() {
			return nil, fmt.Errorf("want a texture binding, got %s", bd.Kind)
		}
		s, ok := bd.Resource.(stylize.Surface)
		if !ok {
			return nil, fmt.Errorf("want a surface, got %T", bd.Resource)
		}
		gs, err := b.dev.own(s)
		if err != nil {
			return nil, err
		}
		return gputypes.TextureViewBinding{TextureView: gs.view.NativeHandle()}, nil

	case stylize.BindingBuffer:
		switch v := bd.Resource.(type) {
		case []float32:
			buf, size, err := b.uniforms(v)
			if err != nil {
				return nil, err
			}
			return gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: size}, nil
		case hal.Buffer:
			return gputypes.BufferBinding{Buffer: v.NativeHandle()}, nil
		default:
			return nil, fmt.Errorf("want []float32 or hal.Buffer, got %T", bd.Resource)
		}
	}
	return nil, fmt.Errorf("unknown binding kind %s", slot.Kind)
}

// uniforms uploads u into a new uniform buffer padded to 16 bytes.
func (b *batch) uniforms(u []float32) (hal.Buffer, uint64, error) {
	size := uint64(max(len(u)*4, 16)+15) &^ 15
	data := make([]byte, size)
	for i, f := range u {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	buf, err := b.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "uniforms",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, b.dev.check(err)
	}
	b.buffers = append(b.buffers, buf)
	if err := b.dev.queue.WriteBuffer(buf, 0, data); err != nil {
		return nil, 0, b.dev.check(err)
	}
	return buf, size, nil
}

type renderPass struct {
	b        *batch
	label    string
	pass     hal.RenderPassEncoder
	pipeline *Pipeline
	ended    bool
}

func (e *renderPass) SetPipeline(pipeline any) error {
	p, ok := pipeline.(*Pipeline)
	if !ok {
		return fmt.Errorf("%w: %T", ErrPipelineType, pipeline)
	}
	if p.compute {
		return fmt.Errorf("%w: compute pipeline %q in render pass", ErrPipelineType, p.label)
	}
	e.pipeline = p
	e.pass.SetPipeline(p.render)
	return nil
}

func (e *renderPass) SetBindings(bindings []stylize.Binding) error {
	if e.pipeline == nil {
		return fmt.Errorf("wgpu: render pass %q: bindings set before pipeline", e.label)
	}
	group, err := e.b.bindGroup(e.pipeline, e.label, bindings)
	if err != nil {
		return err
	}
	e.pass.SetBindGroup(0, group, nil)
	return nil
}

func (e *renderPass) Draw(vertexCount, instanceCount uint32) {
	e.pass.Draw(vertexCount, instanceCount, 0, 0)
}

func (e *renderPass) End() error {
	if e.ended {
		return fmt.Errorf("wgpu: render pass %q ended twice", e.label)
	}
	e.ended = true
	e.b.open = false
	e.pass.End()
	if e.pipeline == nil {
		return fmt.Errorf("wgpu: render pass %q has no pipeline", e.label)
	}
	return nil
}

type computePass struct {
	b        *batch
	label    string
	pass     hal.ComputePassEncoder
	pipeline *Pipeline
	ended    bool
}

func (e *computePass) SetPipeline(pipeline any) error {
	p, ok := pipeline.(*Pipeline)
	if !ok {
		return fmt.Errorf("%w: %T", ErrPipelineType, pipeline)
	}
	if !p.compute {
		return fmt.Errorf("%w: render pipeline %q in compute pass", ErrPipelineType, p.label)
	}
	e.pipeline = p
	e.pass.SetPipeline(p.compPSO)
	return nil
}

func (e *computePass) SetBindings(bindings []stylize.Binding) error {
	if e.pipeline == nil {
		return fmt.Errorf("wgpu: compute pass %q: bindings set before pipeline", e.label)
	}
	group, err := e.b.bindGroup(e.pipeline, e.label, bindings)
	if err != nil {
		return err
	}
	e.pass.SetBindGroup(0, group, nil)
	return nil
}

func (e *computePass) Dispatch(x, y, z uint32) {
	e.pass.Dispatch(x, y, z)
}

func (e *computePass) End() error {
	if e.ended {
		return fmt.Errorf("wgpu: compute pass %q ended twice", e.label)
	}
	e.ended = true
	e.b.open = false
	e.pass.End()
	if e.pipeline == nil {
		return fmt.Errorf("wgpu: compute pass %q has no pipeline", e.label)
	}
	return nil
}

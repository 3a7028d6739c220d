package cpu

import (
	"fmt"
	"image"

	"github.com/gogpu/stylize"
)

// command is one recorded pass.
type command struct {
	label    string
	kind     stylize.PassKind
	render   *renderPipeline
	compute  *computePipeline
	bindings []stylize.Binding
	target   *Surface
	vertices uint32
	groups   [3]uint32
}

type batch struct {
	dev    *Device
	label  string
	cmds   []command
	open   bool // a pass encoder is recording
	closed bool
}

func (b *batch) BeginRenderPass(label string, target stylize.Surface) (stylize.RenderPassEncoder, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	t, err := b.dev.own(target)
	if err != nil {
		return nil, fmt.Errorf("cpu: render pass %q target: %w", label, err)
	}
	b.open = true
	return &passEncoder{b: b, cmd: command{label: label, kind: stylize.PassRender, target: t}}, nil
}

func (b *batch) BeginComputePass(label string) (stylize.ComputePassEncoder, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	b.open = true
	return &passEncoder{b: b, cmd: command{label: label, kind: stylize.PassCompute}}, nil
}

func (b *batch) begin() error {
	if b.closed {
		return ErrBatchClosed
	}
	if b.open {
		return fmt.Errorf("cpu: batch %q: previous pass not ended", b.label)
	}
	return nil
}

// Submit runs every recorded pass in order.
func (b *batch) Submit() error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	if b.open {
		return fmt.Errorf("cpu: batch %q submitted with an open pass", b.label)
	}

	for i := range b.cmds {
		c := &b.cmds[i]
		var err error
		if c.kind == stylize.PassRender {
			err = b.dev.runRender(c)
		} else {
			err = b.dev.runCompute(c)
		}
		if err != nil {
			return fmt.Errorf("cpu: batch %q pass %q: %w", b.label, c.label, err)
		}
	}

	b.dev.mu.Lock()
	b.dev.stats.Submits++
	b.dev.mu.Unlock()
	stylize.Logger().Debug("cpu: batch submitted", "batch", b.label, "passes", len(b.cmds))
	return nil
}

func (b *batch) Discard() {
	if b.closed {
		return
	}
	b.closed = true
	b.cmds = nil
	b.dev.mu.Lock()
	b.dev.stats.Discards++
	b.dev.mu.Unlock()
}

// passEncoder records a render or compute pass.
type passEncoder struct {
	b     *batch
	cmd   command
	ended bool
}

func (e *passEncoder) SetPipeline(pipeline any) error {
	switch p := pipeline.(type) {
	case *renderPipeline:
		if e.cmd.kind != stylize.PassRender {
			return fmt.Errorf("%w: render pipeline %q in compute pass", ErrPipelineType, p.label)
		}
		e.cmd.render = p
	case *computePipeline:
		if e.cmd.kind != stylize.PassCompute {
			return fmt.Errorf("%w: compute pipeline %q in render pass", ErrPipelineType, p.label)
		}
		e.cmd.compute = p
	default:
		return fmt.Errorf("%w: %T", ErrPipelineType, pipeline)
	}
	return nil
}

func (e *passEncoder) SetBindings(bindings []stylize.Binding) error {
	for _, bd := range bindings {
		s, ok := bd.Resource.(stylize.Surface)
		if !ok || s == nil {
			continue
		}
		if _, err := e.b.dev.own(s); err != nil {
			return fmt.Errorf("cpu: slot %d: %w", bd.Slot, err)
		}
	}
	e.cmd.bindings = append([]stylize.Binding(nil), bindings...)
	return nil
}

func (e *passEncoder) Draw(vertexCount, instanceCount uint32) {
	e.cmd.vertices = vertexCount * instanceCount
}

func (e *passEncoder) Dispatch(x, y, z uint32) {
	e.cmd.groups = [3]uint32{x, y, z}
}

func (e *passEncoder) End() error {
	if e.ended {
		return fmt.Errorf("cpu: pass %q ended twice", e.cmd.label)
	}
	e.ended = true
	e.b.open = false
	if e.cmd.render == nil && e.cmd.compute == nil {
		return fmt.Errorf("cpu: pass %q has no pipeline", e.cmd.label)
	}
	e.b.cmds = append(e.b.cmds, e.cmd)
	return nil
}

// runRender shades every pixel of the target. Output goes to a scratch
// image first so a pass may sample its own target.
func (d *Device) runRender(c *command) error {
	if c.vertices < 3 {
		return nil
	}
	target, err := d.own(c.target)
	if err != nil {
		return err
	}
	in := newInputs(d, target.size, c.bindings)
	frag, err := c.render.kernel(in)
	if err != nil {
		return err
	}

	w, h := int(target.size.Width), int(target.size.Height)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	err = d.pool.Rows(h, func(y0, y1 int) error {
		for y := y0; y < y1; y++ {
			row := out.Pix[y*out.Stride:]
			for x := range w {
				px := frag(x, y)
				i := x * 4
				row[i+0], row[i+1], row[i+2], row[i+3] = px.R, px.G, px.B, px.A
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	copy(target.img.Pix, out.Pix)

	d.mu.Lock()
	d.stats.RenderPasses++
	d.mu.Unlock()
	return nil
}

func (d *Device) runCompute(c *command) error {
	if c.groups[0] == 0 || c.groups[1] == 0 || c.groups[2] == 0 {
		return nil
	}
	in := newInputs(d, stylize.FrameSize{}, c.bindings)
	if err := c.compute.kernel(in, c.groups); err != nil {
		return err
	}
	d.mu.Lock()
	d.stats.ComputePasses++
	d.mu.Unlock()
	return nil
}

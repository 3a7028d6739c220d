package stylize

import (
	"fmt"
	"log/slog"
)

// FullScreenVertices is the vertex count of the full-screen quad drawn by
// every render pass: two triangles covering the frame.
const FullScreenVertices = 6

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSurfaceManager sets the intermediate surface manager. By default the
// executor owns an unpooled manager on its device.
func WithSurfaceManager(m *SurfaceManager) ExecutorOption {
	return func(e *Executor) {
		e.surfaces = m
	}
}

// WithExecutorLogger overrides the package logger for one executor.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.log = l
	}
}

// Executor runs ProgramInstructions on a Device.
//
// Passes are encoded and submitted strictly in order from the calling
// goroutine. A render pass always closes its batch with a submit. A compute
// pass never submits: the following render pass is recorded into the same
// batch, so the batching rule is "start a new batch unless the previous pass
// was compute".
type Executor struct {
	device   Device
	surfaces *SurfaceManager
	log      *slog.Logger
}

// NewExecutor creates an executor for device.
func NewExecutor(device Device, opts ...ExecutorOption) *Executor {
	e := &Executor{device: device}
	for _, opt := range opts {
		opt(e)
	}
	if e.surfaces == nil {
		e.surfaces = NewSurfaceManager(device, SurfaceManagerConfig{})
	}
	return e
}

// Device returns the device the executor drives.
func (e *Executor) Device() Device { return e.device }

// Surfaces returns the intermediate surface manager.
func (e *Executor) Surfaces() *SurfaceManager { return e.surfaces }

func (e *Executor) logger() *slog.Logger {
	if e.log != nil {
		return e.log
	}
	return Logger()
}

// Execute runs every pass of instr in order. The terminal pass renders into
// terminal; earlier render passes render into intermediate surfaces that are
// bound at slot 1 of the pass that follows them.
//
// Configuration errors are returned before any device call. A non-first
// pass without a texture-shaped slot-1 binding, or a pass after a compute
// pass whose slot-1 binding has no resource, is a malformed program and
// panics. Device errors abort the call and are returned wrapped with the
// failing pass.
func (e *Executor) Execute(instr *ProgramInstructions, size FrameSize, terminal Surface) error {
	if err := instr.Validate(); err != nil {
		return err
	}
	if !size.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidFrameSize, size)
	}
	if terminal == nil {
		return ErrNoTerminal
	}
	if terminal.Size() != size {
		return fmt.Errorf("%w: surface %s, frame %s", ErrSizeMismatch, terminal.Size(), size)
	}
	if i := instr.MissingInput(); i >= 0 {
		panic(fmt.Sprintf("stylize: program %q pass %d (%q) has no input texture at slot %d",
			instr.Label, i, instr.Passes[i].Label, InputSlot))
	}

	run := execution{
		exec:     e,
		instr:    instr,
		size:     size,
		terminal: terminal,
		log:      e.logger(),
	}
	defer run.cleanup()

	for i := range instr.Passes {
		if err := run.pass(i); err != nil {
			return err
		}
	}
	return nil
}

// execution is the state of one Execute call.
type execution struct {
	exec     *Executor
	instr    *ProgramInstructions
	size     FrameSize
	terminal Surface
	log      *slog.Logger

	batch CommandBatch

	// prevOutput is the surface written by the previous render pass.
	prevOutput Surface

	// consumed holds intermediates read by passes in the open batch. They
	// are released once that batch is submitted.
	consumed []Surface
}

func (r *execution) pass(i int) error {
	p := &r.instr.Passes[i]
	first := i == 0
	var prev *PassDescriptor
	if !first {
		prev = &r.instr.Passes[i-1]
	}

	if first || prev.Kind != PassCompute {
		batch, err := r.exec.device.BeginBatch(r.instr.Label)
		if err != nil {
			return r.fail(i, err)
		}
		r.batch = batch
		r.log.Debug("stylize: batch started", "program", r.instr.Label, "pass", i)
	}

	bindings := p.Bindings
	if !first && prev.Kind == PassRender {
		bindings = p.withInput(r.prevOutput)
		r.consumed = append(r.consumed, r.prevOutput)
		r.log.Debug("stylize: input rewired", "pass", i, "label", p.Label, "input", r.prevOutput.Label())
	}

	switch p.Kind {
	case PassRender:
		return r.render(i, p, bindings)
	case PassCompute:
		return r.compute(i, p, bindings)
	default:
		panic(fmt.Sprintf("stylize: pass %d (%q) has unknown kind %s", i, p.Label, p.Kind))
	}
}

func (r *execution) render(i int, p *PassDescriptor, bindings []Binding) error {
	target := r.terminal
	if i < len(r.instr.Passes)-1 {
		s, err := r.exec.surfaces.Allocate(r.size, r.terminal.Format())
		if err != nil {
			return r.fail(i, err)
		}
		target = s
	}
	r.prevOutput = target

	enc, err := r.batch.BeginRenderPass(p.Label, target)
	if err != nil {
		return r.fail(i, err)
	}
	if err := enc.SetPipeline(p.Pipeline); err != nil {
		return r.fail(i, err)
	}
	if err := enc.SetBindings(bindings); err != nil {
		return r.fail(i, err)
	}
	enc.Draw(FullScreenVertices, 1)
	if err := enc.End(); err != nil {
		return r.fail(i, err)
	}

	batch := r.batch
	r.batch = nil
	if err := batch.Submit(); err != nil {
		return r.fail(i, err)
	}
	r.releaseConsumed()
	return nil
}

func (r *execution) compute(i int, p *PassDescriptor, bindings []Binding) error {
	enc, err := r.batch.BeginComputePass(p.Label)
	if err != nil {
		return r.fail(i, err)
	}
	if err := enc.SetPipeline(p.Pipeline); err != nil {
		return r.fail(i, err)
	}
	if err := enc.SetBindings(bindings); err != nil {
		return r.fail(i, err)
	}
	x, y := r.size.Workgroups(p.WorkgroupTile)
	enc.Dispatch(x, y, 1)
	r.log.Debug("stylize: dispatch", "pass", i, "label", p.Label, "x", x, "y", y)
	if err := enc.End(); err != nil {
		return r.fail(i, err)
	}

	// The compute pass reads nothing the executor will hand out again.
	r.prevOutput = nil
	return nil
}

func (r *execution) releaseConsumed() {
	for _, s := range r.consumed {
		r.exec.surfaces.Release(s)
	}
	r.consumed = r.consumed[:0]
}

func (r *execution) fail(i int, err error) error {
	p := &r.instr.Passes[i]
	return fmt.Errorf("stylize: program %q pass %d (%q): %w", r.instr.Label, i, p.Label, err)
}

// cleanup discards an open batch and releases every intermediate still held.
func (r *execution) cleanup() {
	if r.batch != nil {
		r.batch.Discard()
		r.batch = nil
	}
	r.releaseConsumed()
	if r.prevOutput != nil && r.prevOutput != r.terminal {
		r.exec.surfaces.Release(r.prevOutput)
	}
}

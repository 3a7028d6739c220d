package stylize

import "fmt"

// InputSlot is the binding slot reserved for the input image of a pass.
// The executor rewrites it to the previous render pass's output.
const InputSlot uint32 = 1

// PassKind selects how a pass is executed.
type PassKind uint8

const (
	// PassRender draws a full-screen quad into a color target.
	PassRender PassKind = iota

	// PassCompute dispatches a 2D workgroup grid over the frame.
	PassCompute
)

// String returns the pass kind name.
func (k PassKind) String() string {
	switch k {
	case PassRender:
		return "render"
	case PassCompute:
		return "compute"
	default:
		return fmt.Sprintf("PassKind(%d)", uint8(k))
	}
}

// BindingKind describes the shape of a bound resource.
type BindingKind uint8

const (
	BindingSampler BindingKind = iota
	BindingTexture
	BindingStorageTexture
	BindingBuffer
)

// String returns the binding kind name.
func (k BindingKind) String() string {
	switch k {
	case BindingSampler:
		return "sampler"
	case BindingTexture:
		return "texture"
	case BindingStorageTexture:
		return "storage-texture"
	case BindingBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("BindingKind(%d)", uint8(k))
	}
}

// TextureShaped reports whether the binding can hold a texture view.
func (k BindingKind) TextureShaped() bool {
	return k == BindingTexture || k == BindingStorageTexture
}

// Binding associates a pipeline resource slot with a device resource.
// Resource is interpreted by the device: a Surface, a sampler, a uniform
// value or a backend-native handle.
type Binding struct {
	Slot     uint32
	Kind     BindingKind
	Resource any
}

// PassDescriptor describes one GPU operation in a program.
// Descriptors are treated as immutable by the executor.
type PassDescriptor struct {
	Label    string
	Kind     PassKind
	Pipeline any
	Bindings []Binding

	// WorkgroupTile is the square tile edge used to size compute dispatches.
	// Ignored for render passes.
	WorkgroupTile uint32
}

// Binding returns the binding at slot.
func (p *PassDescriptor) Binding(slot uint32) (Binding, bool) {
	for _, b := range p.Bindings {
		if b.Slot == slot {
			return b, true
		}
	}
	return Binding{}, false
}

// withInput returns a copy of the bindings with slot 1 pointing at input.
// The caller's slice is never modified.
func (p *PassDescriptor) withInput(input Surface) []Binding {
	out := make([]Binding, len(p.Bindings))
	copy(out, p.Bindings)
	for i := range out {
		if out[i].Slot == InputSlot {
			out[i].Resource = input
			if out[i].Kind != BindingStorageTexture {
				out[i].Kind = BindingTexture
			}
		}
	}
	return out
}

// ProgramInstructions is an ordered list of passes that applies one effect
// to one frame. Passes run strictly in order.
type ProgramInstructions struct {
	Label  string
	Passes []PassDescriptor
}

// Validate checks the program for configuration errors without touching a
// device. A non-first pass without a texture-shaped slot-1 binding is
// reported by MissingInput instead: Execute panics on it.
func (pi *ProgramInstructions) Validate() error {
	if pi == nil || len(pi.Passes) == 0 {
		return ErrEmptyProgram
	}
	for i := range pi.Passes {
		p := &pi.Passes[i]
		if p.Kind == PassCompute && p.WorkgroupTile == 0 {
			return fmt.Errorf("%w: pass %d (%q)", ErrInvalidWorkgroupTile, i, p.Label)
		}
	}
	last := &pi.Passes[len(pi.Passes)-1]
	if last.Kind != PassRender {
		return fmt.Errorf("%w: pass %d (%q) is %s", ErrTerminalCompute, len(pi.Passes)-1, last.Label, last.Kind)
	}
	return nil
}

// MissingInput returns the index of the first non-first pass that has no
// texture-shaped binding at slot 1, or -1. A pass after a compute pass is
// not rewired, so its slot-1 binding must also carry a resource.
func (pi *ProgramInstructions) MissingInput() int {
	for i := 1; i < len(pi.Passes); i++ {
		b, ok := pi.Passes[i].Binding(InputSlot)
		if !ok || !b.Kind.TextureShaped() {
			return i
		}
		if pi.Passes[i-1].Kind == PassCompute && b.Resource == nil {
			return i
		}
	}
	return -1
}

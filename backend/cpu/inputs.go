package cpu

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

// Sampler is a CPU sampler. Addressing is always clamp-to-edge.
type Sampler struct {
	Filter backend.Filter
}

// Inputs resolves the bindings of one pass for a kernel.
type Inputs struct {
	dev      *Device
	size     stylize.FrameSize
	bindings []stylize.Binding
	filter   backend.Filter
}

var _ backend.Inputs = (*Inputs)(nil)

func newInputs(d *Device, size stylize.FrameSize, bindings []stylize.Binding) *Inputs {
	in := &Inputs{dev: d, size: size, bindings: bindings}
	for _, b := range bindings {
		if s, ok := b.Resource.(*Sampler); ok && b.Kind == stylize.BindingSampler {
			in.filter = s.Filter
			break
		}
	}
	if !size.Valid() {
		for _, b := range bindings {
			if s, ok := b.Resource.(*Surface); ok && b.Kind.TextureShaped() {
				in.size = s.size
				break
			}
		}
	}
	return in
}

// Size implements backend.Inputs. For compute passes it is the size of the
// first bound texture.
func (in *Inputs) Size() stylize.FrameSize { return in.size }

func (in *Inputs) lookup(slot uint32) (stylize.Binding, error) {
	for _, b := range in.bindings {
		if b.Slot == slot {
			return b, nil
		}
	}
	return stylize.Binding{}, fmt.Errorf("cpu: no binding at slot %d", slot)
}

func (in *Inputs) surface(slot uint32) (*Surface, stylize.BindingKind, error) {
	b, err := in.lookup(slot)
	if err != nil {
		return nil, 0, err
	}
	if !b.Kind.TextureShaped() {
		return nil, 0, fmt.Errorf("cpu: slot %d is a %s binding", slot, b.Kind)
	}
	s, ok := b.Resource.(stylize.Surface)
	if !ok {
		return nil, 0, fmt.Errorf("cpu: slot %d holds %T", slot, b.Resource)
	}
	cs, err := in.dev.own(s)
	if err != nil {
		return nil, 0, fmt.Errorf("cpu: slot %d: %w", slot, err)
	}
	return cs, b.Kind, nil
}

// Texture implements backend.Inputs.
func (in *Inputs) Texture(slot uint32) (backend.Texture, error) {
	s, _, err := in.surface(slot)
	if err != nil {
		return nil, err
	}
	return &texture{img: s.img, size: s.size, filter: in.filter}, nil
}

// Uniforms implements backend.Inputs.
func (in *Inputs) Uniforms(slot uint32) ([]float32, error) {
	b, err := in.lookup(slot)
	if err != nil {
		return nil, err
	}
	u, ok := b.Resource.([]float32)
	if !ok || b.Kind != stylize.BindingBuffer {
		return nil, fmt.Errorf("cpu: slot %d holds %s %T, want buffer []float32", slot, b.Kind, b.Resource)
	}
	return u, nil
}

// Storage implements backend.Inputs.
func (in *Inputs) Storage(slot uint32) (*image.NRGBA, error) {
	s, kind, err := in.surface(slot)
	if err != nil {
		return nil, err
	}
	if kind != stylize.BindingStorageTexture {
		return nil, fmt.Errorf("cpu: slot %d is a %s binding, want storage-texture", slot, kind)
	}
	return s.img, nil
}

// texture samples an NRGBA image with clamp-to-edge addressing.
type texture struct {
	img    *image.NRGBA
	size   stylize.FrameSize
	filter backend.Filter
}

func (t *texture) Size() stylize.FrameSize { return t.size }
func (t *texture) Image() *image.NRGBA     { return t.img }

func (t *texture) Load(x, y int) color.NRGBA {
	w, h := int(t.size.Width), int(t.size.Height)
	x = min(max(x, 0), w-1)
	y = min(max(y, 0), h-1)
	i := y*t.img.Stride + x*4
	p := t.img.Pix[i : i+4 : i+4]
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

func (t *texture) Sample(u, v float32) color.NRGBA {
	fx := u * float32(t.size.Width)
	fy := v * float32(t.size.Height)
	if t.filter == backend.FilterNearest {
		return t.Load(int(math.Floor(float64(fx))), int(math.Floor(float64(fy))))
	}

	// Bilinear between the four nearest texel centers.
	fx -= 0.5
	fy -= 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	c00, c10 := t.Load(x0, y0), t.Load(x0+1, y0)
	c01, c11 := t.Load(x0, y0+1), t.Load(x0+1, y0+1)
	mix := func(a, b, c, d uint8) uint8 {
		top := float32(a)*(1-tx) + float32(b)*tx
		bot := float32(c)*(1-tx) + float32(d)*tx
		return uint8(top*(1-ty) + bot*ty + 0.5)
	}
	return color.NRGBA{
		R: mix(c00.R, c10.R, c01.R, c11.R),
		G: mix(c00.G, c10.G, c01.G, c11.G),
		B: mix(c00.B, c10.B, c01.B, c11.B),
		A: mix(c00.A, c10.A, c01.A, c11.A),
	}
}

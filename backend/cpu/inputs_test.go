package cpu

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

func stripe() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{255, 255, 255, 255})
	return img
}

func TestTextureSample(t *testing.T) {
	size := stylize.FrameSize{Width: 2, Height: 1}
	tests := []struct {
		name   string
		filter backend.Filter
		u      float32
		want   uint8
	}{
		{"nearest left", backend.FilterNearest, 0.25, 0},
		{"nearest right", backend.FilterNearest, 0.75, 255},
		{"nearest past edge", backend.FilterNearest, 1.5, 255},
		{"linear left center", backend.FilterLinear, 0.25, 0},
		{"linear midpoint", backend.FilterLinear, 0.5, 128},
		{"linear clamps", backend.FilterLinear, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex := &texture{img: stripe(), size: size, filter: tt.filter}
			if got := tex.Sample(tt.u, 0.5).R; got != tt.want {
				t.Errorf("Sample(%v) = %d, want %d", tt.u, got, tt.want)
			}
		})
	}
}

func TestTextureLoadClamps(t *testing.T) {
	tex := &texture{img: stripe(), size: stylize.FrameSize{Width: 2, Height: 1}}
	if got := tex.Load(-3, 9).R; got != 0 {
		t.Errorf("Load(-3, 9) = %d, want 0", got)
	}
	if got := tex.Load(5, -1).R; got != 255 {
		t.Errorf("Load(5, -1) = %d, want 255", got)
	}
}

func TestInputsResolveBindings(t *testing.T) {
	d := NewDevice()
	s, err := d.newSurface(stylize.SurfaceDescriptor{Size: stylize.FrameSize{Width: 4, Height: 3}, Format: Format})
	if err != nil {
		t.Fatal(err)
	}
	in := newInputs(d, stylize.FrameSize{}, []stylize.Binding{
		{Slot: 0, Kind: stylize.BindingSampler, Resource: &Sampler{Filter: backend.FilterLinear}},
		{Slot: 1, Kind: stylize.BindingTexture, Resource: s},
		{Slot: 2, Kind: stylize.BindingBuffer, Resource: []float32{1, 2}},
	})

	if in.Size() != s.Size() {
		t.Errorf("size = %v, want derived %v", in.Size(), s.Size())
	}
	if in.filter != backend.FilterLinear {
		t.Errorf("filter = %v, want linear", in.filter)
	}
	if u, err := in.Uniforms(2); err != nil || len(u) != 2 {
		t.Errorf("Uniforms(2) = %v, %v", u, err)
	}
	if _, err := in.Uniforms(1); err == nil {
		t.Error("Uniforms(1) should reject a texture binding")
	}
	if _, err := in.Storage(1); err == nil {
		t.Error("Storage(1) should reject a sampled texture")
	}
	if _, err := in.Texture(5); err == nil {
		t.Error("Texture(5) should fail for an unbound slot")
	}
}

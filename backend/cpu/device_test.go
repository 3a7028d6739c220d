package cpu_test

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/backend/cpu"
	"github.com/gogpu/stylize/internal/filter"
)

var frame = stylize.FrameSize{Width: 32, Height: 24}

func solid(size stylize.FrameSize, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(size.Width), int(size.Height)))
	for y := range int(size.Height) {
		for x := range int(size.Width) {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func newBackend(t *testing.T, opts ...cpu.Option) *cpu.Backend {
	t.Helper()
	b := cpu.NewBackend(opts...)
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func upload(t *testing.T, b *cpu.Backend, img image.Image) stylize.Surface {
	t.Helper()
	s, err := b.Upload("source", img)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return s
}

func target(t *testing.T, b *cpu.Backend, size stylize.FrameSize) *cpu.Surface {
	t.Helper()
	s, err := b.Device().CreateSurface(stylize.SurfaceDescriptor{
		Label:  "terminal",
		Size:   size,
		Format: cpu.Format,
		Usage:  stylize.IntermediateUsage,
	})
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	return s.(*cpu.Surface)
}

// matrixPass applies a color matrix to the texture at slot 1.
func matrixPass(t *testing.T, b *cpu.Backend, label string, m filter.ColorMatrix, input stylize.Surface) stylize.PassDescriptor {
	t.Helper()
	pipe, err := b.NewRenderPipeline(&backend.Shader{
		Label: label,
		Render: func(in backend.Inputs) (backend.FragmentFunc, error) {
			tex, err := in.Texture(stylize.InputSlot)
			if err != nil {
				return nil, err
			}
			return func(x, y int) color.NRGBA { return m.Apply(tex.Load(x, y)) }, nil
		},
	})
	if err != nil {
		t.Fatalf("NewRenderPipeline: %v", err)
	}
	sampler, _ := b.NewSampler(backend.FilterNearest)
	return stylize.PassDescriptor{
		Label:    label,
		Kind:     stylize.PassRender,
		Pipeline: pipe,
		Bindings: []stylize.Binding{
			{Slot: 0, Kind: stylize.BindingSampler, Resource: sampler},
			{Slot: 1, Kind: stylize.BindingTexture, Resource: input},
		},
	}
}

func thresholdPass(t *testing.T, b *cpu.Backend, cutoff float32) stylize.PassDescriptor {
	t.Helper()
	pipe, err := b.NewRenderPipeline(&backend.Shader{
		Label: "threshold",
		Render: func(in backend.Inputs) (backend.FragmentFunc, error) {
			tex, err := in.Texture(stylize.InputSlot)
			if err != nil {
				return nil, err
			}
			u, err := in.Uniforms(2)
			if err != nil {
				return nil, err
			}
			return func(x, y int) color.NRGBA {
				c := tex.Load(x, y)
				if (float32(c.R)+float32(c.G)+float32(c.B))/3 < u[0] {
					return color.NRGBA{255, 255, 255, 255}
				}
				return color.NRGBA{0, 0, 0, 255}
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewRenderPipeline: %v", err)
	}
	return stylize.PassDescriptor{
		Label:    "threshold",
		Kind:     stylize.PassRender,
		Pipeline: pipe,
		Bindings: []stylize.Binding{
			{Slot: 1, Kind: stylize.BindingTexture},
			{Slot: 2, Kind: stylize.BindingBuffer, Resource: []float32{cutoff}},
		},
	}
}

func program(passes ...stylize.PassDescriptor) *stylize.ProgramInstructions {
	return &stylize.ProgramInstructions{Label: "test", Passes: passes}
}

func assertEvery(t *testing.T, img *image.NRGBA, want color.NRGBA) {
	t.Helper()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if got := img.NRGBAAt(x, y); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestExecuteRunsPassesInOrder(t *testing.T) {
	b := newBackend(t)
	src := upload(t, b, solid(frame, color.NRGBA{200, 100, 50, 255}))

	tests := []struct {
		name   string
		chain  []filter.ColorMatrix
		expect color.NRGBA
	}{
		{"invert scale invert", []filter.ColorMatrix{filter.Invert(), filter.Scale(0.5), filter.Invert()}, color.NRGBA{227, 177, 152, 255}},
		{"scale invert invert", []filter.ColorMatrix{filter.Scale(0.5), filter.Invert(), filter.Invert()}, color.NRGBA{100, 50, 25, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passes := make([]stylize.PassDescriptor, len(tt.chain))
			for i, m := range tt.chain {
				passes[i] = matrixPass(t, b, tt.name, m, src)
			}
			term := target(t, b, frame)
			exec := stylize.NewExecutor(b.Device())
			if err := exec.Execute(program(passes...), frame, term); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			assertEvery(t, term.Image(), tt.expect)
		})
	}
}

func TestSinglePassWritesTerminal(t *testing.T) {
	b := newBackend(t)
	img := solid(frame, color.NRGBA{10, 20, 30, 255})
	img.SetNRGBA(3, 4, color.NRGBA{250, 0, 0, 255})
	src := upload(t, b, img)
	term := target(t, b, frame)

	before := b.CPUDevice().Stats().Surfaces
	exec := stylize.NewExecutor(b.Device())
	if err := exec.Execute(program(matrixPass(t, b, "copy", filter.Identity(), src)), frame, term); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := term.Image()
	for i := range img.Pix {
		if got.Pix[i] != img.Pix[i] {
			t.Fatalf("byte %d = %d, want %d", i, got.Pix[i], img.Pix[i])
		}
	}
	if n := b.CPUDevice().Stats().Surfaces - before; n != 0 {
		t.Errorf("single pass allocated %d surfaces, want 0", n)
	}
}

func TestGrayscaleThenThreshold(t *testing.T) {
	b := newBackend(t)
	src := upload(t, b, solid(frame, color.NRGBA{200, 50, 50, 255}))

	// The grayscale pass alone yields 100.
	gray := target(t, b, frame)
	exec := stylize.NewExecutor(b.Device())
	if err := exec.Execute(program(matrixPass(t, b, "gray", filter.Grayscale(), src)), frame, gray); err != nil {
		t.Fatalf("Execute gray: %v", err)
	}
	assertEvery(t, gray.Image(), color.NRGBA{100, 100, 100, 255})

	term := target(t, b, frame)
	prog := program(matrixPass(t, b, "gray", filter.Grayscale(), src), thresholdPass(t, b, 128))
	if err := exec.Execute(prog, frame, term); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertEvery(t, term.Image(), color.NRGBA{255, 255, 255, 255})

	st := exec.Surfaces().Stats()
	if st.Allocated != 1 || st.Live != 0 {
		t.Errorf("surface stats = %v, want 1 allocated and none live", st)
	}
}

func TestPixelBudgetAbortsRender(t *testing.T) {
	pixels := int(frame.Pixels())
	b := newBackend(t, cpu.WithPixelBudget(2*pixels))
	src := upload(t, b, solid(frame, color.NRGBA{1, 2, 3, 255}))
	term := target(t, b, frame)

	exec := stylize.NewExecutor(b.Device())
	prog := program(
		matrixPass(t, b, "a", filter.Identity(), src),
		matrixPass(t, b, "b", filter.Invert(), src),
	)
	err := exec.Execute(prog, frame, term)
	if !errors.Is(err, stylize.ErrSurfaceAllocation) || !errors.Is(err, cpu.ErrOutOfMemory) {
		t.Fatalf("err = %v, want ErrSurfaceAllocation wrapping ErrOutOfMemory", err)
	}
	if live := b.CPUDevice().Stats().LivePixels; live != 2*pixels {
		t.Errorf("live pixels = %d, want %d", live, 2*pixels)
	}
}

func TestComputeFeedsFollowingRender(t *testing.T) {
	b := newBackend(t)
	size := stylize.FrameSize{Width: 16, Height: 8}
	const tile = 8

	img := solid(size, color.NRGBA{255, 0, 0, 255})
	for y := range 8 {
		for x := 8; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{0, 0, 255, 255})
		}
	}
	src := upload(t, b, img)
	storage, err := b.NewStorage("cells", stylize.FrameSize{Width: 2, Height: 1})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	downscale, err := b.NewComputePipeline(&backend.Shader{
		Label: "downscale",
		Compute: func(in backend.Inputs, groups [3]uint32) error {
			out, err := in.Storage(0)
			if err != nil {
				return err
			}
			tex, err := in.Texture(stylize.InputSlot)
			if err != nil {
				return err
			}
			for gy := range int(groups[1]) {
				for gx := range int(groups[0]) {
					out.SetNRGBA(gx, gy, tex.Load(gx*tile+tile/2, gy*tile+tile/2))
				}
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewComputePipeline: %v", err)
	}
	upscale, err := b.NewRenderPipeline(&backend.Shader{
		Label: "upscale",
		Render: func(in backend.Inputs) (backend.FragmentFunc, error) {
			tex, err := in.Texture(stylize.InputSlot)
			if err != nil {
				return nil, err
			}
			sz := in.Size()
			return func(x, y int) color.NRGBA {
				return tex.Sample((float32(x)+0.5)/float32(sz.Width), (float32(y)+0.5)/float32(sz.Height))
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewRenderPipeline: %v", err)
	}
	nearest, _ := b.NewSampler(backend.FilterNearest)

	prog := program(
		matrixPass(t, b, "copy", filter.Identity(), src),
		stylize.PassDescriptor{
			Label: "downscale", Kind: stylize.PassCompute, Pipeline: downscale, WorkgroupTile: tile,
			Bindings: []stylize.Binding{
				{Slot: 0, Kind: stylize.BindingStorageTexture, Resource: storage},
				{Slot: 1, Kind: stylize.BindingTexture},
			},
		},
		stylize.PassDescriptor{
			Label: "upscale", Kind: stylize.PassRender, Pipeline: upscale,
			Bindings: []stylize.Binding{
				{Slot: 0, Kind: stylize.BindingSampler, Resource: nearest},
				{Slot: 1, Kind: stylize.BindingTexture, Resource: storage},
			},
		},
	)

	term := target(t, b, size)
	before := b.CPUDevice().Stats()
	exec := stylize.NewExecutor(b.Device())
	if err := exec.Execute(prog, size, term); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	after := b.CPUDevice().Stats()

	if got := term.Image().NRGBAAt(2, 3); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("left = %v, want red", got)
	}
	if got := term.Image().NRGBAAt(13, 5); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("right = %v, want blue", got)
	}
	if n := after.Batches - before.Batches; n != 2 {
		t.Errorf("batches = %d, want 2", n)
	}
	if n := after.ComputePasses - before.ComputePasses; n != 1 {
		t.Errorf("compute passes = %d, want 1", n)
	}
}

func TestBatchMisuse(t *testing.T) {
	b := newBackend(t)
	dev := b.Device()
	term := target(t, b, frame)

	batch, err := dev.BeginBatch("once")
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if err := batch.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := batch.Submit(); !errors.Is(err, cpu.ErrBatchClosed) {
		t.Errorf("second Submit = %v, want ErrBatchClosed", err)
	}
	if _, err := batch.BeginRenderPass("late", term); !errors.Is(err, cpu.ErrBatchClosed) {
		t.Errorf("BeginRenderPass after submit = %v, want ErrBatchClosed", err)
	}

	batch, _ = dev.BeginBatch("types")
	defer batch.Discard()
	enc, err := batch.BeginRenderPass("pass", term)
	if err != nil {
		t.Fatalf("BeginRenderPass: %v", err)
	}
	if err := enc.SetPipeline("not a pipeline"); !errors.Is(err, cpu.ErrPipelineType) {
		t.Errorf("SetPipeline = %v, want ErrPipelineType", err)
	}

	gone := target(t, b, frame)
	dev.DestroySurface(gone)
	dev.DestroySurface(gone)
	err = enc.SetBindings([]stylize.Binding{{Slot: 1, Kind: stylize.BindingTexture, Resource: gone}})
	if !errors.Is(err, cpu.ErrSurfaceDestroyed) {
		t.Errorf("SetBindings = %v, want ErrSurfaceDestroyed", err)
	}
}

func TestBackendRequiresKernel(t *testing.T) {
	b := newBackend(t)
	if _, err := b.NewRenderPipeline(&backend.Shader{Label: "wgsl only", WGSL: "..."}); !errors.Is(err, backend.ErrNoKernel) {
		t.Errorf("NewRenderPipeline = %v, want ErrNoKernel", err)
	}
	if _, err := b.NewComputePipeline(&backend.Shader{Label: "wgsl only"}); !errors.Is(err, backend.ErrNoKernel) {
		t.Errorf("NewComputePipeline = %v, want ErrNoKernel", err)
	}
}

func TestBackendRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendCPU) {
		t.Fatal("cpu backend should be registered on import")
	}
	b, err := backend.Init(backend.BackendCPU)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer b.Close()
	if b.Name() != "cpu" || b.Device() == nil {
		t.Errorf("backend = %q device %v", b.Name(), b.Device())
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	b := newBackend(t)
	img := image.NewRGBA(image.Rect(5, 5, 9, 7))
	img.Set(5, 5, color.RGBA{9, 8, 7, 255})

	s := upload(t, b, img)
	if s.Size() != (stylize.FrameSize{Width: 4, Height: 2}) {
		t.Fatalf("size = %v, want 4x2", s.Size())
	}
	out, err := b.Download(s)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{9, 8, 7, 255}) {
		t.Errorf("origin = %v, want {9 8 7 255}", got)
	}
}

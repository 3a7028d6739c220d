package wgpu

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

// blitWGSL samples the input texture over a six-vertex quad.
const blitWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@group(0) @binding(0) var input_sampler: sampler;
@group(0) @binding(1) var input_texture: texture_2d<f32>;

@vertex
fn vs_main(@builtin(vertex_index) vertex_index: u32) -> VertexOutput {
    let corner = select(vertex_index, vertex_index - 2u, vertex_index > 2u);
    let x = f32(corner & 1u);
    let y = f32(corner >> 1u);
    var result: VertexOutput;
    result.position = vec4<f32>(x * 2.0 - 1.0, 1.0 - y * 2.0, 0.0, 1.0);
    result.uv = vec2<f32>(x, y);
    return result;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(input_texture, input_sampler, in.uv);
}
`

// fillWGSL writes a constant color into a storage texture.
const fillWGSL = `
@group(0) @binding(0) var cells: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(8, 8, 1)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
    textureStore(cells, vec2<i32>(id.xy), vec4<f32>(1.0, 0.0, 0.0, 1.0));
}
`

func blitShader() *backend.Shader {
	return &backend.Shader{
		Label: "blit",
		WGSL:  blitWGSL,
		Layout: []backend.Slot{
			{Binding: 0, Kind: stylize.BindingSampler},
			{Binding: 1, Kind: stylize.BindingTexture},
		},
	}
}

func fillShader() *backend.Shader {
	return &backend.Shader{
		Label:  "fill",
		WGSL:   fillWGSL,
		Layout: []backend.Slot{{Binding: 0, Kind: stylize.BindingStorageTexture}},
	}
}

func openNoop(t *testing.T) *Device {
	t.Helper()
	d, err := OpenBackend(gputypes.BackendEmpty)
	if err != nil {
		t.Fatalf("OpenBackend(noop): %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func frameSurface(t *testing.T, d *Device, size stylize.FrameSize) stylize.Surface {
	t.Helper()
	s, err := d.CreateSurface(stylize.SurfaceDescriptor{Label: "terminal", Size: size, Format: Format})
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	return s
}

func TestCompileWGSL(t *testing.T) {
	for _, src := range []string{blitWGSL, fillWGSL} {
		words, err := CompileWGSL(src)
		if err != nil {
			t.Fatalf("CompileWGSL: %v", err)
		}
		if len(words) < 5 || words[0] != 0x07230203 {
			t.Errorf("not SPIR-V: %d words, magic %#x", len(words), words[0])
		}
	}
	if _, err := CompileWGSL("fn broken( {"); err == nil {
		t.Error("CompileWGSL accepted invalid source")
	}
}

func TestOpenBackend(t *testing.T) {
	d := openNoop(t)
	if d.Name() != "Noop Adapter" {
		t.Errorf("Name() = %q", d.Name())
	}
	if _, err := OpenBackend(gputypes.BackendDX12); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("OpenBackend(dx12) = %v, want ErrNoAdapter", err)
	}
}

// hostProvider is a gpucontext.DeviceProvider exposing HAL objects.
type hostProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p hostProvider) Device() gpucontext.Device             { return p.device }
func (p hostProvider) Queue() gpucontext.Queue               { return p.queue }
func (p hostProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (p hostProvider) Adapter() gpucontext.Adapter           { return nil }
func (p hostProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "host", Type: gpucontext.AdapterTypeSoftware}
}
func (p hostProvider) HalDevice() any { return p.device }
func (p hostProvider) HalQueue() any  { return p.queue }

// bareProvider does not expose HAL objects.
type bareProvider struct{ hostProvider }

func (bareProvider) HalDevice() {}

func openHost(t *testing.T) hostProvider {
	t.Helper()
	inst, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatal(err)
	}
	open, err := inst.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	return hostProvider{device: open.Device, queue: open.Queue}
}

func TestNewDeviceFromProvider(t *testing.T) {
	host := openHost(t)
	d, err := NewDevice(host)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	defer d.Close()
	if d.Name() != "host" {
		t.Errorf("Name() = %q, want host", d.Name())
	}
	hd, hq := d.HAL()
	if hd != host.device || hq != host.queue {
		t.Error("HAL() should return the provider's device and queue")
	}

	if _, err := NewDevice(bareProvider{host}); !errors.Is(err, ErrNoHAL) {
		t.Errorf("NewDevice(bare) = %v, want ErrNoHAL", err)
	}
	if _, err := NewDevice(hostProvider{}); !errors.Is(err, ErrNoHAL) {
		t.Errorf("NewDevice(nil device) = %v, want ErrNoHAL", err)
	}
}

func TestExecuteComputeThenRender(t *testing.T) {
	d := openNoop(t)
	b := NewBackendWithDevice(d)
	size := stylize.FrameSize{Width: 64, Height: 48}

	fill, err := b.NewComputePipeline(fillShader())
	if err != nil {
		t.Fatalf("NewComputePipeline: %v", err)
	}
	blit, err := b.NewRenderPipeline(blitShader())
	if err != nil {
		t.Fatalf("NewRenderPipeline: %v", err)
	}
	sampler, err := b.NewSampler(backend.FilterLinear)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	src, err := b.Upload("source", image.NewNRGBA(image.Rect(0, 0, 64, 48)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	storage, err := b.NewStorage("cells", size)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	prog := &stylize.ProgramInstructions{Label: "gpu", Passes: []stylize.PassDescriptor{
		{Label: "copy", Kind: stylize.PassRender, Pipeline: blit, Bindings: []stylize.Binding{
			{Slot: 0, Kind: stylize.BindingSampler, Resource: sampler},
			{Slot: 1, Kind: stylize.BindingTexture, Resource: src},
		}},
		{Label: "fill", Kind: stylize.PassCompute, Pipeline: fill, WorkgroupTile: 8, Bindings: []stylize.Binding{
			{Slot: 0, Kind: stylize.BindingStorageTexture, Resource: storage},
			{Slot: 1, Kind: stylize.BindingTexture},
		}},
		{Label: "present", Kind: stylize.PassRender, Pipeline: blit, Bindings: []stylize.Binding{
			{Slot: 0, Kind: stylize.BindingSampler, Resource: sampler},
			{Slot: 1, Kind: stylize.BindingTexture, Resource: storage},
		}},
	}}

	exec := stylize.NewExecutor(d)
	if err := exec.Execute(prog, size, frameSurface(t, d, size)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if st := d.PipelineStats(); st.Compiled != 2 || st.Cached != 2 {
		t.Errorf("pipeline stats = %+v, want 2 compiled", st)
	}
	if _, err := b.NewRenderPipeline(blitShader()); err != nil {
		t.Fatal(err)
	}
	if st := d.PipelineStats(); st.Hits != 1 {
		t.Errorf("hits = %d, want 1", st.Hits)
	}

	if d.Busy() {
		t.Error("noop device reported busy after submit")
	}
	if n := d.Pending(); n != 0 {
		t.Errorf("pending = %d, want 0 after completion", n)
	}
	if st := exec.Surfaces().Stats(); st.Live != 0 || st.Allocated != 1 {
		t.Errorf("surface stats = %v", st)
	}
}

func TestMissingBinding(t *testing.T) {
	d := openNoop(t)
	p, err := d.RenderPipeline(blitShader())
	if err != nil {
		t.Fatal(err)
	}
	size := stylize.FrameSize{Width: 4, Height: 4}
	prog := &stylize.ProgramInstructions{Label: "bad", Passes: []stylize.PassDescriptor{
		{Label: "blit", Kind: stylize.PassRender, Pipeline: p, Bindings: []stylize.Binding{
			{Slot: 1, Kind: stylize.BindingTexture, Resource: frameSurface(t, d, size)},
		}},
	}}
	err = stylize.NewExecutor(d).Execute(prog, size, frameSurface(t, d, size))
	if !errors.Is(err, ErrMissingBinding) {
		t.Errorf("Execute = %v, want ErrMissingBinding", err)
	}
}

func TestPipelineKindMismatch(t *testing.T) {
	d := openNoop(t)
	fill, err := d.ComputePipeline(fillShader())
	if err != nil {
		t.Fatal(err)
	}
	batch, err := d.BeginBatch("mismatch")
	if err != nil {
		t.Fatal(err)
	}
	defer batch.Discard()
	enc, err := batch.BeginRenderPass("pass", frameSurface(t, d, stylize.FrameSize{Width: 2, Height: 2}))
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.SetPipeline(fill); !errors.Is(err, ErrPipelineType) {
		t.Errorf("SetPipeline(compute) = %v, want ErrPipelineType", err)
	}
	if err := enc.SetPipeline("nope"); !errors.Is(err, ErrPipelineType) {
		t.Errorf("SetPipeline(string) = %v, want ErrPipelineType", err)
	}
}

func TestShaderWithoutWGSL(t *testing.T) {
	d := openNoop(t)
	if _, err := d.RenderPipeline(&backend.Shader{Label: "cpu only"}); !errors.Is(err, backend.ErrNoKernel) {
		t.Errorf("RenderPipeline = %v, want ErrNoKernel", err)
	}
}

func TestUniformPadding(t *testing.T) {
	d := openNoop(t)
	cb, err := d.BeginBatch("uniforms")
	if err != nil {
		t.Fatal(err)
	}
	b := cb.(*batch)
	defer b.Discard()

	tests := []struct {
		n    int
		want uint64
	}{
		{0, 16},
		{1, 16},
		{4, 16},
		{5, 32},
		{9, 48},
	}
	for _, tt := range tests {
		_, size, err := b.uniforms(make([]float32, tt.n))
		if err != nil {
			t.Fatalf("uniforms(%d): %v", tt.n, err)
		}
		if size != tt.want {
			t.Errorf("uniforms(%d) size = %d, want %d", tt.n, size, tt.want)
		}
	}
}

func TestDownloadStripsRowPadding(t *testing.T) {
	d := openNoop(t)
	img := image.NewNRGBA(image.Rect(0, 0, 10, 3))
	img.SetNRGBA(1, 1, color.NRGBA{1, 2, 3, 4})
	s, err := d.Upload("odd width", img)
	if err != nil {
		t.Fatal(err)
	}
	out, err := d.Download(s)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if out.Rect != image.Rect(0, 0, 10, 3) || len(out.Pix) != 10*3*4 {
		t.Errorf("download = %v with %d bytes", out.Rect, len(out.Pix))
	}
}

func TestDestroySurfaceDeferred(t *testing.T) {
	d := openNoop(t)
	s := frameSurface(t, d, stylize.FrameSize{Width: 8, Height: 8})
	d.DestroySurface(s)
	d.DestroySurface(s)
	if n := d.Pending(); n != 0 {
		t.Errorf("pending = %d, want 0 on an idle queue", n)
	}
	batch, _ := d.BeginBatch("late")
	defer batch.Discard()
	if _, err := batch.BeginRenderPass("pass", s); !errors.Is(err, ErrSurfaceDestroyed) {
		t.Errorf("BeginRenderPass(destroyed) = %v, want ErrSurfaceDestroyed", err)
	}
}

func TestDeviceLostAndClose(t *testing.T) {
	d, err := OpenBackend(gputypes.BackendEmpty)
	if err != nil {
		t.Fatal(err)
	}
	err = d.check(hal.ErrDeviceLost)
	if !errors.Is(err, stylize.ErrDeviceLost) || !errors.Is(err, hal.ErrDeviceLost) {
		t.Errorf("check = %v, want both loss errors", err)
	}
	if !d.Lost() {
		t.Error("Lost() = false after device loss")
	}
	if _, err := d.BeginBatch("after loss"); !errors.Is(err, stylize.ErrDeviceLost) {
		t.Errorf("BeginBatch = %v, want ErrDeviceLost", err)
	}

	d.Close()
	d.Close()
	if _, err := d.CreateSurface(stylize.SurfaceDescriptor{Size: stylize.FrameSize{Width: 1, Height: 1}}); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateSurface after Close = %v, want ErrClosed", err)
	}
}

func TestBackendBeforeInit(t *testing.T) {
	b := NewBackend()
	if b.Device() != nil {
		t.Error("Device() before Init should be nil")
	}
	if _, err := b.NewRenderPipeline(blitShader()); !errors.Is(err, backend.ErrNotInitialized) {
		t.Errorf("NewRenderPipeline = %v, want ErrNotInitialized", err)
	}
	if !backend.IsRegistered(backend.BackendWGPU) {
		t.Error("wgpu backend should be registered on import")
	}
}

func TestBackendWithProvider(t *testing.T) {
	b := NewBackendWithProvider(openHost(t))
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer b.Close()
	if b.GPUDevice() == nil || b.Format() != Format {
		t.Errorf("device %v format %v", b.GPUDevice(), b.Format())
	}
}

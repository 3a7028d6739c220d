package backend

import (
	"errors"
	"image"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stylize"
)

// stubBackend is a RenderBackend whose Init result is configurable.
type stubBackend struct {
	name    string
	initErr error
	inited  bool
}

func (s *stubBackend) Name() string { return s.name }
func (s *stubBackend) Init() error {
	if s.initErr != nil {
		return s.initErr
	}
	s.inited = true
	return nil
}
func (s *stubBackend) Close()                         {}
func (s *stubBackend) Device() stylize.Device         { return nil }
func (s *stubBackend) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }
func (s *stubBackend) NewRenderPipeline(*Shader) (any, error) {
	return nil, ErrNoKernel
}
func (s *stubBackend) NewComputePipeline(*Shader) (any, error) {
	return nil, ErrNoKernel
}
func (s *stubBackend) NewSampler(Filter) (any, error) { return nil, nil }
func (s *stubBackend) NewStorage(string, stylize.FrameSize) (stylize.Surface, error) {
	return nil, ErrNotInitialized
}
func (s *stubBackend) Upload(string, image.Image) (stylize.Surface, error) {
	return nil, ErrNotInitialized
}
func (s *stubBackend) Download(stylize.Surface) (*image.NRGBA, error) {
	return nil, ErrNotInitialized
}

func register(t *testing.T, name string, initErr error) {
	t.Helper()
	Register(name, func() RenderBackend { return &stubBackend{name: name, initErr: initErr} })
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistry(t *testing.T) {
	register(t, "stub-a", nil)
	register(t, "stub-b", nil)

	if !IsRegistered("stub-a") {
		t.Fatal("stub-a should be registered")
	}
	if IsRegistered("missing") {
		t.Error("missing should not be registered")
	}
	names := Available()
	if !slices.Contains(names, "stub-a") || !slices.Contains(names, "stub-b") {
		t.Errorf("Available() = %v", names)
	}
	if !slices.IsSorted(names) {
		t.Errorf("Available() = %v, want sorted", names)
	}

	if b := Get("stub-b"); b == nil || b.Name() != "stub-b" {
		t.Errorf("Get(stub-b) = %v", b)
	}
	if b := Get("missing"); b != nil {
		t.Errorf("Get(missing) = %v, want nil", b)
	}

	Unregister("stub-a")
	if IsRegistered("stub-a") {
		t.Error("stub-a should be gone after Unregister")
	}
}

func TestInit(t *testing.T) {
	broken := errors.New("no adapter")
	register(t, "stub-ok", nil)
	register(t, "stub-broken", broken)

	b, err := Init("stub-ok")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !b.(*stubBackend).inited {
		t.Error("Init did not initialize the backend")
	}

	if _, err := Init("stub-broken"); !errors.Is(err, broken) {
		t.Errorf("Init(stub-broken) = %v, want %v", err, broken)
	}
	if _, err := Init("missing"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Init(missing) = %v, want ErrBackendNotAvailable", err)
	}
}

func TestInitDefaultFallsBack(t *testing.T) {
	for _, name := range []string{BackendWGPU, BackendCPU} {
		if IsRegistered(name) {
			t.Skipf("%s registered by another test binary", name)
		}
	}
	register(t, BackendWGPU, errors.New("no gpu"))
	register(t, BackendCPU, nil)

	b, err := InitDefault()
	if err != nil {
		t.Fatalf("InitDefault: %v", err)
	}
	if b.Name() != BackendCPU {
		t.Errorf("InitDefault picked %q, want %q", b.Name(), BackendCPU)
	}
}

func TestShaderValidate(t *testing.T) {
	ok := &Shader{Label: "ok", Layout: []Slot{
		{Binding: 0, Kind: stylize.BindingSampler},
		{Binding: 1, Kind: stylize.BindingTexture},
		{Binding: 2, Kind: stylize.BindingBuffer},
	}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate(ok) = %v", err)
	}
	dup := &Shader{Label: "dup", Layout: []Slot{
		{Binding: 1, Kind: stylize.BindingTexture},
		{Binding: 1, Kind: stylize.BindingStorageTexture},
	}}
	if err := dup.Validate(); err == nil {
		t.Error("Validate(dup) = nil, want duplicate binding error")
	}
}

func TestShaderEntry(t *testing.T) {
	sh := &Shader{FragmentEntry: "fs_blur"}
	if got := sh.Entry(sh.FragmentEntry, DefaultFragmentEntry); got != "fs_blur" {
		t.Errorf("fragment entry = %q", got)
	}
	if got := sh.Entry(sh.VertexEntry, DefaultVertexEntry); got != DefaultVertexEntry {
		t.Errorf("vertex entry = %q", got)
	}
}

func TestUniform(t *testing.T) {
	u := []float32{0.5, 2}
	tests := []struct {
		i    int
		want float32
	}{
		{0, 0.5},
		{1, 2},
		{2, -1},
	}
	for _, tt := range tests {
		if got := Uniform(u, tt.i, -1); got != tt.want {
			t.Errorf("Uniform(%d) = %v, want %v", tt.i, got, tt.want)
		}
	}
	if got := Uniform(nil, 0, 7); got != 7 {
		t.Errorf("Uniform(nil) = %v, want 7", got)
	}
}

func TestFilterString(t *testing.T) {
	if FilterNearest.String() != "nearest" || FilterLinear.String() != "linear" {
		t.Errorf("filters = %s, %s", FilterNearest, FilterLinear)
	}
}

package wgpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("wgpu: SPIR-V length %d is not a multiple of 4", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

// Pipeline is a compiled render or compute shader with its bind group
// layout. Pipelines are owned by the device's cache.
type Pipeline struct {
	label   string
	compute bool
	slots   []backend.Slot

	module  hal.ShaderModule
	groups  hal.BindGroupLayout
	layout  hal.PipelineLayout
	render  hal.RenderPipeline
	compPSO hal.ComputePipeline
}

// Label returns the shader label.
func (p *Pipeline) Label() string { return p.label }

// Compute reports whether p is a compute pipeline.
func (p *Pipeline) Compute() bool { return p.compute }

func (p *Pipeline) destroy(d hal.Device) {
	if p.render != nil {
		d.DestroyRenderPipeline(p.render)
	}
	if p.compPSO != nil {
		d.DestroyComputePipeline(p.compPSO)
	}
	if p.layout != nil {
		d.DestroyPipelineLayout(p.layout)
	}
	if p.groups != nil {
		d.DestroyBindGroupLayout(p.groups)
	}
	if p.module != nil {
		d.DestroyShaderModule(p.module)
	}
}

// pipelineKey identifies a shader by everything that affects compilation.
type pipelineKey struct {
	compute bool
	source  string
	entries [3]string
	layout  string
}

func keyOf(sh *backend.Shader, compute bool) pipelineKey {
	k := pipelineKey{compute: compute, source: sh.WGSL}
	if compute {
		k.entries[2] = sh.Entry(sh.ComputeEntry, backend.DefaultComputeEntry)
	} else {
		k.entries[0] = sh.Entry(sh.VertexEntry, backend.DefaultVertexEntry)
		k.entries[1] = sh.Entry(sh.FragmentEntry, backend.DefaultFragmentEntry)
	}
	for _, s := range sh.Layout {
		k.layout += fmt.Sprintf("%d:%d;", s.Binding, s.Kind)
	}
	return k
}

// pipelineCache deduplicates pipelines by source, entry points and layout.
type pipelineCache struct {
	dev   *Device
	mu    sync.Mutex
	cache *lru.Cache[pipelineKey, *Pipeline]

	compiled uint64
	hits     uint64
}

func newPipelineCache(d *Device, size int) *pipelineCache {
	if size <= 0 {
		size = DefaultPipelineCacheSize
	}
	c := &pipelineCache{dev: d}
	c.cache, _ = lru.NewWithEvict(size, func(_ pipelineKey, p *Pipeline) {
		p.destroy(d.device)
	})
	return c
}

func (c *pipelineCache) get(sh *backend.Shader, compute bool) (*Pipeline, error) {
	key := keyOf(sh, compute)
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache.Get(key); ok {
		c.hits++
		return p, nil
	}
	p, err := c.dev.buildPipeline(sh, compute)
	if err != nil {
		return nil, err
	}
	c.compiled++
	c.cache.Add(key, p)
	return p, nil
}

func (c *pipelineCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// PipelineStats reports pipeline cache activity.
type PipelineStats struct {
	Compiled uint64
	Hits     uint64
	Cached   int
}

// PipelineStats returns a snapshot of the pipeline cache counters.
func (d *Device) PipelineStats() PipelineStats {
	c := d.pipelines
	c.mu.Lock()
	defer c.mu.Unlock()
	return PipelineStats{Compiled: c.compiled, Hits: c.hits, Cached: c.cache.Len()}
}

// RenderPipeline returns the full-screen render pipeline for sh, compiling
// it on first use.
func (d *Device) RenderPipeline(sh *backend.Shader) (*Pipeline, error) {
	return d.pipeline(sh, false)
}

// ComputePipeline returns the compute pipeline for sh, compiling it on
// first use.
func (d *Device) ComputePipeline(sh *backend.Shader) (*Pipeline, error) {
	return d.pipeline(sh, true)
}

func (d *Device) pipeline(sh *backend.Shader, compute bool) (*Pipeline, error) {
	if sh.WGSL == "" {
		return nil, fmt.Errorf("wgpu: shader %q: %w", sh.Label, backend.ErrNoKernel)
	}
	if err := sh.Validate(); err != nil {
		return nil, err
	}
	if err := d.usable(); err != nil {
		return nil, err
	}
	return d.pipelines.get(sh, compute)
}

func layoutEntry(s backend.Slot, compute bool) gputypes.BindGroupLayoutEntry {
	vis := gputypes.ShaderStageFragment
	if compute {
		vis = gputypes.ShaderStageCompute
	}
	e := gputypes.BindGroupLayoutEntry{Binding: s.Binding, Visibility: vis}
	switch s.Kind {
	case stylize.BindingSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case stylize.BindingTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case stylize.BindingStorageTexture:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        Format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case stylize.BindingBuffer:
		if !compute {
			e.Visibility = gputypes.ShaderStagesVertexFragment
		}
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	}
	return e
}

func (d *Device) buildPipeline(sh *backend.Shader, compute bool) (_ *Pipeline, err error) {
	words, err := CompileWGSL(sh.WGSL)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile %q: %w", sh.Label, err)
	}

	p := &Pipeline{label: sh.Label, compute: compute, slots: append([]backend.Slot(nil), sh.Layout...)}
	defer func() {
		if err != nil {
			p.destroy(d.device)
		}
	}()

	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  sh.Label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: shader module %q: %w", sh.Label, err))
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(sh.Layout))
	for i, s := range sh.Layout {
		entries[i] = layoutEntry(s, compute)
	}
	p.groups, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   sh.Label + " bindings",
		Entries: entries,
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: bind group layout %q: %w", sh.Label, err))
	}
	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            sh.Label + " layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.groups},
	})
	if err != nil {
		return nil, d.check(fmt.Errorf("wgpu: pipeline layout %q: %w", sh.Label, err))
	}

	if compute {
		p.compPSO, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  sh.Label,
			Layout: p.layout,
			Compute: hal.ComputeState{
				Module:     p.module,
				EntryPoint: sh.Entry(sh.ComputeEntry, backend.DefaultComputeEntry),
			},
		})
		if err != nil {
			return nil, d.check(fmt.Errorf("wgpu: compute pipeline %q: %w", sh.Label, err))
		}
	} else {
		p.render, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  sh.Label,
			Layout: p.layout,
			Vertex: hal.VertexState{
				Module:     p.module,
				EntryPoint: sh.Entry(sh.VertexEntry, backend.DefaultVertexEntry),
			},
			Fragment: &hal.FragmentState{
				Module:     p.module,
				EntryPoint: sh.Entry(sh.FragmentEntry, backend.DefaultFragmentEntry),
				Targets: []gputypes.ColorTargetState{{
					Format:    Format,
					WriteMask: gputypes.ColorWriteMaskAll,
				}},
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
		if err != nil {
			return nil, d.check(fmt.Errorf("wgpu: render pipeline %q: %w", sh.Label, err))
		}
	}

	slogger().Debug("wgpu: pipeline compiled", "label", sh.Label, "compute", compute, "spirv_words", len(words))
	return p, nil
}

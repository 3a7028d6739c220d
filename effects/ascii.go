package effects

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/atlas"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/internal/filter"
	"github.com/gogpu/stylize/params"
)

// ASCIICell is the edge of one character cell in pixels. It is both the
// glyph size and the downscale workgroup tile.
const ASCIICell = atlas.DefaultCell

// Slots of the finalize pass beyond the default layout.
const (
	rampSlot  uint32 = 3
	edgesSlot uint32 = 4
)

const asciiDoGWGSL = blurWGSL + `
struct Edges {
	width: f32,
	height: f32,
	sigma1: f32,
	sigma2: f32,
	eps: f32,
	pad0: f32,
	pad1: f32,
	pad2: f32,
};

@group(0) @binding(2) var<uniform> edges: Edges;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let p = vec2<i32>(in.position.xy);
	let g = blurPair(p, edges.sigma1, edges.sigma2);
	let l = luma(textureLoad(srcTexture, p, 0).rgb);
	let e = select(0.0, 1.0, abs(g.x - g.y) > edges.eps);
	return vec4<f32>(l, e, 0.0, 1.0);
}
`

// asciiDoGKernel writes luma to R and a binary difference-of-gaussians
// edge mask to G.
func asciiDoGKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	u := uniformsOf(in)
	if len(u) < 5 {
		return nil, errShortUniforms
	}
	l := filter.Luma(tex.Image())
	g1, g2 := l.Blur(float64(u[2])), l.Blur(float64(u[3]))
	eps := u[4]
	return func(x, y int) color.NRGBA {
		var e uint8
		if abs32(g1.At(x, y)-g2.At(x, y)) > eps {
			e = 255
		}
		return color.NRGBA{R: byte8(l.At(x, y)), G: e, A: 255}
	}, nil
}

const sobelWGSL = `
fn maskAt(p: vec2<i32>, dims: vec2<i32>) -> f32 {
	let q = clamp(p, vec2<i32>(0, 0), dims - vec2<i32>(1, 1));
	return textureLoad(srcTexture, q, 0).g;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let dims = vec2<i32>(textureDimensions(srcTexture));
	let p = vec2<i32>(in.position.xy);
	let tl = maskAt(p + vec2<i32>(-1, -1), dims);
	let t = maskAt(p + vec2<i32>(0, -1), dims);
	let tr = maskAt(p + vec2<i32>(1, -1), dims);
	let l = maskAt(p + vec2<i32>(-1, 0), dims);
	let r = maskAt(p + vec2<i32>(1, 0), dims);
	let bl = maskAt(p + vec2<i32>(-1, 1), dims);
	let b = maskAt(p + vec2<i32>(0, 1), dims);
	let br = maskAt(p + vec2<i32>(1, 1), dims);
	let gx = (tr + 2.0 * r + br) - (tl + 2.0 * l + bl);
	let gy = (bl + 2.0 * b + br) - (tl + 2.0 * t + tr);
	let center = textureLoad(srcTexture, p, 0);
	let angle = atan2(gy, gx) / 6.28318531 + 0.5;
	return vec4<f32>(center.r, angle, min(length(vec2<f32>(gx, gy)), 1.0), 1.0);
}
`

// sobelKernel keeps luma in R and writes the gradient direction of the
// edge mask to G (as angle/2π + 0.5) and its magnitude to B.
func sobelKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	mag, dir := filter.Sobel(channel(tex.Image(), 1))
	return func(x, y int) color.NRGBA {
		c := tex.Load(x, y)
		return color.NRGBA{
			R: c.R,
			G: byte8(dir.At(x, y)/(2*math.Pi) + 0.5),
			B: byte8(mag.At(x, y)),
			A: 255,
		}
	}, nil
}

// channel extracts one channel of img as a plane in 0..1.
func channel(img *image.NRGBA, c int) *filter.Plane {
	b := img.Bounds()
	p := filter.NewPlane(b.Dx(), b.Dy())
	for y := range p.H {
		row := img.Pix[y*img.Stride:]
		for x := range p.W {
			p.Pix[y*p.W+x] = unit(row[x*4+c])
		}
	}
	return p
}

const downscaleWGSL = `
struct Downscale {
	width: f32,
	height: f32,
	minEdges: f32,
	pad: f32,
};

@group(0) @binding(0) var cells: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(1) var srcTexture: texture_2d<f32>;
@group(0) @binding(2) var<uniform> ds: Downscale;

fn bucketOf(encoded: f32) -> i32 {
	var theta = (encoded - 0.5) * 6.28318531;
	if (theta < 0.0) {
		theta = theta + 3.14159265;
	}
	return i32(round(theta / 0.78539816)) % 4;
}

@compute @workgroup_size(1)
fn cs_main(@builtin(workgroup_id) cell: vec3<u32>) {
	let dims = vec2<i32>(textureDimensions(srcTexture));
	let origin = vec2<i32>(cell.xy) * 8;
	var lum = 0.0;
	var count = 0.0;
	var b0 = 0.0;
	var b1 = 0.0;
	var b2 = 0.0;
	var b3 = 0.0;
	for (var y = 0; y < 8; y = y + 1) {
		for (var x = 0; x < 8; x = x + 1) {
			let p = origin + vec2<i32>(x, y);
			if (p.x < dims.x && p.y < dims.y) {
				let s = textureLoad(srcTexture, p, 0);
				lum = lum + s.r;
				count = count + 1.0;
				if (s.b > 0.5) {
					let k = bucketOf(s.g);
					if (k == 0) {
						b0 = b0 + 1.0;
					} else if (k == 1) {
						b1 = b1 + 1.0;
					} else if (k == 2) {
						b2 = b2 + 1.0;
					} else {
						b3 = b3 + 1.0;
					}
				}
			}
		}
	}
	var best = 0;
	var most = b0;
	if (b1 > most) {
		best = 1;
		most = b1;
	}
	if (b2 > most) {
		best = 2;
		most = b2;
	}
	if (b3 > most) {
		best = 3;
		most = b3;
	}
	let edge = select(0.0, 1.0, most >= ds.minEdges);
	let v = vec4<f32>(lum / max(count, 1.0), (f32(best) + 0.5) / 4.0, edge, 1.0);
	textureStore(cells, vec2<i32>(cell.xy), v);
}
`

// bucketOf folds an encoded gradient direction into one of the four edge
// glyphs of atlas.EdgeGlyphs. A horizontal gradient is a vertical edge.
func bucketOf(encoded float32) int {
	theta := (float64(encoded) - 0.5) * 2 * math.Pi
	if theta < 0 {
		theta += math.Pi
	}
	return int(math.Round(theta/(math.Pi/4))) % 4
}

// downscaleKernel summarizes each cell of the Sobel output into one texel
// of the storage texture: mean luma, dominant edge direction and whether
// enough edge pixels agree on it.
func downscaleKernel(in backend.Inputs, groups [3]uint32) error {
	cells, err := in.Storage(0)
	if err != nil {
		return err
	}
	tex, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return err
	}
	minEdges := backend.Uniform(uniformsOf(in), 2, 1)
	w, h := int(tex.Size().Width), int(tex.Size().Height)
	cb := cells.Bounds()

	for gy := range int(groups[1]) {
		for gx := range int(groups[0]) {
			if gx >= cb.Dx() || gy >= cb.Dy() {
				continue
			}
			var lum, count float32
			var buckets [4]float32
			for y := gy * ASCIICell; y < min((gy+1)*ASCIICell, h); y++ {
				for x := gx * ASCIICell; x < min((gx+1)*ASCIICell, w); x++ {
					s := tex.Load(x, y)
					lum += unit(s.R)
					count++
					if unit(s.B) > 0.5 {
						buckets[bucketOf(unit(s.G))]++
					}
				}
			}
			best := 0
			for k := 1; k < 4; k++ {
				if buckets[k] > buckets[best] {
					best = k
				}
			}
			var edge uint8
			if buckets[best] >= minEdges {
				edge = 255
			}
			cells.SetNRGBA(cb.Min.X+gx, cb.Min.Y+gy, color.NRGBA{
				R: byte8(lum / max(count, 1)),
				G: byte8((float32(best) + 0.5) / 4),
				B: edge,
				A: 255,
			})
		}
	}
	return nil
}

const finalizeWGSL = `
struct Finalize {
	width: f32,
	height: f32,
	glyphs: f32,
	edges: f32,
	invert: f32,
	cell: f32,
	pad0: f32,
	pad1: f32,
};

@group(0) @binding(2) var<uniform> fin: Finalize;
@group(0) @binding(3) var rampTexture: texture_2d<f32>;
@group(0) @binding(4) var edgeTexture: texture_2d<f32>;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
	let p = vec2<i32>(in.position.xy);
	let size = i32(fin.cell);
	let c = textureLoad(srcTexture, p / size, 0);
	let inner = p % size;
	var ink = 0.0;
	if (fin.edges > 0.5 && c.b > 0.5) {
		let k = min(i32(floor(c.g * 4.0)), 3);
		ink = textureLoad(edgeTexture, vec2<i32>(k * size + inner.x, inner.y), 0).r;
	} else {
		let n = i32(fin.glyphs);
		let k = clamp(i32(floor(c.r * fin.glyphs)), 0, n - 1);
		ink = textureLoad(rampTexture, vec2<i32>(k * size + inner.x, inner.y), 0).r;
	}
	if (fin.invert > 0.5) {
		ink = 1.0 - ink;
	}
	return vec4<f32>(ink, ink, ink, 1.0);
}
`

// Fields of the finalize uniform struct.
const (
	finWidth = iota
	finHeight
	finGlyphs
	finEdges
	finInvert
	finCell
	finLen = 8
)

// finalizeKernel draws one glyph per cell: an edge glyph where the cell
// has an edge, otherwise the ramp glyph for its mean luma.
func finalizeKernel(in backend.Inputs) (backend.FragmentFunc, error) {
	cells, err := in.Texture(stylize.InputSlot)
	if err != nil {
		return nil, err
	}
	ramp, err := in.Texture(rampSlot)
	if err != nil {
		return nil, err
	}
	edgeGlyphs, err := in.Texture(edgesSlot)
	if err != nil {
		return nil, err
	}
	u := uniformsOf(in)
	if len(u) < finLen {
		return nil, errShortUniforms
	}
	n := max(int(u[finGlyphs]), 1)
	size := max(int(u[finCell]), 1)
	edges, invert := u[finEdges] > 0.5, u[finInvert] > 0.5
	return func(x, y int) color.NRGBA {
		c := cells.Load(x/size, y/size)
		ix, iy := x%size, y%size
		var ink uint8
		if edges && unit(c.B) > 0.5 {
			k := min(int(unit(c.G)*4), 3)
			ink = edgeGlyphs.Load(k*size+ix, iy).R
		} else {
			k := min(max(int(unit(c.R)*float32(n)), 0), n-1)
			ink = ramp.Load(k*size+ix, iy).R
		}
		if invert {
			ink = 255 - ink
		}
		return color.NRGBA{R: ink, G: ink, B: ink, A: 255}
	}, nil
}

// ASCII renders the picture as character cells. Flat areas pick a glyph
// by brightness; cells crossed by an edge pick a line glyph following the
// edge direction.
//
// The passes are: a difference-of-gaussians edge mask, a Sobel filter over
// the mask, a compute pass reducing every cell to one texel of a storage
// texture, and a render pass drawing glyphs from the atlases.
type ASCII struct {
	base
	b         backend.RenderBackend
	dog       *stage
	sobel     *stage
	downscale any
	finalize  *stage
	ramp      *atlas.Atlas
	edgeAtlas *atlas.Atlas

	mu         sync.Mutex
	rampSurf   stylize.Surface
	edgeSurf   stylize.Surface
	cells      stylize.Surface
	cellsFrame stylize.FrameSize
}

var _ Effect = (*ASCII)(nil)

// NewASCII creates the ASCII effect and uploads its glyph atlases.
func NewASCII(b backend.RenderBackend) (Effect, error) {
	ramp, err := atlas.Ramp()
	if err != nil {
		return nil, err
	}
	edgeAtlas, err := atlas.Edges()
	if err != nil {
		return nil, err
	}
	e := &ASCII{b: b, ramp: ramp, edgeAtlas: edgeAtlas}

	if e.dog, err = newStage(b, renderShader("ascii-dog", asciiDoGWGSL, asciiDoGKernel), backend.FilterNearest); err != nil {
		return nil, err
	}
	if e.sobel, err = newStage(b, renderShader("ascii-sobel", sobelWGSL, sobelKernel), backend.FilterNearest); err != nil {
		return nil, err
	}
	e.downscale, err = b.NewComputePipeline(&backend.Shader{
		Label: "ascii-downscale",
		WGSL:  downscaleWGSL,
		Layout: []backend.Slot{
			{Binding: 0, Kind: stylize.BindingStorageTexture},
			slotInput,
			slotUniforms,
		},
		Compute: downscaleKernel,
	})
	if err != nil {
		return nil, err
	}
	finalize := renderShader("ascii-finalize", finalizeWGSL, finalizeKernel,
		backend.Slot{Binding: rampSlot, Kind: stylize.BindingTexture},
		backend.Slot{Binding: edgesSlot, Kind: stylize.BindingTexture},
	)
	if e.finalize, err = newStage(b, finalize, backend.FilterNearest); err != nil {
		return nil, err
	}

	if e.rampSurf, err = b.Upload("ascii-ramp", ramp.Image); err != nil {
		return nil, fmt.Errorf("effects: upload glyph ramp: %w", err)
	}
	if e.edgeSurf, err = b.Upload("ascii-edges", edgeAtlas.Image); err != nil {
		e.Close()
		return nil, fmt.Errorf("effects: upload edge glyphs: %w", err)
	}

	e.base = base{name: NameASCII, set: params.NewSet(
		params.Number("blur", 1, params.Min(0), params.Max(4), params.Step(0.1), params.Title("Blur before edge detection")),
		params.Number("edgeThreshold", 0.02, params.Min(0), params.Max(1), params.Step(0.005)),
		params.Number("edgeCount", 8, params.Min(1), params.Max(ASCIICell*ASCIICell), params.Step(1),
			params.Title("Edge pixels a cell needs to draw a line glyph")),
		params.Bool("edges", true, params.Title("Draw line glyphs along edges")),
		params.Bool("invert", false, params.Title("Dark glyphs on a light background")),
	)}
	return e, nil
}

// Glyphs returns the brightness ramp and the edge atlas.
func (e *ASCII) Glyphs() (ramp, edges *atlas.Atlas) { return e.ramp, e.edgeAtlas }

// cellsFor returns the storage texture for a frame of size, recreating it
// when the size changes.
func (e *ASCII) cellsFor(size stylize.FrameSize) (stylize.Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cells != nil && e.cellsFrame == size {
		return e.cells, nil
	}
	cw, ch := size.Workgroups(ASCIICell)
	cells, err := e.b.NewStorage("ascii-cells", stylize.FrameSize{Width: cw, Height: ch})
	if err != nil {
		return nil, fmt.Errorf("effects: create cell storage: %w", err)
	}
	e.destroy(e.cells)
	e.cells, e.cellsFrame = cells, size
	return cells, nil
}

// Passes returns the DoG, Sobel, downscale and finalize passes.
func (e *ASCII) Passes(_ float64, size stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	if !size.Valid() {
		return nil, stylize.ErrInvalidFrameSize
	}
	cells, err := e.cellsFor(size)
	if err != nil {
		return nil, err
	}
	w, h := float32(size.Width), float32(size.Height)
	blur := e.set.Float("blur")

	dog := e.dog.pass([]float32{w, h, float32(blur), float32(secondSigma(blur, 1)), e.set.Float32("edgeThreshold"), 0, 0, 0})
	sobel := e.sobel.pass([]float32{w, h, 0, 0})
	downscale := stylize.PassDescriptor{
		Label:         "ascii-downscale",
		Kind:          stylize.PassCompute,
		Pipeline:      e.downscale,
		WorkgroupTile: ASCIICell,
		Bindings: []stylize.Binding{
			{Slot: 0, Kind: stylize.BindingStorageTexture, Resource: cells},
			{Slot: stylize.InputSlot, Kind: stylize.BindingTexture},
			{Slot: UniformSlot, Kind: stylize.BindingBuffer, Resource: []float32{w, h, e.set.Float32("edgeCount"), 0}},
		},
	}

	u := make([]float32, finLen)
	u[finWidth], u[finHeight] = w, h
	u[finGlyphs] = float32(e.ramp.Len())
	u[finCell] = ASCIICell
	if e.set.Bool("edges") {
		u[finEdges] = 1
	}
	if e.set.Bool("invert") {
		u[finInvert] = 1
	}
	e.mu.Lock()
	finalize := e.finalize.pass(u,
		stylize.Binding{Slot: rampSlot, Kind: stylize.BindingTexture, Resource: e.rampSurf},
		stylize.Binding{Slot: edgesSlot, Kind: stylize.BindingTexture, Resource: e.edgeSurf},
	)
	e.mu.Unlock()
	// The compute pass leaves no executor output, so the cells are bound
	// here rather than rewired.
	finalize.Bindings[stylize.InputSlot].Resource = cells

	return []stylize.PassDescriptor{dog, sobel, downscale, finalize}, nil
}

// Close destroys the atlases and the cell storage.
func (e *ASCII) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroy(e.rampSurf)
	e.destroy(e.edgeSurf)
	e.destroy(e.cells)
	e.rampSurf, e.edgeSurf, e.cells = nil, nil, nil
}

func (e *ASCII) destroy(s stylize.Surface) {
	if s == nil {
		return
	}
	if dev := e.b.Device(); dev != nil {
		dev.DestroySurface(s)
	}
}

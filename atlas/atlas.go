// Package atlas builds glyph atlases for ASCII-art rendering.
//
// An atlas is a single-row strip of square glyph cells, white on black.
// Brightness atlases are ordered from the darkest glyph to the brightest,
// where brightness is the sum of the glyph's coverage after a Gaussian
// blur; a shader picks cell floor(luma*N). Edge atlases keep the order of
// their characters so a cell index can encode a direction.
package atlas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/stylize/internal/filter"
)

// Defaults.
const (
	// DefaultCell matches the ASCII downscale tile.
	DefaultCell = 8

	// DefaultSigma is the blur used to weigh glyph brightness.
	DefaultSigma = 1.0

	// DefaultRamp is the brightness glyph set.
	DefaultRamp = " .,:-=+*#%@"

	// EdgeGlyphs are indexed by edge direction: vertical, rising diagonal,
	// horizontal, falling diagonal.
	EdgeGlyphs = `|/-\`
)

var (
	// ErrEmpty is returned for an empty glyph set.
	ErrEmpty = errors.New("atlas: no glyphs")

	// ErrDuplicate is returned when a glyph set repeats a character.
	ErrDuplicate = errors.New("atlas: duplicate glyph")

	// ErrMissingGlyph is returned for characters the face cannot draw.
	ErrMissingGlyph = errors.New("atlas: glyph not in face")
)

// Atlas is a strip of glyph cells.
type Atlas struct {
	Cell    int
	Glyphs  []rune
	Weights []float64

	// Image is Cell*len(Glyphs) wide and Cell high.
	Image *image.NRGBA
}

type config struct {
	cell   int
	sigma  float64
	face   font.Face
	sorted bool
}

// Option configures New.
type Option func(*config)

// WithCell sets the cell edge in pixels.
func WithCell(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.cell = n
		}
	}
}

// WithSigma sets the brightness blur.
func WithSigma(s float64) Option {
	return func(c *config) { c.sigma = s }
}

// WithFace sets the font face glyphs are drawn with. Defaults to
// basicfont.Face7x13.
func WithFace(f font.Face) Option {
	return func(c *config) { c.face = f }
}

// Unsorted keeps the glyphs in the given order.
func Unsorted() Option {
	return func(c *config) { c.sorted = false }
}

// New draws chars into an atlas ordered by brightness.
func New(chars string, opts ...Option) (*Atlas, error) {
	cfg := config{cell: DefaultCell, sigma: DefaultSigma, face: basicfont.Face7x13, sorted: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	runes := []rune(chars)
	if len(runes) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[rune]bool, len(runes))
	for _, r := range runes {
		if seen[r] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, r)
		}
		seen[r] = true
	}

	type entry struct {
		r      rune
		mask   *image.Alpha
		weight float64
	}
	entries := make([]entry, len(runes))
	for i, r := range runes {
		m, err := drawGlyph(cfg.face, r, cfg.cell)
		if err != nil {
			return nil, err
		}
		entries[i] = entry{r: r, mask: m, weight: Weight(m, cfg.sigma)}
	}
	if cfg.sorted {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].weight < entries[j].weight
		})
	}

	a := &Atlas{
		Cell:    cfg.cell,
		Glyphs:  make([]rune, len(entries)),
		Weights: make([]float64, len(entries)),
		Image:   image.NewNRGBA(image.Rect(0, 0, cfg.cell*len(entries), cfg.cell)),
	}
	for i, e := range entries {
		a.Glyphs[i] = e.r
		a.Weights[i] = e.weight
		for y := range cfg.cell {
			for x := range cfg.cell {
				v := uint8(0)
				if e.mask.AlphaAt(x, y).A >= 128 {
					v = 255
				}
				a.Image.SetNRGBA(i*cfg.cell+x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
			}
		}
	}
	return a, nil
}

// Ramp returns the default brightness atlas.
func Ramp() (*Atlas, error) { return New(DefaultRamp) }

// Edges returns the edge-direction atlas.
func Edges(opts ...Option) (*Atlas, error) {
	return New(EdgeGlyphs, append(opts, Unsorted())...)
}

// Len returns the number of glyphs.
func (a *Atlas) Len() int { return len(a.Glyphs) }

// Index returns the cell for a luma in 0..1.
func (a *Atlas) Index(luma float64) int {
	i := int(luma * float64(len(a.Glyphs)))
	return min(max(i, 0), len(a.Glyphs)-1)
}

// Glyph returns the cell image of glyph i.
func (a *Atlas) Glyph(i int) *image.NRGBA {
	r := image.Rect(i*a.Cell, 0, (i+1)*a.Cell, a.Cell)
	return a.Image.SubImage(r).(*image.NRGBA)
}

// drawGlyph renders r with face and fits its ink into a cell×cell mask.
// Ink that fits is centered unscaled; larger ink is max-pooled so one pixel
// strokes survive.
func drawGlyph(face font.Face, r rune, cell int) (*image.Alpha, error) {
	adv, ok := face.GlyphAdvance(r)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingGlyph, r)
	}
	m := face.Metrics()
	w := max(adv.Ceil(), 1)
	h := max((m.Ascent + m.Descent).Ceil(), 1)

	src := image.NewAlpha(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  src,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{Y: m.Ascent},
	}
	d.DrawString(string(r))

	dst := image.NewAlpha(image.Rect(0, 0, cell, cell))
	ink := inkBounds(src)
	if ink.Empty() {
		return dst, nil
	}
	if ink.Dx() <= cell && ink.Dy() <= cell {
		at := image.Pt((cell-ink.Dx())/2, (cell-ink.Dy())/2)
		xdraw.Copy(dst, at, src, ink, xdraw.Src, nil)
		return dst, nil
	}

	side := max(ink.Dx(), ink.Dy())
	for y := range cell {
		for x := range cell {
			x0, x1 := x*side/cell, (x+1)*side/cell
			y0, y1 := y*side/cell, (y+1)*side/cell
			var a uint8
			for sy := y0; sy < max(y1, y0+1); sy++ {
				for sx := x0; sx < max(x1, x0+1); sx++ {
					a = max(a, src.AlphaAt(ink.Min.X+sx-(side-ink.Dx())/2, ink.Min.Y+sy-(side-ink.Dy())/2).A)
				}
			}
			dst.SetAlpha(x, y, color.Alpha{A: a})
		}
	}
	return dst, nil
}

func inkBounds(m *image.Alpha) image.Rectangle {
	var r image.Rectangle
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.AlphaAt(x, y).A == 0 {
				continue
			}
			r = r.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return r
}

// Weight returns the perceived brightness of a glyph mask: the sum of its
// coverage after a Gaussian blur of standard deviation sigma.
func Weight(mask *image.Alpha, sigma float64) float64 {
	b := mask.Bounds()
	p := filter.NewPlane(b.Dx(), b.Dy())
	for y := range p.H {
		for x := range p.W {
			if mask.AlphaAt(b.Min.X+x, b.Min.Y+y).A >= 128 {
				p.Set(x, y, 1)
			}
		}
	}
	blurred := p.Blur(sigma)
	var sum float64
	for _, v := range blurred.Pix {
		sum += float64(v)
	}
	return sum
}

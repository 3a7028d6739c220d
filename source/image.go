package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	// Decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/params"
)

// MaxInputBytes bounds the size of an encoded input image.
const MaxInputBytes = 10 << 20

// DefaultMaxSize is the frame an image is fitted into when resizing is on.
var DefaultMaxSize = stylize.FrameSize{Width: 1920, Height: 1080}

// Decode reads at most MaxInputBytes and decodes a PNG, JPEG, GIF, BMP or
// WebP image, applying its EXIF orientation. It also returns the SHA-256
// of the encoded bytes.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("source: read image: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, "", ErrTooLarge
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("source: decode image: %w", err)
	}
	sum := sha256.Sum256(data)
	return img, hex.EncodeToString(sum[:]), nil
}

// ImageOption configures an Image.
type ImageOption func(*Image)

// WithMaxSize sets the frame the image is fitted into.
func WithMaxSize(size stylize.FrameSize) ImageOption {
	return func(s *Image) {
		if size.Valid() {
			s.maxSize = size
		}
	}
}

// WithFlip flips the image vertically before upload, for targets whose
// origin is at the bottom left.
func WithFlip(flip bool) ImageOption {
	return func(s *Image) { s.flip = flip }
}

// WithKey sets the content key. Decode returns a suitable one.
func WithKey(key string) ImageOption {
	return func(s *Image) { s.key = key }
}

// Image is a still picture. With the "resize" parameter on (the default)
// it is fitted into the maximum frame with a Lanczos filter, keeping its
// aspect ratio; smaller images are never enlarged.
type Image struct {
	b       backend.RenderBackend
	src     image.Image
	key     string
	maxSize stylize.FrameSize
	flip    bool
	set     *params.Set
	blit    *blitter

	mu       sync.Mutex
	prepared *image.NRGBA
	surface  stylize.Surface
	closed   bool
}

var _ Source = (*Image)(nil)

// NewImage creates an image source on b.
func NewImage(b backend.RenderBackend, img image.Image, opts ...ImageOption) (*Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("source: empty image")
	}
	s := &Image{b: b, src: img, maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		s.key = fmt.Sprintf("%p", img)
	}
	blit, err := newBlitter(b, "image")
	if err != nil {
		return nil, err
	}
	s.blit = blit
	s.set = params.NewSet(
		params.Bool("resize", true, params.Title("Fit the image into the frame")),
	)
	s.set.Watch(func(params.Change) { s.invalidate() })
	s.prepare()
	return s, nil
}

// ReadImage decodes r into an image source keyed by its content.
func ReadImage(b backend.RenderBackend, r io.Reader, opts ...ImageOption) (*Image, error) {
	img, key, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return NewImage(b, img, append([]ImageOption{WithKey(key)}, opts...)...)
}

// OpenImage decodes the file at path.
func OpenImage(b backend.RenderBackend, path string, opts ...ImageOption) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadImage(b, f, opts...)
}

// Name returns NameImage.
func (s *Image) Name() string { return NameImage }

// Key identifies the picture.
func (s *Image) Key() string { return NameImage + ":" + s.key }

// Params returns the image parameters.
func (s *Image) Params() *params.Set { return s.set }

// Animated returns false.
func (s *Image) Animated() bool { return false }

// Cadence returns 0.
func (s *Image) Cadence() time.Duration { return 0 }

// Size returns the size of the prepared picture.
func (s *Image) Size() stylize.FrameSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared == nil {
		s.prepareLocked()
	}
	b := s.prepared.Bounds()
	return stylize.FrameSize{Width: uint32(b.Dx()), Height: uint32(b.Dy())}
}

// Prepared returns the picture as uploaded.
func (s *Image) Prepared() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared == nil {
		s.prepareLocked()
	}
	return s.prepared
}

func (s *Image) prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareLocked()
}

func (s *Image) prepareLocked() {
	var img *image.NRGBA
	if s.set.Bool("resize") {
		img = imaging.Fit(s.src, int(s.maxSize.Width), int(s.maxSize.Height), imaging.Lanczos)
	} else {
		img = imaging.Clone(s.src)
	}
	if s.flip {
		img = imaging.FlipV(img)
	}
	s.prepared = img
}

func (s *Image) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared = nil
	s.dropSurfaceLocked()
}

// Passes uploads the picture on first use and returns its blit pass.
func (s *Image) Passes(_ float64, _ stylize.FrameSize) ([]stylize.PassDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.surface == nil {
		if s.prepared == nil {
			s.prepareLocked()
		}
		surf, err := s.b.Upload("image", s.prepared)
		if err != nil {
			return nil, fmt.Errorf("source: upload image: %w", err)
		}
		s.surface = surf
		stylize.Logger().Debug("source: image uploaded", "size", surf.Size())
	}
	return []stylize.PassDescriptor{s.blit.pass(s.surface)}, nil
}

// Close destroys the uploaded surface.
func (s *Image) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.dropSurfaceLocked()
}

func (s *Image) dropSurfaceLocked() {
	if s.surface == nil {
		return
	}
	if dev := s.b.Device(); dev != nil {
		dev.DestroySurface(s.surface)
	}
	s.surface = nil
}

// Package studio is the host shell: it owns one active source and at most
// one active effect, and keeps a render session showing their composition.
//
// Every swap cancels the outgoing session before the next one starts, so
// two animations never race on the target. Replacing the source keeps the
// effect, selecting a source with the same content is a no-op, and
// selecting the active effect again turns it off.
//
// A Studio is not safe for concurrent use. Call it from the goroutine that
// runs the scheduler's callbacks; with the default event loop that means
// before Run or from functions posted with Post.
package studio

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stylize"
	"github.com/gogpu/stylize/backend"
	"github.com/gogpu/stylize/effects"
	"github.com/gogpu/stylize/params"
	"github.com/gogpu/stylize/source"
)

var (
	// ErrNoSource is returned by operations that need a rendered frame
	// before a source was set.
	ErrNoSource = errors.New("studio: no source")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("studio: closed")
)

// targetUsage lets the target be drawn into, shown and read back.
const targetUsage = gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopySrc

// Option configures a Studio.
type Option func(*Studio)

// WithScheduler sets the scheduler animation ticks wait on. Defaults to an
// EventLoop painting at 60 Hz, driven by Run.
func WithScheduler(s stylize.Scheduler) Option {
	return func(st *Studio) { st.sched = s }
}

// WithClock sets the wall clock of the render loop.
func WithClock(now func() time.Time) Option {
	return func(st *Studio) { st.loopOpts = append(st.loopOpts, stylize.WithClock(now)) }
}

// WithSpeed scales the animation phase. Defaults to 1.
func WithSpeed(speed float64) Option {
	return func(st *Studio) { st.speed = speed }
}

// WithMaxSize sets the frame images are fitted into.
func WithMaxSize(size stylize.FrameSize) Option {
	return func(st *Studio) { st.imageOpts = append(st.imageOpts, source.WithMaxSize(size)) }
}

// WithFrameHandler sets a callback run after every animated frame.
func WithFrameHandler(fn func(*stylize.Session)) Option {
	return func(st *Studio) { st.loopOpts = append(st.loopOpts, stylize.WithFrameHandler(fn)) }
}

// WithErrorHandler sets a callback for errors that stop an animation.
func WithErrorHandler(fn func(*stylize.Session, error)) Option {
	return func(st *Studio) { st.loopOpts = append(st.loopOpts, stylize.WithErrorHandler(fn)) }
}

// Studio composes a source and an effect into a live render session.
type Studio struct {
	b         backend.RenderBackend
	sched     stylize.Scheduler
	speed     float64
	loopOpts  []stylize.LoopOption
	imageOpts []source.ImageOption

	exec *stylize.Executor
	loop *stylize.RenderLoop

	src    source.Source
	effect effects.Effect
	target stylize.Surface

	// holding suppresses restarts while a preset is applied.
	holding bool
	closed  bool
}

// New creates a studio rendering on b, which must be initialized.
func New(b backend.RenderBackend, opts ...Option) (*Studio, error) {
	dev := b.Device()
	if dev == nil {
		return nil, backend.ErrNotInitialized
	}
	s := &Studio{b: b, speed: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.sched == nil {
		s.sched = stylize.NewEventLoop(stylize.Cadence60Hz)
	}
	surfaces := stylize.NewSurfaceManager(dev, stylize.SurfaceManagerConfig{Pool: true})
	s.exec = stylize.NewExecutor(dev, stylize.WithSurfaceManager(surfaces))
	s.loop = stylize.NewRenderLoop(s.exec, s.sched, s.loopOpts...)
	return s, nil
}

// Scheduler returns the scheduler animation ticks run on.
func (s *Studio) Scheduler() stylize.Scheduler { return s.sched }

// Run drives the default event loop until ctx is done. With a scheduler
// from WithScheduler it only waits for ctx.
func (s *Studio) Run(ctx context.Context) error {
	if el, ok := s.sched.(*stylize.EventLoop); ok {
		return el.Run(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Source returns the active source, or nil.
func (s *Studio) Source() source.Source { return s.src }

// Effect returns the active effect, or nil.
func (s *Studio) Effect() effects.Effect { return s.effect }

// Session returns the current render session, or nil.
func (s *Studio) Session() *stylize.Session { return s.loop.Active() }

// Target returns the surface frames are rendered into, or nil before the
// first source.
func (s *Studio) Target() stylize.Surface { return s.target }

// Size returns the frame size, the natural size of the source.
func (s *Studio) Size() stylize.FrameSize {
	if s.target == nil {
		return stylize.FrameSize{}
	}
	return s.target.Size()
}

// SetSource makes src the active source and takes ownership of it. If src
// shows the same content as the active source it is closed and nothing
// changes. The active effect is kept.
func (s *Studio) SetSource(src source.Source) error {
	if s.closed {
		src.Close()
		return ErrClosed
	}
	if s.src != nil && s.src.Key() == src.Key() {
		stylize.Logger().Debug("studio: same source, ignored", "key", src.Key())
		src.Close()
		return nil
	}
	s.loop.Cancel()
	if s.src != nil {
		s.src.Close()
	}
	s.src = src
	src.Params().Watch(func(params.Change) { s.changed(src) })

	if err := s.resize(src.Size()); err != nil {
		return err
	}
	stylize.Logger().Info("studio: source set", "source", src.Name(), "size", src.Size().String())
	return s.restart()
}

// LoadImage decodes an image and makes it the source. Inputs over
// source.MaxInputBytes are rejected with source.ErrTooLarge.
func (s *Studio) LoadImage(r io.Reader) error {
	img, err := source.ReadImage(s.b, r, s.imageOpts...)
	if err != nil {
		return err
	}
	return s.SetSource(img)
}

// OpenImage loads the image file at path.
func (s *Studio) OpenImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.LoadImage(f)
}

// UsePerlin makes procedural noise the source. It is a no-op while noise
// is already shown.
func (s *Studio) UsePerlin(opts ...source.PerlinOption) error {
	if s.src != nil && s.src.Key() == source.NamePerlin {
		return nil
	}
	p, err := source.NewPerlin(s.b, opts...)
	if err != nil {
		return err
	}
	return s.SetSource(p)
}

// SelectEffect activates the effect registered under name. Selecting the
// active effect again deactivates it. It reports whether an effect is
// active afterwards.
func (s *Studio) SelectEffect(name string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	if s.effect != nil && s.effect.Name() == name {
		s.loop.Cancel()
		s.effect.Close()
		s.effect = nil
		stylize.Logger().Info("studio: effect deselected", "effect", name)
		return false, s.restart()
	}
	if err := s.useEffect(name); err != nil {
		return s.effect != nil, err
	}
	return true, s.restart()
}

// ClearEffect deactivates the active effect, if any.
func (s *Studio) ClearEffect() error {
	if s.effect == nil {
		return nil
	}
	_, err := s.SelectEffect(s.effect.Name())
	return err
}

func (s *Studio) useEffect(name string) error {
	e, err := effects.New(name, s.b)
	if err != nil {
		return err
	}
	s.loop.Cancel()
	if s.effect != nil {
		s.effect.Close()
	}
	s.effect = e
	e.Params().Watch(func(params.Change) { s.changed(e) })
	stylize.Logger().Info("studio: effect selected", "effect", name, "animated", e.Animated())
	return nil
}

// changed restarts the session after a parameter of owner changed, unless
// owner has been replaced since.
func (s *Studio) changed(owner any) {
	if s.closed || s.holding {
		return
	}
	if owner != any(s.src) && (s.effect == nil || owner != any(s.effect)) {
		return
	}
	if err := s.restart(); err != nil {
		stylize.Logger().Warn("studio: re-render after parameter change failed", "err", err)
	}
}

// resize makes the target match size.
func (s *Studio) resize(size stylize.FrameSize) error {
	if s.target != nil && s.target.Size() == size {
		return nil
	}
	target, err := s.b.Device().CreateSurface(stylize.SurfaceDescriptor{
		Label:  "studio",
		Size:   size,
		Format: s.b.Format(),
		Usage:  targetUsage,
	})
	if err != nil {
		return fmt.Errorf("studio: create target: %w", err)
	}
	if s.target != nil {
		s.b.Device().DestroySurface(s.target)
	}
	s.target = target
	return nil
}

// restart replaces the session with one showing the current composition,
// continuing from the phase of the outgoing session.
func (s *Studio) restart() error {
	if s.src == nil {
		s.loop.Cancel()
		return nil
	}
	if err := s.resize(s.src.Size()); err != nil {
		return err
	}
	var t float64
	if prev := s.loop.Active(); prev != nil {
		t = prev.Time()
	}
	_, err := s.loop.StartOrReplace(stylize.SessionConfig{
		Renderable: s.composition(),
		Size:       s.target.Size(),
		Target:     s.target,
		Time:       t,
	})
	return err
}

func (s *Studio) composition() *Composition {
	return &Composition{Source: s.src, Effect: s.effect, Speed: s.speed}
}

// RenderAt cancels the session and renders one frame at time t into the
// target. Sequences of frames are rendered this way. Any later change
// starts a new session.
func (s *Studio) RenderAt(t float64) error {
	if s.closed {
		return ErrClosed
	}
	if s.src == nil || s.target == nil {
		return ErrNoSource
	}
	s.loop.Cancel()
	instr, err := s.composition().BuildInstructions(t, s.target.Size())
	if err != nil {
		return err
	}
	return s.exec.Execute(instr, s.target.Size(), s.target)
}

// Snapshot encodes the last rendered frame as PNG.
func (s *Studio) Snapshot(w io.Writer) error {
	if s.target == nil {
		return ErrNoSource
	}
	img, err := s.b.Download(s.target)
	if err != nil {
		return fmt.Errorf("studio: read frame: %w", err)
	}
	return png.Encode(w, img)
}

// SaveSnapshot writes the last rendered frame to a PNG file.
func (s *Studio) SaveSnapshot(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.Snapshot(f)
}

// DeviceLost stops the session for good after the device was lost.
func (s *Studio) DeviceLost(cause error) { s.loop.DeviceLost(cause) }

// Close cancels the session and releases the source, the effect and the
// target.
func (s *Studio) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.loop.Cancel()
	if s.effect != nil {
		s.effect.Close()
		s.effect = nil
	}
	if s.src != nil {
		s.src.Close()
		s.src = nil
	}
	if s.target != nil {
		s.b.Device().DestroySurface(s.target)
		s.target = nil
	}
	s.exec.Surfaces().Close()
}

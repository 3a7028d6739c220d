package stylize

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionState is the lifecycle state of a render session.
type SessionState uint8

const (
	// SessionIdle: a single-shot render completed.
	SessionIdle SessionState = iota

	// SessionSingleShot: the one render of a non-animated session is running.
	SessionSingleShot

	// SessionAnimating: ticks are being scheduled.
	SessionAnimating

	// SessionCancelled: the session was cancelled or replaced.
	SessionCancelled

	// SessionFailed: a render failed and animation stopped.
	SessionFailed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionSingleShot:
		return "single-shot"
	case SessionAnimating:
		return "animating"
	case SessionCancelled:
		return "cancelled"
	case SessionFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", uint8(s))
	}
}

// TimeScaler is implemented by renderables whose phase advances faster or
// slower than wall-clock time.
type TimeScaler interface {
	TimeScale() float64
}

// SessionConfig describes what a session renders.
type SessionConfig struct {
	Renderable Renderable
	Size       FrameSize
	Target     Surface

	// Time is the initial phase value.
	Time float64
}

// LoopOption configures a RenderLoop.
type LoopOption func(*RenderLoop)

// WithClock sets the wall clock. Defaults to time.Now.
func WithClock(now func() time.Time) LoopOption {
	return func(l *RenderLoop) {
		l.now = now
	}
}

// WithErrorHandler sets the callback for render errors during animation.
// Errors of the initial render are returned by StartOrReplace instead.
func WithErrorHandler(fn func(*Session, error)) LoopOption {
	return func(l *RenderLoop) {
		l.onError = fn
	}
}

// WithFrameHandler sets a callback invoked after every successful render.
func WithFrameHandler(fn func(*Session)) LoopOption {
	return func(l *RenderLoop) {
		l.onFrame = fn
	}
}

// RenderLoop runs at most one render session at a time.
//
// Starting a session always cancels the previous one first, so two
// animation loops never race on the same target. RenderLoop is not safe for
// concurrent use: call it from the goroutine that runs the Scheduler's
// callbacks (for EventLoop, post to it).
type RenderLoop struct {
	exec    *Executor
	sched   Scheduler
	now     func() time.Time
	onError func(*Session, error)
	onFrame func(*Session)

	active *Session
	lost   error
	nextID uint64
}

// NewRenderLoop creates a loop that executes on exec and suspends through
// sched.
func NewRenderLoop(exec *Executor, sched Scheduler, opts ...LoopOption) *RenderLoop {
	l := &RenderLoop{
		exec:  exec,
		sched: sched,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Active returns the most recently started session, or nil.
func (l *RenderLoop) Active() *Session { return l.active }

// StartOrReplace cancels the active session, renders cfg once, and if the
// renderable is animated schedules repeating ticks at its cadence.
// The error of the initial render is returned together with the failed
// session.
func (l *RenderLoop) StartOrReplace(cfg SessionConfig) (*Session, error) {
	l.Cancel()

	if l.lost != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceLost, l.lost)
	}
	if cfg.Renderable == nil {
		return nil, errors.New("stylize: session has no renderable")
	}

	l.nextID++
	s := &Session{
		id:       l.nextID,
		loop:     l,
		cfg:      cfg,
		time:     cfg.Time,
		lastTick: l.now(),
		animated: cfg.Renderable.Animated(),
		cadence:  cfg.Renderable.Cadence(),
		scale:    1,
	}
	if ts, ok := cfg.Renderable.(TimeScaler); ok {
		s.scale = ts.TimeScale()
	}
	if s.animated && s.cadence <= 0 {
		s.cadence = Cadence60Hz
	}
	l.active = s

	log := Logger()
	log.Info("stylize: session started", "session", s.id, "animated", s.animated, "cadence", s.cadence, "size", cfg.Size.String())

	s.state = SessionSingleShot
	if err := s.render(); err != nil {
		s.state = SessionFailed
		s.err = err
		s.cancelled = true
		l.noteLost(err)
		return s, err
	}
	s.frames++

	if !s.animated {
		s.state = SessionIdle
		return s, nil
	}
	s.state = SessionAnimating
	s.schedule()
	return s, nil
}

// Cancel cancels the active session. It is a no-op without one.
func (l *RenderLoop) Cancel() {
	if l.active != nil {
		l.active.Cancel()
	}
}

// DeviceLost reports an unrecoverable device loss. The active session stops
// and every later StartOrReplace fails with ErrDeviceLost.
func (l *RenderLoop) DeviceLost(cause error) {
	if cause == nil {
		cause = ErrDeviceLost
	}
	l.lost = cause
	if s := l.active; s != nil && !s.cancelled {
		s.fail(fmt.Errorf("%w: %w", ErrDeviceLost, cause))
	}
}

// noteLost makes a device loss reported by a render global to the loop.
func (l *RenderLoop) noteLost(err error) {
	if l.lost == nil && errors.Is(err, ErrDeviceLost) {
		l.lost = err
	}
}

// Session is one activation of a renderable on a target.
type Session struct {
	id   uint64
	loop *RenderLoop
	cfg  SessionConfig

	time     float64
	lastTick time.Time
	scale    float64
	animated bool
	cadence  time.Duration

	timer     Timer
	cancelled bool
	state     SessionState
	err       error

	frames  uint64
	skipped uint64
}

// ID returns the session's sequence number within its loop.
func (s *Session) ID() uint64 { return s.id }

// Time returns the current phase value.
func (s *Session) Time() float64 { return s.time }

// State returns the lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Err returns the error that stopped the session, if any.
func (s *Session) Err() error { return s.err }

// Animated reports whether the session ticks.
func (s *Session) Animated() bool { return s.animated }

// Frames returns the number of completed renders.
func (s *Session) Frames() uint64 { return s.frames }

// Skipped returns the number of ticks dropped because the device was busy.
func (s *Session) Skipped() uint64 { return s.skipped }

// Cancel stops the session. The pending timer, if any, is stopped and a
// tick already waiting for its frame is dropped. Calling Cancel again, or
// on a session that never ticked, does nothing. Work already submitted to
// the device is not rolled back.
func (s *Session) Cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == SessionAnimating || s.state == SessionSingleShot {
		s.state = SessionCancelled
	}
	Logger().Debug("stylize: session cancelled", "session", s.id, "frames", s.frames)
}

func (s *Session) render() error {
	instr, err := s.cfg.Renderable.BuildInstructions(s.time, s.cfg.Size)
	if err != nil {
		return fmt.Errorf("stylize: build instructions: %w", err)
	}
	return s.loop.exec.Execute(instr, s.cfg.Size, s.cfg.Target)
}

func (s *Session) schedule() {
	s.timer = s.loop.sched.AfterFunc(s.cadence, s.onTimer)
}

// onTimer is the first stage of a tick: advance the phase, then wait for
// the next paint opportunity.
func (s *Session) onTimer() {
	s.timer = nil
	if s.cancelled {
		return
	}
	now := s.loop.now()
	delta := s.lastTick.Sub(now)
	s.lastTick = now
	s.time += delta.Seconds() * s.scale
	s.loop.sched.RequestFrame(s.onFrame)
}

// onFrame is the second stage of a tick: render and reschedule.
func (s *Session) onFrame() {
	if s.cancelled {
		return
	}
	if busy, ok := s.loop.exec.Device().(BusyReporter); ok && busy.Busy() {
		s.skipped++
		Logger().Warn("stylize: frame skipped, device busy", "session", s.id, "skipped", s.skipped)
		s.schedule()
		return
	}
	if err := s.render(); err != nil {
		s.fail(err)
		return
	}
	s.frames++
	if s.loop.onFrame != nil {
		s.loop.onFrame(s)
	}
	if !s.cancelled {
		s.schedule()
	}
}

func (s *Session) fail(err error) {
	s.Cancel()
	s.state = SessionFailed
	s.err = err
	s.loop.noteLost(err)
	Logger().Error("stylize: render failed, animation stopped", "session", s.id, "err", err, slog.Uint64("frames", s.frames))
	if s.loop.onError != nil {
		s.loop.onError(s, err)
	}
}

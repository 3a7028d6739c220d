package stylize

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped it; false means it already ran or was already stopped.
	Stop() bool
}

// Scheduler provides the two suspension points of an animation tick: a
// fixed delay, then the next paint opportunity of the display.
// Callbacks from both stages run on the render goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	RequestFrame(fn func())
}

// EventLoop is a single-goroutine Scheduler. Run executes every callback on
// the calling goroutine. Timers fire through the runtime and hop back onto
// the loop; frame requests are flushed on each tick of the refresh clock.
type EventLoop struct {
	refresh time.Duration
	tasks   chan func()
	done    chan struct{}
	stop    sync.Once

	mu     sync.Mutex
	frames []func()
}

// NewEventLoop creates a loop whose paint opportunities occur every
// refresh. A non-positive refresh defaults to 60 Hz.
func NewEventLoop(refresh time.Duration) *EventLoop {
	if refresh <= 0 {
		refresh = Cadence60Hz
	}
	return &EventLoop{
		refresh: refresh,
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
	}
}

// Post queues fn to run on the loop. It reports false once the loop has
// stopped.
func (l *EventLoop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// AfterFunc runs fn on the loop after d.
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.state.CompareAndSwap(timerPending, timerRan) {
				fn()
			}
		})
	})
	return t
}

// RequestFrame runs fn at the next paint opportunity.
func (l *EventLoop) RequestFrame(fn func()) {
	l.mu.Lock()
	l.frames = append(l.frames, fn)
	l.mu.Unlock()
}

// Run dispatches callbacks until ctx is done.
func (l *EventLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()
	defer l.stop.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		case <-ticker.C:
			l.flushFrames()
		}
	}
}

func (l *EventLoop) flushFrames() {
	l.mu.Lock()
	frames := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, fn := range frames {
		fn()
	}
}

const (
	timerPending int32 = iota
	timerStopped
	timerRan
)

type loopTimer struct {
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) Stop() bool {
	if !t.state.CompareAndSwap(timerPending, timerStopped) {
		return false
	}
	t.timer.Stop()
	return true
}

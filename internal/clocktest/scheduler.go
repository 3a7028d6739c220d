// Package clocktest provides a manually driven stylize.Scheduler with a fake
// wall clock.
package clocktest

import (
	"sort"
	"time"

	"github.com/gogpu/stylize"
)

// Scheduler fires timers only when the test advances its clock and runs
// frame callbacks only when the test asks for a frame.
type Scheduler struct {
	now    time.Time
	seq    int
	timers []*timer
	frames []func()
}

// NewScheduler creates a scheduler whose clock starts at start.
func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Now returns the fake wall clock. Pass it to stylize.WithClock.
func (s *Scheduler) Now() time.Time { return s.now }

// Set moves the clock to t without firing timers.
func (s *Scheduler) Set(t time.Time) { s.now = t }

type timer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc implements stylize.Scheduler.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) stylize.Timer {
	s.seq++
	t := &timer{at: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// RequestFrame implements stylize.Scheduler.
func (s *Scheduler) RequestFrame(fn func()) {
	s.frames = append(s.frames, fn)
}

// PendingTimers returns the number of timers neither fired nor stopped.
func (s *Scheduler) PendingTimers() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// PendingFrames returns the number of queued frame callbacks.
func (s *Scheduler) PendingFrames() int { return len(s.frames) }

// Advance moves the clock forward by d, firing due timers in order.
func (s *Scheduler) Advance(d time.Duration) {
	end := s.now.Add(d)
	for {
		t := s.nextDue(end)
		if t == nil {
			break
		}
		s.now = t.at
		t.fired = true
		t.fn()
	}
	s.now = end
}

func (s *Scheduler) nextDue(end time.Time) *timer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	if len(live) == 0 || live[0].at.After(end) {
		return nil
	}
	return live[0]
}

// Frame runs the frame callbacks queued so far. Callbacks requested while
// running wait for the next Frame.
func (s *Scheduler) Frame() int {
	frames := s.frames
	s.frames = nil
	for _, fn := range frames {
		fn()
	}
	return len(frames)
}

// Tick advances the clock by d and then runs one frame.
func (s *Scheduler) Tick(d time.Duration) int {
	s.Advance(d)
	return s.Frame()
}

package stylize_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/stylize"
)

func runLoop(t *testing.T, l *stylize.EventLoop) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run() = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	}
}

func TestEventLoopTimerThenFrame(t *testing.T) {
	l := stylize.NewEventLoop(time.Millisecond)
	stop := runLoop(t, l)
	defer stop()

	var order []string
	done := make(chan struct{})
	l.Post(func() {
		l.AfterFunc(5*time.Millisecond, func() {
			order = append(order, "timer")
			l.RequestFrame(func() {
				order = append(order, "frame")
				close(done)
			})
		})
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("frame callback never ran")
	}
	if len(order) != 2 || order[0] != "timer" || order[1] != "frame" {
		t.Errorf("order = %v, want [timer frame]", order)
	}
}

func TestEventLoopTimerStop(t *testing.T) {
	l := stylize.NewEventLoop(time.Millisecond)
	stop := runLoop(t, l)
	defer stop()

	fired := make(chan struct{}, 1)
	timer := l.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	if !timer.Stop() {
		t.Error("Stop() on a pending timer = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	select {
	case <-fired:
		t.Error("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}

	ran := make(chan struct{})
	timer = l.AfterFunc(time.Millisecond, func() { close(ran) })
	<-ran
	if timer.Stop() {
		t.Error("Stop() after the callback ran = true, want false")
	}
}

func TestEventLoopPostAfterStop(t *testing.T) {
	l := stylize.NewEventLoop(0)
	stop := runLoop(t, l)
	stop()

	if l.Post(func() {}) {
		t.Error("Post() after Run returned = true, want false")
	}
}

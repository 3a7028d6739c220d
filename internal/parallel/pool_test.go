package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func() error, 100)
	for i := range work {
		work[i] = func() error {
			counter.Add(1)
			return nil
		}
	}
	if err := pool.ExecuteAll(work); err != nil {
		t.Fatalf("ExecuteAll: %v", err)
	}
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllError(t *testing.T) {
	pool := NewWorkerPool(1)
	errBoom := errors.New("boom")

	var ran atomic.Int64
	work := []func() error{
		func() error { ran.Add(1); return errBoom },
		func() error { ran.Add(1); return nil },
		func() error { ran.Add(1); return nil },
	}
	if err := pool.ExecuteAll(work); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	// With one worker the items run in order, so nothing after the failure runs.
	if ran.Load() != 1 {
		t.Errorf("ran = %d, want 1", ran.Load())
	}
}

func TestWorkerPool_Closed(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	called := false
	err := pool.Rows(100, func(int, int) error {
		called = true
		return nil
	})
	if err != nil || called {
		t.Errorf("closed pool ran work: called=%v err=%v", called, err)
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		height, workers int
		want            int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{MinBandRows, 4, 1},
		{MinBandRows + 1, 4, 2},
		{1000, 4, 8},
		{1000, 0, 2},
	}
	for _, tt := range tests {
		bands := Bands(tt.height, tt.workers)
		if len(bands) != tt.want {
			t.Errorf("Bands(%d, %d) = %d bands, want %d", tt.height, tt.workers, len(bands), tt.want)
			continue
		}
		y := 0
		for _, b := range bands {
			if b[0] != y || b[1] <= b[0] {
				t.Errorf("Bands(%d, %d): bad band %v after row %d", tt.height, tt.workers, b, y)
			}
			y = b[1]
		}
		if y != tt.height {
			t.Errorf("Bands(%d, %d) covers %d rows", tt.height, tt.workers, y)
		}
	}
}

func TestWorkerPool_RowsCoversEveryRow(t *testing.T) {
	pool := NewWorkerPool(4)
	const height = 333

	var mu sync.Mutex
	seen := make([]int, height)
	err := pool.Rows(height, func(y0, y1 int) error {
		mu.Lock()
		defer mu.Unlock()
		for y := y0; y < y1; y++ {
			seen[y]++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	for y, n := range seen {
		if n != 1 {
			t.Fatalf("row %d visited %d times", y, n)
		}
	}
}

func BenchmarkRows(b *testing.B) {
	pool := NewWorkerPool(0)
	buf := make([]float32, 1024*1024)
	for b.Loop() {
		_ = pool.Rows(1024, func(y0, y1 int) error {
			for i := y0 * 1024; i < y1*1024; i++ {
				buf[i] = buf[i]*0.5 + 1
			}
			return nil
		})
	}
}

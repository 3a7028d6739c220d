package stylize

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Default pool limits.
const (
	// DefaultPoolBuckets is the number of (size, format) buckets kept warm.
	DefaultPoolBuckets = 4

	// DefaultPoolPerBucket bounds idle surfaces per bucket. A linear chain
	// needs at most two live intermediates.
	DefaultPoolPerBucket = 2
)

// SurfaceStats contains intermediate surface statistics.
type SurfaceStats struct {
	// Allocated counts surfaces created on the device.
	Allocated uint64

	// Reused counts allocations served from the pool.
	Reused uint64

	// Destroyed counts surfaces returned to the device.
	Destroyed uint64

	// Live is the number of surfaces currently handed out.
	Live int

	// Idle is the number of pooled surfaces.
	Idle int
}

// String returns a human-readable summary.
func (s SurfaceStats) String() string {
	return fmt.Sprintf("Surfaces[%d live, %d idle, %d allocated, %d reused, %d destroyed]",
		s.Live, s.Idle, s.Allocated, s.Reused, s.Destroyed)
}

// SurfaceManagerConfig configures a SurfaceManager.
type SurfaceManagerConfig struct {
	// Pool enables reuse of released surfaces.
	Pool bool

	// PoolBuckets is the number of (size, format) buckets retained.
	// Defaults to DefaultPoolBuckets if <= 0.
	PoolBuckets int

	// PoolPerBucket bounds idle surfaces per bucket.
	// Defaults to DefaultPoolPerBucket if <= 0.
	PoolPerBucket int
}

type surfaceKey struct {
	size   FrameSize
	format gputypes.TextureFormat
}

// SurfaceManager allocates transient intermediate surfaces.
//
// Reuse is an optimization only: without pooling every Release destroys the
// surface. With pooling, released surfaces are kept in an LRU of
// (size, format) buckets and buckets that fall out are destroyed.
//
// SurfaceManager is safe for concurrent use.
type SurfaceManager struct {
	mu sync.Mutex

	device    Device
	pool      *lru.Cache[surfaceKey, []Surface]
	perBucket int
	live      map[Surface]struct{}
	stats     SurfaceStats
	closed    bool
}

// NewSurfaceManager creates a manager that allocates on device.
func NewSurfaceManager(device Device, config SurfaceManagerConfig) *SurfaceManager {
	m := &SurfaceManager{
		device: device,
		live:   make(map[Surface]struct{}),
	}
	if !config.Pool {
		return m
	}

	buckets := config.PoolBuckets
	if buckets <= 0 {
		buckets = DefaultPoolBuckets
	}
	m.perBucket = config.PoolPerBucket
	if m.perBucket <= 0 {
		m.perBucket = DefaultPoolPerBucket
	}

	pool, err := lru.NewWithEvict[surfaceKey, []Surface](buckets, m.onEvict)
	if err != nil {
		// Only returned for a non-positive size, excluded above.
		panic(err)
	}
	m.pool = pool
	return m
}

// onEvict destroys every surface in an evicted bucket. It runs with m.mu held.
func (m *SurfaceManager) onEvict(_ surfaceKey, idle []Surface) {
	for _, s := range idle {
		m.device.DestroySurface(s)
		m.stats.Destroyed++
		m.stats.Idle--
	}
}

// Allocate returns a frame-sized surface of the given format usable as a
// render target and as a sampled input. Device failures are wrapped with
// ErrSurfaceAllocation.
func (m *SurfaceManager) Allocate(size FrameSize, format gputypes.TextureFormat) (Surface, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrameSize, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSurfaceManagerClosed
	}

	key := surfaceKey{size: size, format: format}
	if m.pool != nil {
		if idle, ok := m.pool.Peek(key); ok && len(idle) > 0 {
			s := idle[len(idle)-1]
			m.pool.Add(key, idle[:len(idle)-1])
			m.stats.Idle--
			m.stats.Reused++
			m.live[s] = struct{}{}
			m.stats.Live++
			return s, nil
		}
	}

	s, err := m.device.CreateSurface(SurfaceDescriptor{
		Label:  fmt.Sprintf("intermediate %s", size),
		Size:   size,
		Format: format,
		Usage:  IntermediateUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrSurfaceAllocation, size, format, err)
	}
	m.stats.Allocated++
	m.live[s] = struct{}{}
	m.stats.Live++
	return s, nil
}

// Release hands a surface back. Surfaces not allocated by this manager are
// ignored.
func (m *SurfaceManager) Release(s Surface) {
	if s == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live[s]; !ok {
		return
	}
	delete(m.live, s)
	m.stats.Live--

	if m.pool == nil || m.closed {
		m.device.DestroySurface(s)
		m.stats.Destroyed++
		return
	}

	key := surfaceKey{size: s.Size(), format: s.Format()}
	idle, _ := m.pool.Peek(key)
	if len(idle) >= m.perBucket {
		m.device.DestroySurface(s)
		m.stats.Destroyed++
		return
	}
	m.pool.Add(key, append(idle, s))
	m.stats.Idle++
}

// Stats returns a snapshot of the manager's counters.
func (m *SurfaceManager) Stats() SurfaceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close destroys all pooled surfaces. Live surfaces are destroyed when
// released. Close is idempotent.
func (m *SurfaceManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	if m.pool != nil {
		m.pool.Purge()
	}
}

// Package playback serves velocity phases for cine display: a bounded LRU
// cache in front of a blocking phase loader, and a navigator that steps
// through the cardiac cycle.
package playback

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/sync/singleflight"

	"flow4d/internal/models"
	"flow4d/pkg/flowerr"
)

// PhaseLoader produces the phase with the given index. It may block on disk
// or network I/O and is never called with the cache lock held.
type PhaseLoader func(index int) (*models.VelocityPhase, error)

// CacheStats counts cache activity since creation.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Loads     uint64
	Evictions uint64
}

// PhaseCache keeps at most WindowSize phases resident, evicting the least
// recently used one when a new phase is loaded into a full window.
//
// Concurrent requests for the same missing phase share one loader call.
// Phases returned by the cache are shared; callers must Clone before
// modifying them.
type PhaseCache struct {
	mu sync.Mutex

	lru    *simplelru.LRU
	loader PhaseLoader
	total  int
	window int
	stats  CacheStats
	onLoad func(index int)

	flights singleflight.Group
	log     *logger.L
}

// NewPhaseCache creates a cache over totalPhases phases holding at most
// windowSize of them.
func NewPhaseCache(totalPhases, windowSize int, loader PhaseLoader) (*PhaseCache, error) {
	const op = "playback.NewPhaseCache"
	if totalPhases < 1 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "total phases must be positive, got %d", totalPhases)
	}
	if windowSize < 1 {
		return nil, flowerr.New(flowerr.InvalidInput, op, "window size must be at least 1, got %d", windowSize)
	}
	if loader == nil {
		return nil, flowerr.New(flowerr.InvalidInput, op, "nil phase loader")
	}

	c := &PhaseCache{
		loader: loader,
		total:  totalPhases,
		window: windowSize,
		log:    logger.New("cache"),
	}
	if err := c.reset(); err != nil {
		return nil, flowerr.Wrap(flowerr.InternalError, op, err, "create LRU")
	}
	return c, nil
}

// reset replaces the LRU with an empty one. The LRU itself is sized for
// every phase; the window is enforced by trim so it can change later.
func (c *PhaseCache) reset() error {
	lru, err := simplelru.NewLRU(c.total, func(key interface{}, value interface{}) {
		c.stats.Evictions++
		c.log.Debugf("evicted phase %v", key)
	})
	if err != nil {
		return err
	}
	c.lru = lru
	return nil
}

// trim evicts least recently used phases until the window is respected.
// The lock must be held.
func (c *PhaseCache) trim() {
	for c.lru.Len() > c.window {
		c.lru.RemoveOldest()
	}
}

// GetPhase returns the phase with the given index, loading it on a miss.
func (c *PhaseCache) GetPhase(index int) (*models.VelocityPhase, error) {
	const op = "playback.GetPhase"
	if index < 0 || index >= c.total {
		return nil, flowerr.New(flowerr.InvalidInput, op, "phase %d outside [0, %d)", index, c.total)
	}

	c.mu.Lock()
	if v, ok := c.lru.Get(index); ok {
		c.stats.Hits++
		c.mu.Unlock()
		return v.(*models.VelocityPhase), nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	v, err, _ := c.flights.Do(strconv.Itoa(index), func() (interface{}, error) {
		return c.load(op, index)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.VelocityPhase), nil
}

func (c *PhaseCache) load(op string, index int) (phase *models.VelocityPhase, err error) {
	defer flowerr.Recover(op, &err)

	// a flight for this index may have completed since the miss
	c.mu.Lock()
	if v, ok := c.lru.Peek(index); ok {
		c.mu.Unlock()
		return v.(*models.VelocityPhase), nil
	}
	c.mu.Unlock()

	phase, err = c.loader(index)
	if err != nil {
		kind := flowerr.KindOf(err)
		if kind == 0 {
			kind = flowerr.InternalError
		}
		return nil, flowerr.Wrap(kind, op, err, "load phase %d", index)
	}
	if phase == nil || phase.Velocity == nil {
		return nil, flowerr.New(flowerr.InternalError, op, "loader returned no data for phase %d", index)
	}

	c.mu.Lock()
	c.lru.Add(index, phase)
	c.trim()
	c.stats.Loads++
	callback := c.onLoad
	c.mu.Unlock()

	c.log.Debugf("loaded phase %d", index)
	if callback != nil {
		callback(index)
	}
	return phase, nil
}

// IsCached reports whether the phase is resident without touching its
// recency.
func (c *PhaseCache) IsCached(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(index)
}

// CachedPhaseCount returns the number of resident phases.
func (c *PhaseCache) CachedPhaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedPhases returns the resident phase indices from least to most
// recently used.
func (c *PhaseCache) CachedPhases() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.lru.Keys()
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = k.(int)
	}
	return out
}

// TotalPhases returns the number of phases the loader can produce.
func (c *PhaseCache) TotalPhases() int {
	return c.total
}

// WindowSize returns the maximum number of resident phases.
func (c *PhaseCache) WindowSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// SetWindowSize changes the window, evicting least recently used phases if
// it shrinks.
func (c *PhaseCache) SetWindowSize(n int) error {
	if n < 1 {
		return flowerr.New(flowerr.InvalidInput, "playback.SetWindowSize", "window size must be at least 1, got %d", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = n
	c.trim()
	return nil
}

// MemoryUsage approximates the bytes held by resident phases.
func (c *PhaseCache) MemoryUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := int64(0)
	for _, k := range c.lru.Keys() {
		if v, ok := c.lru.Peek(k); ok {
			total += v.(*models.VelocityPhase).MemoryUsage()
		}
	}
	return total
}

// Clear drops every resident phase. Cleared phases are not counted as
// evictions.
func (c *PhaseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reset(); err != nil {
		// only reachable with a non-positive size, which NewPhaseCache rejects
		panic(fmt.Sprintf("playback: reset cache: %v", err))
	}
}

// Stats returns a snapshot of the counters.
func (c *PhaseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SetLoadCallback registers fn to be called after each phase is loaded. It
// runs on the loading goroutine without the cache lock held.
func (c *PhaseCache) SetLoadCallback(fn func(index int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoad = fn
}

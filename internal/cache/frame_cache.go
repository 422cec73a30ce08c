// Package cache provides an in-memory frame cache with a rolling window.
//
// The cache keeps sub-satellite frames for [now, now+horizon] continuously.
// A background worker generates frames at the leading edge and evicts expired
// entries from the trailing edge. When the TLE dataset changes, the cache is
// rebuilt gracefully without interrupting reads.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/propagation"
	"github.com/skywatch/trackd/internal/tle"
)

// Config holds cache configuration loaded from the environment.
type Config struct {
	Step        time.Duration // frame interval (default: 5s)
	Horizon     time.Duration // how far ahead to cache (default: 600s)
	GracePeriod time.Duration // TLE cutover grace period (default: 30s)
	Buffer      time.Duration // keep entries this long past expiration (default: 60s)
}

// entry wraps a frame with generation metadata.
type entry struct {
	Frame       *propagation.Frame
	GeneratedAt time.Time
}

// FrameCache is an in-memory cache of sub-satellite frames with a rolling
// window. Safe for concurrent use by multiple goroutines.
type FrameCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*entry

	config Config
	prop   *propagation.Propagator
	store  *tle.Store
	logger *slog.Logger

	// Track current TLE dataset for change detection.
	currentFetchedAt time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// Cutover state.
	inGracePeriod atomic.Bool
}

// NewFrameCache creates a new frame cache.
func NewFrameCache(config Config, prop *propagation.Propagator, store *tle.Store, logger *slog.Logger) *FrameCache {
	logger.Info("cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
		"grace_period_seconds", config.GracePeriod.Seconds(),
	)

	return &FrameCache{
		entries: make(map[time.Time]*entry),
		config:  config,
		prop:    prop,
		store:   store,
		logger:  logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary so cache
// lookups hit consistently. Always converts to UTC first; SGP4 and GMST
// expect UTC components.
func (c *FrameCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Get returns the frame for the given timestamp, or nil if not cached.
// The timestamp is rounded to the step boundary.
func (c *FrameCache) Get(t time.Time) *propagation.Frame {
	key := c.RoundToStep(t)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return e.Frame
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// GetRecent returns up to count frames before (and including) time t,
// ordered oldest-first. Used to build ground-track trails.
func (c *FrameCache) GetRecent(t time.Time, count int) []*propagation.Frame {
	if count <= 0 {
		return nil
	}

	key := c.RoundToStep(t)

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*propagation.Frame, 0, count)
	for i := count - 1; i >= 0; i-- {
		ts := key.Add(-time.Duration(i) * c.config.Step)
		if e, ok := c.entries[ts]; ok {
			result = append(result, e.Frame)
		}
	}
	return result
}

// GetLatest returns the frame closest to (but not after) the current time.
func (c *FrameCache) GetLatest() *propagation.Frame {
	now := c.RoundToStep(time.Now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Walk backwards from now to find the most recent entry.
	for i := 0; i < 10; i++ {
		key := now.Add(-time.Duration(i) * c.config.Step)
		if e, ok := c.entries[key]; ok {
			c.hits.Add(1)
			metrics.IncCacheHits()
			return e.Frame
		}
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// put stores a frame in the cache. Caller must not hold mu.
func (c *FrameCache) put(fr *propagation.Frame) {
	key := c.RoundToStep(fr.Timestamp)
	e := &entry{
		Frame:       fr,
		GeneratedAt: time.Now(),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	c.updateMetrics()
}

// evictExpired removes entries older than now - buffer.
func (c *FrameCache) evictExpired() int {
	cutoff := time.Now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}

	return removed
}

// replaceAll atomically replaces all cache entries (used during TLE cutover).
func (c *FrameCache) replaceAll(newEntries map[time.Time]*entry) {
	c.mu.Lock()
	c.entries = newEntries
	c.mu.Unlock()
	c.updateMetrics()
}

// Stats returns current cache statistics.
func (c *FrameCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)

	var oldest, newest time.Time
	for ts := range c.entries {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		if newest.IsZero() || ts.After(newest) {
			newest = ts
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:         count,
		SizeBytes:       c.estimateSizeBytes(),
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		InGracePeriod:   c.inGracePeriod.Load(),
	}
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries         int
	SizeBytes       int64
	OldestTimestamp time.Time
	NewestTimestamp time.Time
	Hits            int64
	Misses          int64
	Evictions       int64
	InGracePeriod   bool
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func (c *FrameCache) estimateSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, e := range c.entries {
		if e.Frame == nil {
			continue
		}
		satSize := int64(len(e.Frame.Satellites)) * int64(unsafe.Sizeof(propagation.SubSatellite{}))
		// Frame overhead: Timestamp(24) + slice header(24).
		frOverhead := int64(48)
		// entry overhead: pointer(8) + GeneratedAt(24).
		entryOverhead := int64(32)
		total += satSize + frOverhead + entryOverhead
	}

	// Map overhead (rough: 8 bytes per bucket).
	total += int64(len(c.entries)) * 8

	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *FrameCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
	metrics.SetCacheSizeBytes(c.estimateSizeBytes())
}

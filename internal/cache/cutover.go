package cache

import (
	"context"
	"time"

	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/propagation"
)

// tleChanged reports whether the store holds a newer dataset than the one
// the cache was built from.
func (c *FrameCache) tleChanged() bool {
	ds := c.store.Get()
	return ds != nil && !ds.FetchedAt.Equal(c.currentFetchedAt)
}

// performCutover rebuilds the window against the new dataset and swaps it in
// atomically. Reads keep hitting the old window for the whole rebuild; the
// grace-period flag tells /api/v1/cache/stats that served frames may lag the
// dataset briefly.
func (c *FrameCache) performCutover(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	c.logger.Info("TLE cutover starting",
		"old_dataset_fetched_at", c.currentFetchedAt.UTC().Format(time.RFC3339),
		"new_dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	c.inGracePeriod.Store(true)
	metrics.SetCacheGracePeriodActive(true)
	defer func() {
		c.inGracePeriod.Store(false)
		metrics.SetCacheGracePeriodActive(false)
	}()

	start := time.Now()
	rebuilt := make(map[time.Time]*entry)
	generated := c.forEachWindowFrame(ctx, c.RoundToStep(time.Now()), func(fr *propagation.Frame) {
		rebuilt[c.RoundToStep(fr.Timestamp)] = &entry{Frame: fr, GeneratedAt: time.Now()}
	})
	if generated < 0 {
		c.logger.Warn("cutover cancelled by context")
		return
	}

	c.replaceAll(rebuilt)
	c.currentFetchedAt = ds.FetchedAt

	elapsed := time.Since(start)
	metrics.ObserveCacheRegenerationDuration(elapsed)
	c.logger.Info("TLE cutover complete",
		"duration_ms", elapsed.Milliseconds(),
		"entries_replaced", generated,
	)
}

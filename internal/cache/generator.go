package cache

import (
	"context"
	"time"

	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/propagation"
)

// Start runs the background maintenance loop until ctx is cancelled. After
// an initial warmup that fills [now, now+horizon], every step it extends the
// window at the leading edge, drops entries past the trailing buffer, and
// watches for TLE dataset swaps.
func (c *FrameCache) Start(ctx context.Context) {
	if !c.awaitDataset(ctx) {
		return
	}

	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache generator stopped")
			return
		case <-ticker.C:
			if c.tleChanged() {
				c.performCutover(ctx)
				continue
			}
			c.extendLeadingEdge(ctx)
			c.evictExpired()
		}
	}
}

// awaitDataset polls until the store holds a TLE dataset. Reports false on
// cancellation.
func (c *FrameCache) awaitDataset(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for TLE data...")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for c.store.Get() == nil {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	c.logger.Info("TLE data available, starting cache warmup")
	return true
}

// forEachWindowFrame propagates one frame per step across [from, from+horizon]
// and hands each to visit. Failed steps are counted and skipped. Returns the
// number of frames produced, or -1 if ctx was cancelled mid-window.
func (c *FrameCache) forEachWindowFrame(ctx context.Context, from time.Time, visit func(*propagation.Frame)) int {
	produced := 0
	end := from.Add(c.config.Horizon)

	for ts := from; !ts.After(end); ts = ts.Add(c.config.Step) {
		if ctx.Err() != nil {
			return -1
		}

		fr, err := c.prop.PropagateToTime(ctx, ts)
		if err != nil {
			c.logger.Warn("window frame generation failed",
				"timestamp", ts.UTC().Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}

		visit(fr)
		produced++
	}
	return produced
}

// warmup fills the cache for [now, now+horizon].
func (c *FrameCache) warmup(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}
	c.currentFetchedAt = ds.FetchedAt

	from := c.RoundToStep(time.Now())
	c.logger.Info("cache warmup starting",
		"from", from.UTC().Format(time.RFC3339),
		"to", from.Add(c.config.Horizon).UTC().Format(time.RFC3339),
	)

	start := time.Now()
	generated := c.forEachWindowFrame(ctx, from, c.put)
	if generated < 0 {
		return
	}

	c.logger.Info("cache warmup complete",
		"generated", generated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// extendLeadingEdge generates the frame entering the window this step.
func (c *FrameCache) extendLeadingEdge(ctx context.Context) {
	target := c.RoundToStep(time.Now().Add(c.config.Horizon))
	if c.Get(target) != nil {
		return
	}

	start := time.Now()
	fr, err := c.prop.PropagateToTime(ctx, target)
	if err != nil {
		c.logger.Warn("leading edge generation failed",
			"timestamp", target.UTC().Format(time.RFC3339),
			"error", err,
		)
		metrics.IncCacheRegenerationErrors()
		return
	}

	c.put(fr)
	elapsed := time.Since(start)
	metrics.ObserveCacheRegenerationDuration(elapsed)
	c.logger.Debug("leading edge generated",
		"timestamp", target.UTC().Format(time.RFC3339),
		"duration_ms", elapsed.Milliseconds(),
	)
}

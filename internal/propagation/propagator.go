package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/tle"
)

// ErrNoDataset is returned when propagation is requested before any TLE
// dataset has been loaded.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// sgp4Cache pairs preinitialized SGP4 propagators with the dataset they were
// built from. Immutable once published; safe for concurrent reads.
type sgp4Cache struct {
	props     map[int]*SGP4
	fetchedAt time.Time
}

// Propagator turns the current TLE dataset into frames of geodetic
// sub-satellite points.
type Propagator struct {
	store  *tle.Store
	pool   *WorkerPool
	config Config
	logger *slog.Logger

	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache rebuilds
}

func NewPropagator(store *tle.Store, config Config, logger *slog.Logger) *Propagator {
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// cachedProps returns SGP4 propagators for ds, rebuilding the cache when the
// dataset has changed since the last build. Double-checked: the fast path is
// a single atomic load.
func (p *Propagator) cachedProps(ds *tle.Dataset) map[int]*SGP4 {
	if c := p.sgp4.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.props
	}

	p.sgp4Mu.Lock()
	defer p.sgp4Mu.Unlock()
	if c := p.sgp4.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.props
	}

	c := buildSGP4Cache(ds, p.logger)
	p.sgp4.Store(c)
	return c.props
}

func buildSGP4Cache(ds *tle.Dataset, logger *slog.Logger) *sgp4Cache {
	props := make(map[int]*SGP4, len(ds.Satellites))
	skipped := 0

	for _, e := range ds.Satellites {
		if _, dup := props[e.CatalogID]; dup {
			continue
		}
		sp, err := NewSGP4(e.Line1, e.Line2, e.CatalogID)
		if err != nil {
			logger.Warn("sgp4 cache init failed", "catalog_id", e.CatalogID, "error", err)
			skipped++
			continue
		}
		props[e.CatalogID] = sp
	}

	logger.Info("sgp4 propagator cache rebuilt",
		"cached", len(props),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	return &sgp4Cache{props: props, fetchedAt: ds.FetchedAt}
}

// PropagateToTime generates one frame of sub-satellite points at targetTime
// from the current dataset.
func (p *Propagator) PropagateToTime(ctx context.Context, targetTime time.Time) (*Frame, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, ds.Satellites, targetTime, p.cachedProps(ds))
	elapsed := time.Since(start)

	metrics.RecordPropagation(elapsed, successCount, errorCount)
	p.logger.Debug("frame propagated",
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"success", successCount,
		"errors", errorCount,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &Frame{Timestamp: targetTime, Satellites: positions}, nil
}

// GenerateFrames produces one frame per step across [startTime,
// startTime+horizon], both ends included.
func (p *Propagator) GenerateFrames(ctx context.Context, startTime time.Time) ([]*Frame, error) {
	if p.store.Get() == nil {
		return nil, ErrNoDataset
	}

	end := startTime.Add(p.config.Horizon)
	frames := make([]*Frame, 0, int(p.config.Horizon/p.config.Step)+1)

	for ts := startTime; !ts.After(end); ts = ts.Add(p.config.Step) {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		fr, err := p.PropagateToTime(ctx, ts)
		if err != nil {
			return frames, fmt.Errorf("frame at %s: %w", ts.Format(time.RFC3339), err)
		}
		frames = append(frames, fr)
	}

	return frames, nil
}

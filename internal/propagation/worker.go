package propagation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skywatch/trackd/internal/geo"
	"github.com/skywatch/trackd/internal/tle"
	"github.com/skywatch/trackd/internal/transform"
)

// WorkerPool fans SGP4 propagation for many satellites out over goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{workers: workers, logger: logger}
}

// PropagateBatch propagates every entry to targetTime and returns the
// geodetic sub-points plus success and error counts. Workers claim entries
// off a shared atomic cursor, so there is no feeder goroutine to drain on
// cancellation. Satellites that fail to propagate are logged and skipped;
// props supplies preinitialized propagators keyed by catalog ID, with nil or
// missing keys initialized on the fly.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, entries []tle.Entry, targetTime time.Time, props map[int]*SGP4) ([]SubSatellite, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	// GMST depends only on the instant, not the satellite.
	gmst := transform.GMST(targetTime)

	workers := wp.workers
	if workers > len(entries) {
		workers = len(entries)
	}

	var (
		cursor     atomic.Int64
		mu         sync.Mutex
		positions  = make([]SubSatellite, 0, len(entries))
		errorCount int
		wg         sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				i := int(cursor.Add(1)) - 1
				if i >= len(entries) {
					return
				}
				e := entries[i]

				pos, err := propagateEntry(e, targetTime, gmst, props[e.CatalogID])

				mu.Lock()
				if err != nil {
					errorCount++
					wp.logger.Warn("propagation failed", "catalog_id", e.CatalogID, "error", err)
				} else {
					positions = append(positions, pos)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return positions, len(positions), errorCount
}

// propagateEntry runs SGP4 and the TEME→ECEF→geodetic chain for one satellite.
func propagateEntry(e tle.Entry, t time.Time, gmst float64, prop *SGP4) (SubSatellite, error) {
	if prop == nil {
		var err error
		prop, err = NewSGP4(e.Line1, e.Line2, e.CatalogID)
		if err != nil {
			return SubSatellite{}, err
		}
	}

	teme, err := prop.PropagateTEME(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	if err != nil {
		return SubSatellite{}, err
	}

	ecef := transform.TEMEToECEFWithGMST(teme, gmst)
	g := transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z)

	return SubSatellite{
		CatalogID: e.CatalogID,
		LatDeg:    g.LatDeg,
		LonDeg:    geo.NormalizeLongitude(g.LonDeg),
		AltM:      g.AltM,
		VelKmS:    teme.SpeedKmS(),
	}, nil
}

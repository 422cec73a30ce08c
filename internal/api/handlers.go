package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/skywatch/trackd/internal/cache"
	"github.com/skywatch/trackd/internal/geo"
	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/passes"
	"github.com/skywatch/trackd/internal/tle"
	"github.com/skywatch/trackd/internal/track"
	"github.com/skywatch/trackd/internal/transform"
)

// maxTrackPoints bounds the per-request ground-track sample count so a single
// request cannot consume unbounded CPU.
const maxTrackPoints = 10000

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseAt parses the optional "at" query parameter (RFC 3339), defaulting to
// the current time.
func parseAt(r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return time.Now().UTC(), true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseFloat(r *http.Request, name string, def float64) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// lookupEntry resolves a catalog ID against the current dataset.
func lookupEntry(w http.ResponseWriter, store *tle.Store, catalogID int) *tle.Entry {
	if store.Get() == nil {
		writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
		return nil
	}
	e := store.Lookup(catalogID)
	if e == nil {
		writeError(w, http.StatusNotFound, "unknown catalog id")
		return nil
	}
	return e
}

// subpointHandler serves GET /api/v1/subpoint/{catalog_id}?at=RFC3339.
func subpointHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalogID, err := strconv.Atoi(r.PathValue("catalog_id"))
		if err != nil || catalogID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid catalog id")
			return
		}

		at, ok := parseAt(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid at parameter, must be RFC 3339")
			return
		}

		e := lookupEntry(w, store, catalogID)
		if e == nil {
			return
		}

		sp := track.SubSatellitePoint(catalogID, e.Line1, e.Line2, at)

		// The zero sub-point is the documented degraded response; clients
		// render a default marker for it.
		writeJSON(w, http.StatusOK, map[string]any{
			"catalog_id": catalogID,
			"at":         at.Format(time.RFC3339),
			"position":   sp,
			"degraded":   sp == track.SubPoint{},
		})
	}
}

// trackHandler serves GET /api/v1/track/{catalog_id}?minutes=90&step=30&at=RFC3339.
// The response is a list of dateline-safe polyline segments.
func trackHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalogID, err := strconv.Atoi(r.PathValue("catalog_id"))
		if err != nil || catalogID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid catalog id")
			return
		}

		minutes := 90
		if v := r.URL.Query().Get("minutes"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 1440 {
				writeError(w, http.StatusBadRequest, "invalid minutes parameter, must be 1-1440")
				return
			}
			minutes = n
		}

		step := 30
		if v := r.URL.Query().Get("step"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 300 {
				writeError(w, http.StatusBadRequest, "invalid step parameter, must be 1-300")
				return
			}
			step = n
		}

		// CPU budget: reject requests that would sample too many points.
		numPoints := minutes*60/step + 1
		if numPoints > maxTrackPoints {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":            "requested track exceeds the position budget, reduce minutes or increase step",
				"max_positions":    maxTrackPoints,
				"requested_points": numPoints,
			})
			return
		}

		at, ok := parseAt(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid at parameter, must be RFC 3339")
			return
		}

		e := lookupEntry(w, store, catalogID)
		if e == nil {
			return
		}

		segments := track.GroundTrack(catalogID, e.Line1, e.Line2, at,
			time.Duration(minutes)*time.Minute, time.Duration(step)*time.Second)
		if segments == nil {
			writeError(w, http.StatusUnprocessableEntity, "could not propagate ground track")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"catalog_id": catalogID,
			"start":      at.Format(time.RFC3339),
			"segments":   segments,
		})
	}
}

// lookAnglesHandler serves GET /api/v1/lookangles?catalog_id=&lat=&lon=&alt=&at=.
func lookAnglesHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalogID, err := strconv.Atoi(r.URL.Query().Get("catalog_id"))
		if err != nil || catalogID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid catalog_id parameter")
			return
		}

		station, ok := parseObserver(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid lat/lon/alt parameters")
			return
		}

		at, ok := parseAt(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid at parameter, must be RFC 3339")
			return
		}

		e := lookupEntry(w, store, catalogID)
		if e == nil {
			return
		}

		la := track.ComputeLookAngles(e.Line1, e.Line2, station, at)
		if la == nil {
			writeError(w, http.StatusUnprocessableEntity, "look angles unavailable, check station latitude and TLE data")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"catalog_id":  catalogID,
			"at":          at.Format(time.RFC3339),
			"look_angles": la,
		})
	}
}

// visibilityHandler serves
// GET /api/v1/visibility?catalog_id=&lat=&lon=&alt=&min_elevation=&at=.
func visibilityHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalogID, err := strconv.Atoi(r.URL.Query().Get("catalog_id"))
		if err != nil || catalogID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid catalog_id parameter")
			return
		}

		observer, ok := parseObserver(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid lat/lon/alt parameters")
			return
		}

		minElev, ok := parseFloat(r, "min_elevation", 0)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid min_elevation parameter")
			return
		}

		at, ok := parseAt(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid at parameter, must be RFC 3339")
			return
		}

		e := lookupEntry(w, store, catalogID)
		if e == nil {
			return
		}

		visible := track.IsVisible(e.Line1, e.Line2, at, observer, minElev)

		writeJSON(w, http.StatusOK, map[string]any{
			"catalog_id":    catalogID,
			"at":            at.Format(time.RFC3339),
			"min_elevation": minElev,
			"visible":       visible,
		})
	}
}

// parseObserver reads lat/lon/alt query parameters into a geodetic point.
// lat is required; lon defaults to 0 only if present-and-valid rules pass.
func parseObserver(r *http.Request) (*geo.GeodeticPoint, bool) {
	lat, ok := parseFloat(r, "lat", 0)
	if !ok || r.URL.Query().Get("lat") == "" {
		return nil, false
	}
	lon, ok := parseFloat(r, "lon", 0)
	if !ok || r.URL.Query().Get("lon") == "" {
		return nil, false
	}
	alt, ok := parseFloat(r, "alt", 0)
	if !ok {
		return nil, false
	}
	return &geo.GeodeticPoint{LatDeg: lat, LonDeg: lon, AltM: alt}, true
}

// passesHandler serves GET /api/v1/passes?lat=&lon=&alt=&hours=&min_elevation=&catalog_id=.
// Without catalog_id it predicts for every satellite in the dataset.
func passesHandler(logger *slog.Logger, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		observer, ok := parseObserver(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid lat/lon/alt parameters")
			return
		}
		if observer.LatDeg < -90 || observer.LatDeg > 90 {
			writeError(w, http.StatusBadRequest, "lat must be in [-90, 90]")
			return
		}

		hours, ok := parseFloat(r, "hours", 24)
		if !ok || hours < 1 || hours > 72 {
			writeError(w, http.StatusBadRequest, "invalid hours parameter, must be 1-72")
			return
		}

		minElev, ok := parseFloat(r, "min_elevation", 0)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid min_elevation parameter")
			return
		}

		ds := store.Get()
		if ds == nil {
			writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
			return
		}

		entries := ds.Satellites
		if v := r.URL.Query().Get("catalog_id"); v != "" {
			catalogID, err := strconv.Atoi(v)
			if err != nil || catalogID <= 0 {
				writeError(w, http.StatusBadRequest, "invalid catalog_id parameter")
				return
			}
			e := store.Lookup(catalogID)
			if e == nil {
				writeError(w, http.StatusNotFound, "unknown catalog id")
				return
			}
			entries = []tle.Entry{*e}
		}

		req := passes.Request{
			Observer:     transform.NewObserver(observer.LatDeg, geo.NormalizeLongitude(observer.LonDeg), observer.AltM),
			Entries:      entries,
			Start:        time.Now().UTC(),
			HorizonHours: hours,
			MinElevation: minElev,
			MaxPasses:    10,
		}

		results := passes.Predict(r.Context(), req)

		writeJSON(w, http.StatusOK, map[string]any{
			"observer":   observer,
			"hours":      hours,
			"satellites": results,
		})
	}
}

// tleMetadataHandler serves GET /api/v1/tle/metadata. A dataset older than
// maxAge is flagged stale so clients know a refresh is overdue.
func tleMetadataHandler(store *tle.Store, maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Get()
		if ds == nil {
			writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
			return
		}

		age := time.Since(ds.FetchedAt)
		writeJSON(w, http.StatusOK, map[string]any{
			"source":          ds.Source,
			"fetched_at":      ds.FetchedAt.UTC().Format(time.RFC3339),
			"age_seconds":     int(age.Seconds()),
			"stale":           maxAge > 0 && age > maxAge,
			"satellite_count": len(ds.Satellites),
			"epoch_min":       ds.EpochRange.Min.UTC().Format(time.RFC3339),
			"epoch_max":       ds.EpochRange.Max.UTC().Format(time.RFC3339),
		})
	}
}

// tleFetchHandler serves POST /api/v1/tle/fetch: refreshes the dataset from
// the configured sources and persists it to the on-disk cache.
func tleFetchHandler(logger *slog.Logger, store *tle.Store, fetcher *tle.Fetcher, diskCache *tle.Cache, cfg TLEConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.EnableFetch {
			writeError(w, http.StatusForbidden, "TLE fetching is disabled")
			return
		}

		// One refresh at a time; concurrent POSTs queue up here.
		store.Lock()
		defer store.Unlock()

		data, err := fetcher.Fetch(r.Context())
		if err != nil {
			metrics.IncTLEFetch("error")
			logger.Error("TLE fetch failed", "error", err)
			writeError(w, http.StatusBadGateway, "TLE fetch failed")
			return
		}

		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil || len(entries) == 0 {
			metrics.IncTLEFetch("parse_error")
			logger.Error("TLE parse failed", "error", err)
			writeError(w, http.StatusBadGateway, "fetched TLE data could not be parsed")
			return
		}

		now := time.Now().UTC()
		store.Set(&tle.Dataset{
			Source:     fetcher.SourceURL(),
			FetchedAt:  now,
			EpochRange: epochRange(entries),
			Satellites: entries,
		})
		metrics.SetTLEDatasetCount(len(entries))
		metrics.IncTLEFetch("success")

		if err := diskCache.Write(data, now); err != nil {
			logger.Warn("TLE cache write failed", "error", err)
		}

		logger.Info("TLE dataset refreshed", "count", len(entries))
		writeJSON(w, http.StatusOK, map[string]any{
			"satellite_count": len(entries),
			"fetched_at":      now.Format(time.RFC3339),
		})
	}
}

func epochRange(entries []tle.Entry) tle.EpochRange {
	er := tle.EpochRange{Min: entries[0].Epoch, Max: entries[0].Epoch}
	for _, e := range entries[1:] {
		if e.Epoch.Before(er.Min) {
			er.Min = e.Epoch
		}
		if e.Epoch.After(er.Max) {
			er.Max = e.Epoch
		}
	}
	return er
}

// cacheStatsHandler serves GET /api/v1/cache/stats.
func cacheStatsHandler(frCache *cache.FrameCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := frCache.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"entries":          stats.Entries,
			"size_bytes":       stats.SizeBytes,
			"oldest_timestamp": stats.OldestTimestamp.UTC().Format(time.RFC3339),
			"newest_timestamp": stats.NewestTimestamp.UTC().Format(time.RFC3339),
			"hits":             stats.Hits,
			"misses":           stats.Misses,
			"evictions":        stats.Evictions,
			"in_grace_period":  stats.InGracePeriod,
		})
	}
}

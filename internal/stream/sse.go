// Package stream implements Server-Sent Events (SSE) streaming of satellite
// position frames. Clients connect via GET /api/v1/stream/positions and
// receive a continuous stream of geodetic sub-satellite points from the frame
// cache, ready for map rendering.
//
// SSE message format:
//
//	data: {"type":"frame_batch","t":"2026-08-29T04:00:00Z","sat":[...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","dataset_epoch":"...","tle_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent
// timeout. Reconnecting clients receive a fresh metadata message on each
// connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/skywatch/trackd/internal/cache"
	"github.com/skywatch/trackd/internal/httputil"
	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/propagation"
	"github.com/skywatch/trackd/internal/tle"
)

// Config holds streaming configuration loaded from the environment.
type Config struct {
	MaxConcurrentPerIP int           // max concurrent streams per IP (default: 10)
	KeepaliveInterval  time.Duration // keep-alive ping interval (default: 30s)
	TrustProxy         bool          // trust X-Forwarded-For for client IPs
}

// Handler manages SSE streaming connections.
type Handler struct {
	cache   *cache.FrameCache
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(frCache *cache.FrameCache, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		cache:   frCache,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

func (h *Handler) clientIP(r *http.Request) string {
	return httputil.ClientIP(r, h.config.TrustProxy)
}

// streamParams are the validated per-connection query parameters.
type streamParams struct {
	step  int // seconds between frame batches, 1-60
	trail int // past sub-points per satellite, 0-120
}

// rejectJSON writes a JSON error before the stream has been established.
func rejectJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseStreamParams(r *http.Request) (streamParams, string) {
	p := streamParams{step: 5, trail: 20}

	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			return p, "invalid step parameter, must be 1-60"
		}
		p.step = n
	}
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			return p, "invalid trail parameter, must be 0-120"
		}
		p.trail = n
	}
	return p, ""
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?step=5&trail=20
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	params, badParam := parseStreamParams(r)
	if badParam != "" {
		rejectJSON(w, http.StatusBadRequest, badParam)
		return
	}

	ip := h.clientIP(r)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		rejectJSON(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	connectedAt := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", params.step,
		"trail", params.trail,
	)
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(connectedAt).Seconds()),
		)
	}()

	c, ok := h.openStream(w)
	if !ok {
		return
	}

	h.serve(r, c, params)
}

// openStream upgrades the response to an SSE stream: headers, flusher check,
// cleared write deadline, and the jittered retry hint.
func (h *Handler) openStream(w http.ResponseWriter) (*client, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		rejectJSON(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The server's WriteTimeout would kill a long-lived stream; clear it for
	// this connection and let per-write deadlines take over.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	return &client{w: w, flusher: flusher, rc: rc, logger: h.logger}, true
}

// serve sends metadata and then frame batches until the client goes away.
func (h *Handler) serve(r *http.Request, c *client, params streamParams) {
	ip := h.clientIP(r)
	c.ip = ip

	if ds := h.store.Get(); ds != nil {
		meta := metadataMessage{
			Type:         "metadata",
			DatasetEpoch: ds.FetchedAt.UTC().Format(time.RFC3339),
			TLEAge:       int(time.Since(ds.FetchedAt).Seconds()),
		}
		if err := c.sendJSON(meta); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	frameTicker := time.NewTicker(time.Duration(params.step) * time.Second)
	defer frameTicker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case now := <-frameTicker.C:
			fr := h.cache.Get(now)
			if fr == nil {
				metrics.IncStreamErrors("cache_miss")
				h.logger.Debug("stream cache miss",
					"timestamp", h.cache.RoundToStep(now).UTC().Format(time.RFC3339),
					"remote_ip", ip,
				)
				continue
			}

			var trailFrames []*propagation.Frame
			if params.trail > 0 {
				trailFrames = h.cache.GetRecent(now, params.trail)
			}

			data, err := json.Marshal(buildBatchMessage(fr, trailFrames))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}

			// Data just went out; push the next keepalive back.
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildBatchMessage formats a frame into the SSE batch payload. If
// trailFrames is non-empty, each satellite includes past sub-points
// (oldest first) for ground-track trails.
func buildBatchMessage(fr *propagation.Frame, trailFrames []*propagation.Frame) frameBatchMessage {
	// Index past frames: catalog ID -> trail lat/lon pairs, oldest first.
	var trailIndex map[int][][2]float64
	if len(trailFrames) > 0 {
		trailIndex = make(map[int][][2]float64, len(fr.Satellites))
		for _, tfr := range trailFrames {
			for _, s := range tfr.Satellites {
				trailIndex[s.CatalogID] = append(trailIndex[s.CatalogID], [2]float64{s.LatDeg, s.LonDeg})
			}
		}
	}

	sats := make([]satPayload, len(fr.Satellites))
	for i, s := range fr.Satellites {
		sats[i] = satPayload{
			ID:  s.CatalogID,
			Lat: s.LatDeg,
			Lon: s.LonDeg,
			Alt: s.AltM,
			Vel: s.VelKmS,
			Tr:  trailIndex[s.CatalogID],
		}
	}
	return frameBatchMessage{
		Type: "frame_batch",
		T:    fr.Timestamp.UTC().Format(time.RFC3339),
		Sat:  sats,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type         string `json:"type"`
	DatasetEpoch string `json:"dataset_epoch"`
	TLEAge       int    `json:"tle_age_seconds"`
}

type frameBatchMessage struct {
	Type string       `json:"type"`
	T    string       `json:"t"`
	Sat  []satPayload `json:"sat"`
}

type satPayload struct {
	ID  int          `json:"id"`
	Lat float64      `json:"lat"`
	Lon float64      `json:"lon"`
	Alt float64      `json:"alt"`
	Vel float64      `json:"vel"`
	Tr  [][2]float64 `json:"tr,omitempty"`
}

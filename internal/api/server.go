// Package api wires the HTTP surface of the tracking service: tracking math
// endpoints, TLE metadata and refresh, cache stats, and the SSE stream.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/skywatch/trackd/internal/auth"
	"github.com/skywatch/trackd/internal/cache"
	"github.com/skywatch/trackd/internal/health"
	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/stream"
	"github.com/skywatch/trackd/internal/tle"
)

// TLEConfig holds TLE ingestion configuration.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer assembles the route table and middleware chain into a configured
// HTTP server. The chain runs metrics, then request logging, then auth, so
// rejected requests still show up in both.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, store *tle.Store, tleCfg TLEConfig, frCache *cache.FrameCache, streamHandler *stream.Handler) *Server {
	mux := routes(logger, store, tleCfg, frCache, streamHandler)

	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = requestLogger(logger, handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func routes(logger *slog.Logger, store *tle.Store, tleCfg TLEConfig, frCache *cache.FrameCache, streamHandler *stream.Handler) *http.ServeMux {
	fetcher := tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraSourceURLs...)
	diskCache := tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return store.Get() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/subpoint/{catalog_id}", subpointHandler(logger, store))
	mux.HandleFunc("GET /api/v1/track/{catalog_id}", trackHandler(logger, store))
	mux.HandleFunc("GET /api/v1/lookangles", lookAnglesHandler(logger, store))
	mux.HandleFunc("GET /api/v1/visibility", visibilityHandler(logger, store))
	mux.HandleFunc("GET /api/v1/passes", passesHandler(logger, store))

	mux.HandleFunc("GET /api/v1/tle/metadata", tleMetadataHandler(store, tleCfg.MaxAge))
	mux.HandleFunc("POST /api/v1/tle/fetch", tleFetchHandler(logger, store, fetcher, diskCache, tleCfg))

	mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(frCache))
	mux.HandleFunc("GET /api/v1/stream/positions", streamHandler.HandlePositions)

	return mux
}

// HTTPServer exposes the underlying *http.Server for shutdown control.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one line per request. Probe endpoints are scraped every
// few seconds, so they log at debug to keep the INFO stream readable.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			level = slog.LevelDebug
		}
		logger.Log(r.Context(), level, "request",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_ip", r.RemoteAddr,
		)
	})
}

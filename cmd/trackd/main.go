package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/ini.v1"

	"github.com/skywatch/trackd/internal/api"
	"github.com/skywatch/trackd/internal/auth"
	"github.com/skywatch/trackd/internal/cache"
	"github.com/skywatch/trackd/internal/metrics"
	"github.com/skywatch/trackd/internal/propagation"
	"github.com/skywatch/trackd/internal/stream"
	"github.com/skywatch/trackd/internal/tle"
)

// Configuration precedence: built-in defaults, then the INI config file
// (TRACKD_CONFIG_FILE), then TRACKD_* environment variables.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfgFile := loadConfigFile(logger)

	addr := iniString(cfgFile, "server", "addr", ":8080")
	if v := os.Getenv("TRACKD_HTTP_ADDR"); v != "" {
		addr = v
	}

	authCfg, err := loadAuthConfig(logger, cfgFile)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	tleCfg := loadTLEConfig(logger, cfgFile)
	store := tle.NewStore()
	tleCache := tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)

	// Attempt to load cached TLE data on startup.
	data, ts, err := tleCache.LoadLatest()
	if err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	} else {
		entries, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil {
			logger.Warn("failed to parse cached TLE data", "error", err)
		} else if len(entries) > 0 {
			minEpoch := entries[0].Epoch
			maxEpoch := entries[0].Epoch
			for _, e := range entries[1:] {
				if e.Epoch.Before(minEpoch) {
					minEpoch = e.Epoch
				}
				if e.Epoch.After(maxEpoch) {
					maxEpoch = e.Epoch
				}
			}

			store.Set(&tle.Dataset{
				Source:    "cache",
				FetchedAt: ts,
				EpochRange: tle.EpochRange{
					Min: minEpoch,
					Max: maxEpoch,
				},
				Satellites: entries,
			})
			metrics.SetTLEDatasetCount(len(entries))
			logger.Info("loaded TLE data from cache", "count", len(entries), "cached_at", ts.Format(time.RFC3339))
		}
	}

	propCfg := loadPropConfig(logger, cfgFile)
	prop := propagation.NewPropagator(store, propCfg, logger)
	metrics.SetPropagationWorkersActive(propCfg.Workers)

	cacheCfg := loadCacheConfig(logger, cfgFile, propCfg)
	frCache := cache.NewFrameCache(cacheCfg, prop, store, logger)

	streamCfg := loadStreamConfig(logger, cfgFile)
	streamHandler := stream.NewHandler(frCache, store, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, store, tleCfg, frCache, streamHandler)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start cache background worker.
	go frCache.Start(ctx)

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_fetch_enabled", tleCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadConfigFile reads the optional INI config file named by
// TRACKD_CONFIG_FILE. A missing variable means env-only configuration; a
// named but unreadable file is a hard error.
func loadConfigFile(logger *slog.Logger) *ini.File {
	path := os.Getenv("TRACKD_CONFIG_FILE")
	if path == "" {
		return nil
	}

	f, err := ini.Load(path)
	if err != nil {
		logger.Error("cannot load config file", "path", path, "error", err)
		os.Exit(1)
	}

	logger.Info("loaded config file", "path", path)
	return f
}

func iniString(f *ini.File, section, key, def string) string {
	if f == nil || !f.Section(section).HasKey(key) {
		return def
	}
	return f.Section(section).Key(key).String()
}

func iniInt(f *ini.File, section, key string, def int) int {
	if f == nil || !f.Section(section).HasKey(key) {
		return def
	}
	return f.Section(section).Key(key).MustInt(def)
}

func iniBool(f *ini.File, section, key string, def bool) bool {
	if f == nil || !f.Section(section).HasKey(key) {
		return def
	}
	return f.Section(section).Key(key).MustBool(def)
}

func loadAuthConfig(logger *slog.Logger, f *ini.File) (auth.Config, error) {
	cfg := auth.Config{
		Enabled: iniBool(f, "auth", "enabled", false),
		Token:   iniString(f, "auth", "token", ""),
	}

	enabledStr := os.Getenv("TRACKD_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("TRACKD_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if v := os.Getenv("TRACKD_AUTH_TOKEN"); v != "" {
		cfg.Token = v
	}

	if cfg.Enabled {
		if cfg.Token == "" {
			return cfg, errors.New("TRACKD_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCacheConfig(logger *slog.Logger, f *ini.File, propCfg propagation.Config) cache.Config {
	cfg := cache.Config{
		Step:        time.Duration(iniInt(f, "cache", "step_seconds", int(propCfg.Step.Seconds()))) * time.Second,
		Horizon:     time.Duration(iniInt(f, "cache", "horizon_seconds", int(propCfg.Horizon.Seconds()))) * time.Second,
		GracePeriod: time.Duration(iniInt(f, "cache", "grace_period_seconds", 30)) * time.Second,
		Buffer:      time.Duration(iniInt(f, "cache", "buffer_seconds", 60)) * time.Second,
	}

	if v := os.Getenv("TRACKD_CACHE_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_CACHE_STEP value, using propagation step", "value", v)
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRACKD_CACHE_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_CACHE_HORIZON value, using propagation horizon", "value", v)
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRACKD_CACHE_GRACE_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_CACHE_GRACE_PERIOD value, using default", "value", v, "default", 30)
		} else {
			cfg.GracePeriod = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRACKD_CACHE_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_CACHE_BUFFER value, using default", "value", v, "default", 60)
		} else {
			cfg.Buffer = time.Duration(n) * time.Second
		}
	}

	logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)

	return cfg
}

func loadPropConfig(logger *slog.Logger, f *ini.File) propagation.Config {
	cfg := propagation.Config{
		Workers: iniInt(f, "propagation", "workers", runtime.NumCPU()),
		Step:    time.Duration(iniInt(f, "propagation", "step_seconds", 5)) * time.Second,
		Horizon: time.Duration(iniInt(f, "propagation", "horizon_seconds", 600)) * time.Second,
	}

	if v := os.Getenv("TRACKD_PROP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_PROP_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("TRACKD_FRAME_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_FRAME_STEP value, using default", "value", v, "default", 5)
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRACKD_FRAME_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_FRAME_HORIZON value, using default", "value", v, "default", 600)
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger, f *ini.File) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: iniInt(f, "stream", "max_concurrent_per_ip", 10),
		KeepaliveInterval:  time.Duration(iniInt(f, "stream", "keepalive_seconds", 30)) * time.Second,
		TrustProxy:         iniBool(f, "stream", "trust_proxy", false),
	}

	if v := os.Getenv("TRACKD_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("TRACKD_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid TRACKD_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("TRACKD_STREAM_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid TRACKD_STREAM_TRUST_PROXY value, keeping current setting",
				"value", v, "trust_proxy", cfg.TrustProxy)
		} else {
			cfg.TrustProxy = b
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadTLEConfig(logger *slog.Logger, f *ini.File) api.TLEConfig {
	cfg := api.TLEConfig{
		EnableFetch: iniBool(f, "tle", "enable_fetch", true),
		SourceURL:   iniString(f, "tle", "source_url", ""),
		CacheDir:    iniString(f, "tle", "cache_dir", "/tmp/trackd/tle"),
		MaxFiles:    iniInt(f, "tle", "max_files", 5),
		MaxAge:      time.Duration(iniInt(f, "tle", "max_age_seconds", 86400)) * time.Second,
		ExtraSourceURLs: []string{
			// ISS (catalog 25544), a well-documented reference satellite.
			"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		},
	}

	if f != nil && f.Section("tle").HasKey("extra_urls") {
		cfg.ExtraSourceURLs = splitURLs(f.Section("tle").Key("extra_urls").String())
	}

	if v := os.Getenv("TRACKD_ENABLE_TLE_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid TRACKD_ENABLE_TLE_FETCH value, keeping current setting",
				"value", v, "enable_fetch", cfg.EnableFetch)
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("TRACKD_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("TRACKD_TLE_EXTRA_URLS"); v != "" {
		cfg.ExtraSourceURLs = splitURLs(v)
	}

	if v := os.Getenv("TRACKD_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("TRACKD_TLE_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn("invalid TRACKD_TLE_MAX_AGE value, keeping current setting",
				"value", v, "max_age_seconds", cfg.MaxAge.Seconds())
		} else {
			cfg.MaxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
	)

	return cfg
}

func splitURLs(s string) []string {
	var urls []string
	for _, u := range strings.Split(s, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

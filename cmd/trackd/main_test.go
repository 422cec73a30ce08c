package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"gopkg.in/ini.v1"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func loadINI(t *testing.T, content string) *ini.File {
	t.Helper()
	f, err := ini.Load([]byte(content))
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}
	return f
}

// An unparseable boolean in the environment must not override a value the
// config file already set.
func TestLoadTLEConfigInvalidEnableFetchEnv(t *testing.T) {
	f := loadINI(t, "[tle]\nenable_fetch = false\n")
	t.Setenv("TRACKD_ENABLE_TLE_FETCH", "notabool")

	cfg := loadTLEConfig(discardLogger(), f)

	if cfg.EnableFetch {
		t.Error("EnableFetch = true, want false from config file")
	}
}

func TestLoadTLEConfigInvalidEnableFetchEnvDefault(t *testing.T) {
	t.Setenv("TRACKD_ENABLE_TLE_FETCH", "maybe")

	cfg := loadTLEConfig(discardLogger(), nil)

	if !cfg.EnableFetch {
		t.Error("EnableFetch = false, want the default true")
	}
}

func TestLoadTLEConfigInvalidMaxAgeEnv(t *testing.T) {
	f := loadINI(t, "[tle]\nmax_age_seconds = 3600\n")
	t.Setenv("TRACKD_TLE_MAX_AGE", "soon")

	cfg := loadTLEConfig(discardLogger(), f)

	if cfg.MaxAge != time.Hour {
		t.Errorf("MaxAge = %v, want 1h from config file", cfg.MaxAge)
	}
}

func TestLoadStreamConfigInvalidTrustProxyEnv(t *testing.T) {
	f := loadINI(t, "[stream]\ntrust_proxy = true\n")
	t.Setenv("TRACKD_STREAM_TRUST_PROXY", "sometimes")

	cfg := loadStreamConfig(discardLogger(), f)

	if !cfg.TrustProxy {
		t.Error("TrustProxy = false, want true from config file")
	}
}

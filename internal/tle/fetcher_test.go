package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkName  = "STARLINK-1007"
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func tleText(triplets ...[3]string) string {
	var b strings.Builder
	for _, t := range triplets {
		b.WriteString(t[0] + "\n" + t[1] + "\n" + t[2] + "\n")
	}
	return b.String()
}

// tleServer serves a fixed body; t.Cleanup closes it.
func tleServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// parseFetched runs a fetch and parses the result, failing the test on error.
func parseFetched(t *testing.T, f *Fetcher) []Entry {
	t.Helper()
	data, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	entries, err := Parse(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return entries
}

func TestFetcherSuccess(t *testing.T) {
	body := tleText([3]string{issName, issLine1, issLine2})
	srv := tleServer(t, http.StatusOK, body)

	data, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != body {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(body))
	}
}

func TestFetcherHTTPError(t *testing.T) {
	srv := tleServer(t, http.StatusInternalServerError, "")

	if _, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

// Oversized responses must error out rather than consume unbounded memory.
func TestFetcherBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < 52; i++ {
			if _, err := io.WriteString(w, chunk); err != nil {
				return // Client hung up after hitting its limit.
			}
		}
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

func TestFetcherExtraURLs(t *testing.T) {
	primary := tleServer(t, http.StatusOK, tleText([3]string{starlinkName, starlinkLine1, starlinkLine2}))
	extra := tleServer(t, http.StatusOK, tleText([3]string{issName, issLine1, issLine2}))

	entries := parseFetched(t, NewFetcher(primary.URL, testLogger, extra.URL))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries from both sources, got %d", len(entries))
	}

	ids := map[int]bool{}
	for _, e := range entries {
		ids[e.CatalogID] = true
	}
	if !ids[44713] || !ids[25544] {
		t.Errorf("expected catalogs 44713 and 25544, got %v", ids)
	}
}

// A failing extra source must not break the primary fetch.
func TestFetcherExtraURLFailure(t *testing.T) {
	primary := tleServer(t, http.StatusOK, tleText([3]string{starlinkName, starlinkLine1, starlinkLine2}))
	failing := tleServer(t, http.StatusInternalServerError, "")

	entries := parseFetched(t, NewFetcher(primary.URL, testLogger, failing.URL))
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (primary only), got %d", len(entries))
	}
	if entries[0].CatalogID != 44713 {
		t.Errorf("expected catalog 44713, got %d", entries[0].CatalogID)
	}
}

package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/skywatch/trackd/internal/propagation"
	"github.com/skywatch/trackd/internal/tle"
)

// Real ISS orbital elements used for testing.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testStore() *tle.Store {
	store := tle.NewStore()
	store.Set(&tle.Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Satellites: []tle.Entry{
			{CatalogID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2},
		},
	})
	return store
}

func testPropagator(store *tle.Store) *propagation.Propagator {
	cfg := propagation.Config{Workers: 2, Step: 5 * time.Second, Horizon: 30 * time.Second}
	return propagation.NewPropagator(store, cfg, testLogger())
}

func testConfig() Config {
	return Config{
		Step:        5 * time.Second,
		Horizon:     30 * time.Second,
		GracePeriod: 5 * time.Second,
		Buffer:      10 * time.Second,
	}
}

// TestFrameCache tests basic cache operations: put, get, stats.
func TestFrameCache(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	c := NewFrameCache(testConfig(), prop, store, testLogger())

	ctx := context.Background()
	target := time.Now().Truncate(5 * time.Second)
	fr, err := prop.PropagateToTime(ctx, target)
	if err != nil {
		t.Fatalf("PropagateToTime failed: %v", err)
	}

	c.put(fr)

	got := c.Get(target)
	if got == nil {
		t.Fatal("expected cache hit, got nil")
	}
	if !got.Timestamp.Equal(target) {
		t.Errorf("timestamp mismatch: got %v, want %v", got.Timestamp, target)
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries: got %d, want 1", stats.Entries)
	}
	if stats.Hits < 1 {
		t.Errorf("hits: got %d, want >= 1", stats.Hits)
	}
}

// TestRoundToStep verifies timestamp rounding.
func TestRoundToStep(t *testing.T) {
	store := testStore()
	c := NewFrameCache(testConfig(), testPropagator(store), store, testLogger())

	tests := []struct {
		input    time.Time
		expected time.Time
	}{
		{
			input:    time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC),
			expected: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			input:    time.Date(2026, 2, 6, 12, 0, 7, 0, time.UTC),
			expected: time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC),
		},
		{
			input:    time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC),
			expected: time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		got := c.RoundToStep(tt.input)
		if !got.Equal(tt.expected) {
			t.Errorf("RoundToStep(%v) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

// TestCacheMiss verifies that a miss returns nil and increments miss counter.
func TestCacheMiss(t *testing.T) {
	store := testStore()
	c := NewFrameCache(testConfig(), testPropagator(store), store, testLogger())

	if got := c.Get(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)); got != nil {
		t.Fatal("expected nil for cache miss")
	}

	if stats := c.Stats(); stats.Misses < 1 {
		t.Errorf("misses: got %d, want >= 1", stats.Misses)
	}
}

// TestEvictExpired verifies that expired entries are removed.
func TestEvictExpired(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	cfg.Buffer = 0 // No buffer: evict immediately if in the past.
	c := NewFrameCache(cfg, prop, store, testLogger())

	ctx := context.Background()

	pastTime := time.Now().Add(-2 * time.Minute).Truncate(5 * time.Second)
	fr, err := prop.PropagateToTime(ctx, pastTime)
	if err != nil {
		t.Fatalf("PropagateToTime failed: %v", err)
	}
	c.put(fr)

	futureTime := time.Now().Add(1 * time.Minute).Truncate(5 * time.Second)
	fr2, err := prop.PropagateToTime(ctx, futureTime)
	if err != nil {
		t.Fatalf("PropagateToTime failed: %v", err)
	}
	c.put(fr2)

	if c.Stats().Entries != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Stats().Entries)
	}

	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("expected 1 eviction, got %d", removed)
	}

	if c.Get(pastTime) != nil {
		t.Error("expected past entry to be evicted")
	}
	if c.Get(futureTime) == nil {
		t.Error("expected future entry to remain")
	}
}

// TestWarmup verifies the warmup fills the full window.
func TestWarmup(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	cfg.Horizon = 15 * time.Second // 4 frames: 0, 5, 10, 15.
	c := NewFrameCache(cfg, prop, store, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.warmup(ctx)

	stats := c.Stats()
	expectedFrames := int(cfg.Horizon/cfg.Step) + 1
	if stats.Entries < expectedFrames {
		t.Errorf("warmup generated %d entries, expected >= %d", stats.Entries, expectedFrames)
	}

	if c.GetLatest() == nil {
		t.Fatal("GetLatest returned nil after warmup")
	}
}

// TestTLECutover verifies graceful TLE dataset cutover.
func TestTLECutover(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second // 3 frames: 0, 5, 10.
	c := NewFrameCache(cfg, prop, store, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.warmup(ctx)

	if c.Stats().Entries == 0 {
		t.Fatal("no entries after warmup")
	}

	// Simulate a TLE refresh with a new FetchedAt.
	store.Set(&tle.Dataset{
		Source:    "updated",
		FetchedAt: time.Now().Add(1 * time.Second),
		Satellites: []tle.Entry{
			{CatalogID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2},
		},
	})

	if !c.tleChanged() {
		t.Fatal("expected tleChanged() to return true after dataset update")
	}

	c.performCutover(ctx)

	if c.inGracePeriod.Load() {
		t.Error("grace period should be false after cutover")
	}
	if c.Stats().Entries == 0 {
		t.Fatal("no entries after cutover")
	}
	if c.tleChanged() {
		t.Error("expected tleChanged() to return false after cutover")
	}
}

// TestGetLatestEmpty verifies GetLatest with empty cache returns nil.
func TestGetLatestEmpty(t *testing.T) {
	store := testStore()
	c := NewFrameCache(testConfig(), testPropagator(store), store, testLogger())

	if got := c.GetLatest(); got != nil {
		t.Fatal("expected nil from empty cache")
	}
}

// TestGetRecent verifies trail retrieval ordering.
func TestGetRecent(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	c := NewFrameCache(testConfig(), prop, store, testLogger())

	ctx := context.Background()
	base := time.Now().Truncate(5 * time.Second)
	for i := 0; i < 3; i++ {
		fr, err := prop.PropagateToTime(ctx, base.Add(time.Duration(i)*5*time.Second))
		if err != nil {
			t.Fatalf("PropagateToTime failed: %v", err)
		}
		c.put(fr)
	}

	recent := c.GetRecent(base.Add(10*time.Second), 3)
	if len(recent) != 3 {
		t.Fatalf("got %d frames, want 3", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if !recent[i].Timestamp.After(recent[i-1].Timestamp) {
			t.Error("frames not ordered oldest-first")
		}
	}
}

// TestConcurrentAccess verifies cache is safe for concurrent reads and writes.
func TestConcurrentAccess(t *testing.T) {
	store := testStore()
	c := NewFrameCache(testConfig(), testPropagator(store), store, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go c.Start(ctx)

	// Give warmup time to complete.
	time.Sleep(3 * time.Second)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.GetLatest()
				c.Get(time.Now())
				c.Stats()
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			t.Fatal("timeout waiting for concurrent reads")
		}
	}
}

// TestSizeEstimation verifies the size estimation is reasonable.
func TestSizeEstimation(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	c := NewFrameCache(cfg, prop, store, testLogger())

	c.warmup(context.Background())

	stats := c.Stats()
	if stats.SizeBytes <= 0 {
		t.Errorf("expected positive size estimate, got %d", stats.SizeBytes)
	}

	// With 1 satellite and 3 entries, size should be small (< 1KB).
	if stats.SizeBytes > 10000 {
		t.Errorf("size estimate seems too large for 1 satellite: %d bytes", stats.SizeBytes)
	}
}

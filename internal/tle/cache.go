package tle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoCache is returned by LoadLatest when no usable snapshot exists.
var ErrNoCache = errors.New("no cached TLE snapshots")

const (
	snapshotPrefix = "tle_"
	snapshotSuffix = ".txt"
)

// Cache persists raw TLE snapshots to disk so a restart can serve tracking
// requests before the first fetch completes. Snapshot files are named by
// their fetch time (tle_<unix>.txt) and the oldest are removed once more
// than maxFiles accumulate.
type Cache struct {
	dir      string
	maxFiles int
}

func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Write stores a snapshot taken at ts and drops snapshots beyond the
// retention limit.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	name := snapshotPrefix + strconv.FormatInt(ts.Unix(), 10) + snapshotSuffix
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	snaps, err := c.listFiles()
	if err != nil {
		return err
	}
	for len(snaps) > c.maxFiles {
		stale := snaps[0]
		if err := os.Remove(filepath.Join(c.dir, stale.name)); err != nil {
			return fmt.Errorf("removing stale snapshot %s: %w", stale.name, err)
		}
		snaps = snaps[1:]
	}
	return nil
}

// LoadLatest returns the newest snapshot and its fetch time.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, ErrNoCache
	}

	newest := snaps[len(snaps)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, newest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, newest.ts, nil
}

type snapshot struct {
	name string
	ts   time.Time
}

// listFiles returns the on-disk snapshots sorted oldest first. Files that do
// not match the naming scheme are ignored rather than treated as errors.
func (c *Cache) listFiles() ([]snapshot, error) {
	dirents, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshot dir: %w", err)
	}

	snaps := make([]snapshot, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		if ts, ok := snapshotStamp(de.Name()); ok {
			snaps = append(snaps, snapshot{name: de.Name(), ts: ts})
		}
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ts.Before(snaps[j].ts) })
	return snaps, nil
}

// snapshotStamp extracts the fetch time from a snapshot filename.
func snapshotStamp(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, snapshotPrefix)
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, snapshotSuffix)
	if !ok {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

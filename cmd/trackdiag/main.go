// Command trackdiag runs offline pass prediction and ground-track
// segmentation against a local TLE file, without starting the HTTP service.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/skywatch/trackd/internal/passes"
	"github.com/skywatch/trackd/internal/tle"
	"github.com/skywatch/trackd/internal/track"
	"github.com/skywatch/trackd/internal/transform"
)

func main() {
	var (
		tleFile   = flag.String("tle", "", "path to a TLE file (required)")
		lat       = flag.Float64("lat", 39.7392, "observer latitude, degrees")
		lon       = flag.Float64("lon", -104.9903, "observer longitude, degrees")
		alt       = flag.Float64("alt", 1609, "observer altitude, meters")
		hours     = flag.Float64("hours", 24, "prediction horizon, hours")
		minElev   = flag.Float64("min-elevation", 10, "minimum pass elevation, degrees")
		maxSats   = flag.Int("max-sats", 5, "limit prediction to the first N satellites")
		trackMins = flag.Int("track-minutes", 90, "ground track duration for the first satellite, minutes")
	)
	flag.Parse()

	if *tleFile == "" {
		fmt.Fprintln(os.Stderr, "usage: trackdiag -tle <file> [-lat -lon -alt -hours -min-elevation]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	data, err := os.ReadFile(*tleFile)
	if err != nil {
		fmt.Println("ERROR reading TLE file:", err)
		os.Exit(1)
	}

	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		fmt.Println("ERROR parsing TLE:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d TLE entries\n", len(entries))
	if len(entries) == 0 {
		os.Exit(1)
	}
	fmt.Printf("First entry: %s (catalog %d) epoch %v\n", entries[0].Name, entries[0].CatalogID, entries[0].Epoch)

	subset := entries
	if len(subset) > *maxSats {
		subset = subset[:*maxSats]
	}

	now := time.Now().UTC()
	fmt.Printf("Prediction start: %v\n", now)

	req := passes.Request{
		Observer:     transform.NewObserver(*lat, *lon, *alt),
		Entries:      subset,
		Start:        now,
		HorizonHours: *hours,
		MinElevation: *minElev,
		MaxPasses:    10,
	}

	results := passes.Predict(context.Background(), req)

	totalPasses := 0
	for _, sat := range results {
		if sat.Error != "" {
			fmt.Printf("  catalog %d: ERROR %s\n", sat.CatalogID, sat.Error)
			continue
		}
		fmt.Printf("  catalog %d: %d passes\n", sat.CatalogID, len(sat.Passes))
		totalPasses += len(sat.Passes)
		for j, p := range sat.Passes {
			fmt.Printf("    pass %d: start=%v maxEl=%.1f° dur=%.0fs\n",
				j, p.StartTime.Format(time.RFC3339), p.MaxElevation, p.DurationSeconds)
		}
	}
	fmt.Printf("\nTotal passes found: %d\n", totalPasses)

	// Ground track for the first satellite, split at the antimeridian.
	e := entries[0]
	segments := track.GroundTrack(e.CatalogID, e.Line1, e.Line2, now,
		time.Duration(*trackMins)*time.Minute, 30*time.Second)
	fmt.Printf("\nGround track for catalog %d over %d minutes: %d segments\n",
		e.CatalogID, *trackMins, len(segments))
	for i, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		first, last := seg[0], seg[len(seg)-1]
		fmt.Printf("  segment %d: %d points, lon %.2f° .. %.2f°\n", i, len(seg), first.LonDeg, last.LonDeg)
	}
}

// Package passes predicts satellite passes over a ground observer.
//
// Prediction is a two-resolution scan: a coarse sweep locates above-horizon
// windows, then each window is rebuilt at one-second resolution to pin down
// rise, culmination, and set. Each pass carries a sampled ground track so a
// client can draw the overflight on a map.
package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/skywatch/trackd/internal/geo"
	"github.com/skywatch/trackd/internal/propagation"
	"github.com/skywatch/trackd/internal/tle"
	"github.com/skywatch/trackd/internal/transform"
)

// TrackSample is a sub-satellite position at a specific time during a pass.
type TrackSample struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Elevation float64   `json:"elevation"` // degrees above observer's horizon
}

// PassEvent describes a single satellite pass over an observer location.
type PassEvent struct {
	StartTime        time.Time     `json:"start_time"`
	MaxElevationTime time.Time     `json:"max_elevation_time"`
	EndTime          time.Time     `json:"end_time"`
	DurationSeconds  float64       `json:"duration_seconds"`
	MaxElevation     float64       `json:"max_elevation"`
	AzimuthAtMax     float64       `json:"azimuth_at_max"`
	StartAzimuth     float64       `json:"start_azimuth"`
	EndAzimuth       float64       `json:"end_azimuth"`
	GroundTrack      []TrackSample `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	CatalogID int         `json:"catalog_id"`
	Passes    []PassEvent `json:"passes"`
	Error     string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     transform.Observer
	Entries      []tle.Entry
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int
}

const (
	coarseStepSec      = 30 // seconds between coarse scan steps
	fineStepSec        = 1  // seconds between fine scan steps
	groundTrackStepSec = 10 // seconds between ground track samples
	minPassDur         = 10 * time.Second
)

// Predict computes satellite passes for the given request.
// Each satellite is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.Entry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = SatellitePasses{CatalogID: e.CatalogID, Error: "cancelled"}
				return
			}

			found, err := predictSatellite(ctx, req, e)
			if err != nil {
				results[idx] = SatellitePasses{CatalogID: e.CatalogID, Error: err.Error()}
				return
			}
			results[idx] = SatellitePasses{CatalogID: e.CatalogID, Passes: found}
		}(i, entry)
	}

	wg.Wait()
	return results
}

// observation is one propagated sample seen from the observer.
type observation struct {
	t    time.Time
	la   transform.LookAngles
	ecef transform.StateECEF
}

// observe propagates the satellite to t and computes its look angles.
func observe(prop *propagation.SGP4, obs transform.Observer, t time.Time) (observation, error) {
	t = t.UTC()
	teme, err := prop.PropagateTEME(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	if err != nil {
		return observation{}, err
	}
	ecef := transform.TEMEToECEF(teme, t)
	return observation{
		t:    t,
		la:   transform.ECEFToLookAngles(obs, ecef.X, ecef.Y, ecef.Z),
		ecef: ecef,
	}, nil
}

// predictSatellite finds all passes for a single satellite.
func predictSatellite(ctx context.Context, req Request, entry tle.Entry) ([]PassEvent, error) {
	prop, err := propagation.NewSGP4(entry.Line1, entry.Line2, entry.CatalogID)
	if err != nil {
		return nil, fmt.Errorf("sgp4 init: %w", err)
	}

	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	var found []PassEvent

	// Coarse sweep: any above-horizon sample marks a candidate window.
	for t := req.Start; t.Before(end) && len(found) < req.MaxPasses; {
		if ctx.Err() != nil {
			return found, nil
		}

		o, err := observe(prop, req.Observer, t)
		if err != nil || o.la.ElevationDeg <= 0 {
			t = t.Add(coarseStepSec * time.Second)
			continue
		}

		pass, windowEnd := refinePass(ctx, prop, req.Observer, t, req.Start, end, req.MinElevation)
		if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDur {
			found = append(found, *pass)
		}
		t = windowEnd.Add(coarseStepSec * time.Second)
	}

	return found, nil
}

// passBuilder accumulates fine-scan samples between rise and set.
type passBuilder struct {
	rise    observation
	peak    observation
	track   []TrackSample
	started bool
}

func (b *passBuilder) add(o observation) {
	if !b.started {
		b.rise = o
		b.peak = o
		b.started = true
	} else if o.la.ElevationDeg > b.peak.la.ElevationDeg {
		b.peak = o
	}

	// One ground-track sample every groundTrackStepSec seconds of the pass.
	if int(o.t.Sub(b.rise.t).Seconds())%groundTrackStepSec == 0 {
		g := transform.ECEFToGeodetic(o.ecef.X, o.ecef.Y, o.ecef.Z)
		b.track = append(b.track, TrackSample{
			Time:      o.t,
			Latitude:  g.LatDeg,
			Longitude: geo.NormalizeLongitude(g.LonDeg),
			Altitude:  g.AltM,
			Elevation: o.la.ElevationDeg,
		})
	}
}

func (b *passBuilder) finish(setTime time.Time, setAz float64) *PassEvent {
	if !b.started {
		return nil
	}
	return &PassEvent{
		StartTime:        b.rise.t,
		MaxElevationTime: b.peak.t,
		EndTime:          setTime,
		DurationSeconds:  setTime.Sub(b.rise.t).Seconds(),
		MaxElevation:     b.peak.la.ElevationDeg,
		AzimuthAtMax:     b.peak.la.AzimuthDeg,
		StartAzimuth:     b.rise.la.AzimuthDeg,
		EndAzimuth:       setAz,
		GroundTrack:      b.track,
	}
}

// refinePass rescans an above-horizon window at fine resolution, starting one
// coarse step before the detecting sample so the true rise is not missed.
// Returns the pass (nil if the satellite never clears minElev) and the time
// the window was exhausted, so the coarse sweep can resume past it.
func refinePass(ctx context.Context, prop *propagation.SGP4, obs transform.Observer, coarseHit, windowStart, windowEnd time.Time, minElev float64) (*PassEvent, time.Time) {
	t := coarseHit.Add(-coarseStepSec * time.Second)
	if t.Before(windowStart) {
		t = windowStart
	}

	var (
		b        passBuilder
		wasAbove bool
		lastSeen observation
	)

	for ; t.Before(windowEnd) && ctx.Err() == nil; t = t.Add(fineStepSec * time.Second) {
		o, err := observe(prop, obs, t)
		if err != nil {
			continue
		}
		lastSeen = o
		above := o.la.ElevationDeg >= minElev

		switch {
		case above:
			b.add(o)
		case wasAbove && b.started:
			// Set: the satellite just dropped below the threshold.
			return b.finish(o.t, o.la.AzimuthDeg), o.t
		}
		wasAbove = above
	}

	// Window ended with the satellite still up; close the pass at the edge.
	if b.started && wasAbove {
		return b.finish(lastSeen.t, lastSeen.la.AzimuthDeg), t
	}
	return nil, t
}

// Package track exposes the tracking math consumed by the map-facing API:
// sub-satellite points, observer visibility, look angles, and segmented
// ground tracks.
//
// Every function degrades to a sentinel on bad input instead of returning an
// error: a zero SubPoint, false, or nil. Callers render a default marker for
// a degraded result, so there is no separate failure path to handle. Non-finite
// values from the propagator are sanitized to the same sentinels and never
// escape this package.
package track

import (
	"math"
	"time"

	"github.com/skywatch/trackd/internal/geo"
	"github.com/skywatch/trackd/internal/propagation"
	"github.com/skywatch/trackd/internal/transform"
)

// SubPoint is a satellite's sub-satellite position at an instant. The zero
// value is the degraded sentinel for missing or malformed input.
type SubPoint struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltM   float64 `json:"alt"`
	VelKmS float64 `json:"vel_km_s"`
}

// SubSatellitePoint computes a satellite's geodetic sub-point at the given
// time. Returns the zero SubPoint if the catalog ID is not positive, either
// TLE line is empty, the time is the zero value, or propagation fails.
// Longitude is normalized into [-180, 180].
func SubSatellitePoint(catalogID int, line1, line2 string, at time.Time) SubPoint {
	if catalogID <= 0 || line1 == "" || line2 == "" || at.IsZero() {
		return SubPoint{}
	}

	g, _, err := propagateGeodetic(catalogID, line1, line2, at)
	if err != nil {
		return SubPoint{}
	}

	sp := SubPoint{
		LatDeg: g.geod.LatDeg,
		LonDeg: geo.NormalizeLongitude(g.geod.LonDeg),
		AltM:   g.geod.AltM,
		VelKmS: g.velKmS,
	}
	if !finite(sp.LatDeg) || !finite(sp.LonDeg) || !finite(sp.AltM) || !finite(sp.VelKmS) {
		return SubPoint{}
	}
	if sp.LatDeg < -90 || sp.LatDeg > 90 {
		return SubPoint{}
	}
	return sp
}

// IsVisible reports whether the satellite is at or above minElevationDeg as
// seen from the observer at the given time. Returns false if either TLE line
// is empty, the time is the zero value, or the observer is nil, and degrades
// to false on any propagation failure.
func IsVisible(line1, line2 string, at time.Time, observer *geo.GeodeticPoint, minElevationDeg float64) bool {
	if line1 == "" || line2 == "" || at.IsZero() || observer == nil {
		return false
	}

	la := ComputeLookAngles(line1, line2, observer, at)
	if la == nil {
		return false
	}
	return la.ElevationDeg >= minElevationDeg
}

// ComputeLookAngles computes azimuth, elevation, and slant range from a
// ground station to the satellite. Returns nil if either TLE line is empty,
// the station is nil, the station latitude is outside [-90, 90], or
// propagation fails. The station longitude is not range-checked; it is
// normalized first, so 370 behaves exactly like 10. A zero time defaults to
// the current wall-clock time.
func ComputeLookAngles(line1, line2 string, station *geo.GeodeticPoint, at time.Time) *transform.LookAngles {
	if line1 == "" || line2 == "" || station == nil {
		return nil
	}
	if station.LatDeg < -90 || station.LatDeg > 90 {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}

	_, ecef, err := propagateGeodetic(0, line1, line2, at)
	if err != nil {
		return nil
	}

	obs := transform.NewObserver(station.LatDeg, geo.NormalizeLongitude(station.LonDeg), station.AltM)
	la := transform.ECEFToLookAngles(obs, ecef.X, ecef.Y, ecef.Z)
	if !finite(la.AzimuthDeg) || !finite(la.ElevationDeg) || !finite(la.RangeKm) {
		return nil
	}
	return &la
}

// GroundTrack samples the satellite's sub-point from start over the given
// duration at the given step, then splits the resulting polyline at dateline
// crossings so a renderer never draws across the whole map. Returns nil when
// any input is missing or no sample propagates.
func GroundTrack(catalogID int, line1, line2 string, start time.Time, duration, step time.Duration) []geo.TrackSegment {
	if catalogID <= 0 || line1 == "" || line2 == "" || start.IsZero() || duration <= 0 || step <= 0 {
		return nil
	}

	n := int(duration/step) + 1
	points := make([]geo.TrackPoint, 0, n)
	for i := 0; i < n; i++ {
		sp := SubSatellitePoint(catalogID, line1, line2, start.Add(time.Duration(i)*step))
		if sp == (SubPoint{}) {
			continue
		}
		points = append(points, geo.TrackPoint{LatDeg: sp.LatDeg, LonDeg: sp.LonDeg})
	}
	if len(points) == 0 {
		return nil
	}
	return geo.SplitAtDateline(points)
}

// geodeticState bundles the geodetic sub-point with the TEME speed.
type geodeticState struct {
	geod   transform.Geodetic
	velKmS float64
}

// propagateGeodetic runs the shared SGP4 → TEME → ECEF → geodetic chain.
func propagateGeodetic(catalogID int, line1, line2 string, at time.Time) (geodeticState, transform.StateECEF, error) {
	prop, err := propagation.NewSGP4(line1, line2, catalogID)
	if err != nil {
		return geodeticState{}, transform.StateECEF{}, err
	}

	t := at.UTC()
	teme, err := prop.PropagateTEME(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	if err != nil {
		return geodeticState{}, transform.StateECEF{}, err
	}

	ecef := transform.TEMEToECEF(teme, t)
	g := transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z)
	return geodeticState{geod: g, velKmS: teme.SpeedKmS()}, ecef, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

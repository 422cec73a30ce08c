// Package geo provides the plain geodetic geometry used by map rendering:
// longitude normalization and splitting of ground-track polylines at the
// antimeridian. Everything here is pure and safe for concurrent use.
package geo

import "math"

// GeodeticPoint is a position relative to the WGS-84 ellipsoid.
// Latitude and longitude are in degrees, altitude in meters.
type GeodeticPoint struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltM   float64 `json:"alt"`
}

// TrackPoint is a sub-satellite position used when building ground-track
// polylines. Only latitude and longitude are carried.
type TrackPoint struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
}

// TrackSegment is an ordered run of track points that does not cross the
// antimeridian internally, so a map renderer can draw it as a single polyline.
type TrackSegment []TrackPoint

// NormalizeLongitude wraps an arbitrary longitude (degrees) into [-180, 180].
// Values landing exactly on the boundary keep the sign of the input side:
// 540 maps to +180, -540 to -180. NaN and Inf pass through unchanged.
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return lon
}

// SplitAtDateline splits a polyline into segments wherever consecutive points
// imply an antimeridian crossing (raw longitude delta exceeding 180 degrees in
// magnitude). The output segments partition the input exactly: no point is
// dropped, duplicated, or reordered. An empty input yields no segments.
func SplitAtDateline(points []TrackPoint) []TrackSegment {
	if len(points) == 0 {
		return nil
	}

	var segments []TrackSegment
	current := TrackSegment{points[0]}

	for i := 1; i < len(points); i++ {
		delta := points[i].LonDeg - points[i-1].LonDeg
		if math.Abs(delta) > 180 {
			segments = append(segments, current)
			current = TrackSegment{points[i]}
			continue
		}
		current = append(current, points[i])
	}

	return append(segments, current)
}

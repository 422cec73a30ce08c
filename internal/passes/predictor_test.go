package passes

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/skywatch/trackd/internal/tle"
	"github.com/skywatch/trackd/internal/transform"
)

// Real ISS TLE, epoch 2025-02-14. Prediction windows in these tests start
// near the epoch so SGP4 stays well-conditioned.
var issTLE = tle.Entry{
	CatalogID: 25544,
	Name:      "ISS (ZARYA)",
	Line1:     "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993",
	Line2:     "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058",
	Epoch:     time.Date(2025, 2, 14, 4, 19, 40, 0, time.UTC),
}

var nycObserver = transform.NewObserver(40.7128, -74.006, 10)

var predictStart = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

func issRequest(horizonHours, minElev float64) Request {
	return Request{
		Observer:     nycObserver,
		Entries:      []tle.Entry{issTLE},
		Start:        predictStart,
		HorizonHours: horizonHours,
		MinElevation: minElev,
		MaxPasses:    20,
	}
}

// checkPassGeometry asserts the internal consistency of one predicted pass.
func checkPassGeometry(t *testing.T, i int, p PassEvent) {
	t.Helper()

	if p.DurationSeconds < 10 {
		t.Errorf("pass %d: duration %.1fs too short", i, p.DurationSeconds)
	}
	if p.MaxElevation <= 0 || p.MaxElevation > 90 {
		t.Errorf("pass %d: max elevation %.2f out of (0, 90]", i, p.MaxElevation)
	}
	for _, az := range []struct {
		name string
		deg  float64
	}{
		{"start", p.StartAzimuth},
		{"max", p.AzimuthAtMax},
		{"end", p.EndAzimuth},
	} {
		if az.deg < 0 || az.deg >= 360 {
			t.Errorf("pass %d: %s azimuth %.2f out of [0, 360)", i, az.name, az.deg)
		}
	}
	if !p.StartTime.Before(p.MaxElevationTime) || !p.MaxElevationTime.Before(p.EndTime) {
		t.Errorf("pass %d: time ordering violated: start=%v max=%v end=%v",
			i, p.StartTime, p.MaxElevationTime, p.EndTime)
	}

	if len(p.GroundTrack) == 0 {
		t.Errorf("pass %d: no ground track samples", i)
	}
	for j, gt := range p.GroundTrack {
		if gt.Latitude < -90 || gt.Latitude > 90 {
			t.Errorf("pass %d sample %d: latitude %.2f out of range", i, j, gt.Latitude)
		}
		if gt.Longitude < -180 || gt.Longitude > 180 {
			t.Errorf("pass %d sample %d: longitude %.2f not normalized", i, j, gt.Longitude)
		}
		if gt.Altitude < 100_000 || gt.Altitude > 1_000_000 {
			t.Errorf("pass %d sample %d: altitude %.0f m outside LEO band", i, j, gt.Altitude)
		}
		if gt.Elevation < 0 || gt.Elevation > 90 {
			t.Errorf("pass %d sample %d: elevation %.2f out of [0, 90]", i, j, gt.Elevation)
		}
	}
}

func TestPredictISS(t *testing.T) {
	results := Predict(context.Background(), issRequest(24, 0))

	if len(results) != 1 {
		t.Fatalf("expected 1 satellite result, got %d", len(results))
	}
	sat := results[0]
	if sat.CatalogID != 25544 {
		t.Errorf("catalog ID = %d, want 25544", sat.CatalogID)
	}
	if sat.Error != "" {
		t.Fatalf("unexpected error: %s", sat.Error)
	}

	// In LEO the ISS rises over any mid-latitude site several times a day.
	if len(sat.Passes) == 0 {
		t.Fatal("expected at least 1 ISS pass over NYC in 24h")
	}
	for i, p := range sat.Passes {
		checkPassGeometry(t, i, p)
	}
}

func TestPredictMinElevationFilter(t *testing.T) {
	low := Predict(context.Background(), issRequest(48, 0))
	high := Predict(context.Background(), issRequest(48, 45))

	nLow, nHigh := len(low[0].Passes), len(high[0].Passes)
	if nLow == 0 {
		t.Fatal("expected passes with min_elevation=0")
	}
	if nHigh >= nLow {
		t.Errorf("raising min_elevation to 45 kept %d of %d passes, want fewer", nHigh, nLow)
	}
}

func TestPredictCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Must return promptly with a slot per satellite, no panics.
	results := Predict(ctx, issRequest(24, 0))
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestPredictInvalidTLE(t *testing.T) {
	bad := tle.Entry{
		CatalogID: 99999,
		Name:      "BAD SAT",
		Line1:     "1 99999U BAD",
		Line2:     "2 99999 BAD",
	}

	req := issRequest(24, 0)
	req.Entries = []tle.Entry{issTLE, bad}

	results := Predict(context.Background(), req)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error != "" {
		t.Errorf("ISS should succeed, got error: %s", results[0].Error)
	}
	if results[1].Error == "" {
		t.Error("malformed TLE should surface a per-satellite error")
	}
}

// haversineKm computes the great-circle distance (km) between two geodetic points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLam := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLam/2)*math.Sin(dLam/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// maxGroundDistKm bounds how far (great-circle, km) the sub-satellite point
// can be from an observer seeing the satellite at elevation elevDeg and
// altitude altM: rho = acos(R*cos(el)/(R+h)) - el.
func maxGroundDistKm(elevDeg, altM float64) float64 {
	const R = 6371.0
	elevRad := elevDeg * math.Pi / 180
	arg := math.Min(1, R*math.Cos(elevRad)/(R+altM/1000.0))
	rho := math.Max(0, math.Acos(arg)-elevRad)
	return R * rho
}

// TestGroundTrackPhysicalConsistency cross-checks each ground-track sample's
// lat/lon against its reported elevation: at the horizon the ISS sub-point
// can be at most ~2200 km from the observer, shrinking as elevation rises.
func TestGroundTrackPhysicalConsistency(t *testing.T) {
	const obsLatDeg = 27.5867
	const obsLonDeg = -82.4251

	req := issRequest(24, 0)
	req.Observer = transform.NewObserver(obsLatDeg, obsLonDeg, 0)
	req.Start = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)

	results := Predict(context.Background(), req)
	sat := results[0]
	if sat.Error != "" {
		t.Fatalf("satellite error: %s", sat.Error)
	}
	if len(sat.Passes) == 0 {
		t.Fatal("no passes found in 24h, check TLE epoch vs start time")
	}

	for pi, p := range sat.Passes {
		for gi, gt := range p.GroundTrack {
			dist := haversineKm(obsLatDeg, obsLonDeg, gt.Latitude, gt.Longitude)
			bound := maxGroundDistKm(gt.Elevation, gt.Altitude)

			// 50% slack for the spherical-Earth approximation.
			if bound > 0 && dist > bound*1.5 {
				t.Errorf("pass %d sample %d: dist %.0f km exceeds physical bound %.0f km (el=%.1f° alt=%.0f m)",
					pi, gi, dist, bound, gt.Elevation, gt.Altitude)
			}
		}
	}
}

func BenchmarkPredict100Sats24h(b *testing.B) {
	entries := make([]tle.Entry, 100)
	for i := range entries {
		entries[i] = issTLE
		entries[i].CatalogID = 25544 + i
	}

	req := issRequest(24, 10)
	req.Entries = entries

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Predict(context.Background(), req)
	}
}

package propagation

import (
	"fmt"
	"math"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/skywatch/trackd/internal/tle"
	"github.com/skywatch/trackd/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, no CGO, explicit TEME output, and the same library the rest of our
// tooling already uses. Propagate() takes Satellite by value so SGP4 error
// codes are not visible after construction; propagation failures are detected
// by checking the output for NaN/Inf and unreasonable position magnitudes.

// SGP4 wraps a single satellite's initialized propagator.
type SGP4 struct {
	sat       satellite.Satellite
	catalogID int
}

// NewSGP4 initializes an SGP4 propagator from TLE lines.
//
// Lines are shape-validated first because go-satellite calls log.Fatal on
// malformed input, which would kill the process.
func NewSGP4(line1, line2 string, catalogID int) (*SGP4, error) {
	if err := tle.ValidateLines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for catalog %d: %w", catalogID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for catalog %d: code=%d %s", catalogID, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, catalogID: catalogID}, nil
}

// PropagateTEME computes the satellite state at the given UTC instant.
func (p *SGP4) PropagateTEME(year, month, day, hour, min, sec int) (transform.StateTEME, error) {
	pos, vel := satellite.Propagate(p.sat, year, month, day, hour, min, sec)

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.StateTEME{}, fmt.Errorf("sgp4 propagation failed for catalog %d: output is NaN/Inf", p.catalogID)
	}

	// Position magnitude must sit between LEO perigee and beyond-GEO bounds.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.StateTEME{}, fmt.Errorf("sgp4 propagation failed for catalog %d: unreasonable position magnitude %.1f km", p.catalogID, mag)
	}

	return transform.StateTEME{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		VX: vel.X, VY: vel.Y, VZ: vel.Z,
	}, nil
}

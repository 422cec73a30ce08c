package propagation

import "time"

// Frame holds the sub-satellite positions of all tracked satellites at one
// point in time. This is what map clients render.
type Frame struct {
	Timestamp  time.Time
	Satellites []SubSatellite
}

// SubSatellite is one satellite's sub-point at a frame time.
type SubSatellite struct {
	CatalogID int
	LatDeg    float64 // degrees, [-90, 90]
	LonDeg    float64 // degrees, normalized to [-180, 180]
	AltM      float64 // meters above the WGS-84 ellipsoid
	VelKmS    float64 // TEME velocity magnitude, km/s
}

// Config holds propagation configuration loaded from the environment.
type Config struct {
	Workers int           // worker pool size (default: runtime.NumCPU())
	Step    time.Duration // frame interval (default: 5s)
	Horizon time.Duration // propagation horizon (default: 600s)
}

// Package fix holds the consolidated GPS sample produced from one burst of
// sentences.
package fix

import (
	"math"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"github.com/phuslu/log"
)

// Fix is one consolidated position/velocity/time sample. Measured values are
// optional; a nil field was not reported by any sentence of the burst.
type Fix struct {
	Valid      bool       `json:"valid"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Altitude   *float64   `json:"altitude,omitempty"`
	SpeedMps   *float64   `json:"speed_mps,omitempty"`
	SpeedKnots *float64   `json:"speed_knots,omitempty"`
	SpeedKmh   *float64   `json:"speed_kmh,omitempty"`
	Course     *float64   `json:"course,omitempty"`
	Satellites *int       `json:"satellites,omitempty"`
	FixQuality *int       `json:"fix_quality,omitempty"`
	HDOP       *float64   `json:"hdop,omitempty"`
	GPSTime    *time.Time `json:"gps_time,omitempty"`
	// Timestamp is the collection time, not GPS time.
	Timestamp time.Time `json:"timestamp"`
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func (f *Fix) HasPosition() bool {
	return f != nil && f.Latitude != nil && f.Longitude != nil
}

func (f *Fix) Point() *geo.Point {
	if !f.HasPosition() {
		return nil
	}
	return geo.NewPoint(*f.Latitude, *f.Longitude)
}

// Distance returns the great-circle distance in meters between a and b
// (haversine, mean Earth radius 6371 km). ok is false when either side has
// no position.
func Distance(a, b *Fix) (meters float64, ok bool) {
	pa, pb := a.Point(), b.Point()
	if pa == nil || pb == nil {
		return 0, false
	}
	return pa.GreatCircleDistance(pb) * 1000, true
}

// CourseDelta is the smallest angle between two headings, in [0, 180].
func CourseDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}

func (f *Fix) MarshalObject(e *log.Entry) {
	e.Bool("valid", f.Valid)
	if f.Latitude != nil {
		e.Float64("lat", *f.Latitude)
	}
	if f.Longitude != nil {
		e.Float64("lon", *f.Longitude)
	}
	if f.SpeedMps != nil {
		e.Float64("mps", *f.SpeedMps)
	}
	if f.Course != nil {
		e.Float64("course", *f.Course)
	}
	if f.Satellites != nil {
		e.Int("sats", *f.Satellites)
	}
	e.Time("collected", f.Timestamp)
}

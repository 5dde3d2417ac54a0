// Package store defines the persisted form of a published fix.
package store

import (
	"time"

	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
)

type Record struct {
	Identity      string
	Latitude      *float64
	Longitude     *float64
	Altitude      *float64
	Speed         *float64
	Course        *float64
	Satellites    *int
	GPSTime       *time.Time
	CollectedTime time.Time
	Reason        string
}

type FixStore interface {
	Put(rec Record)
}

func NewRecord(identity, reason string, f *fix.Fix) Record {
	return Record{
		Identity:      identity,
		Latitude:      f.Latitude,
		Longitude:     f.Longitude,
		Altitude:      f.Altitude,
		Speed:         f.SpeedMps,
		Course:        f.Course,
		Satellites:    f.Satellites,
		GPSTime:       f.GPSTime,
		CollectedTime: f.Timestamp.UTC(),
		Reason:        reason,
	}
}

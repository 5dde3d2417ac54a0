package filter

import (
	"math"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
)

type Reason string

const (
	ReasonInvalid   Reason = "invalid"
	ReasonFirst     Reason = "first"
	ReasonAlways    Reason = "always"
	ReasonTime      Reason = "time"
	ReasonSpeed     Reason = "speed"
	ReasonDistance  Reason = "distance"
	ReasonDirection Reason = "direction"
	ReasonFiltered  Reason = "filtered"
)

// Engine evaluates a candidate fix against the last published one.
type Engine struct {
	Thresholds *Thresholds
	log        log.Logger
}

func NewEngine(t *Thresholds, logger log.Logger) *Engine {
	e := &Engine{Thresholds: t, log: logger}
	e.log.Context = log.NewContext(nil).Str("module", "filter").Value()
	return e
}

// Evaluate checks, in order: validity, first fix, no filters, then time,
// speed, distance and direction. The first filter that triggers wins. A
// filter whose inputs are missing on either side is skipped.
func (e *Engine) Evaluate(candidate, last *fix.Fix) (bool, Reason) {
	if candidate == nil || !candidate.Valid {
		return false, ReasonInvalid
	}
	if last == nil {
		return true, ReasonFirst
	}
	if !e.Thresholds.Any() {
		return true, ReasonAlways
	}
	if e.timeTriggered(candidate, last) {
		return true, ReasonTime
	}
	if e.speedTriggered(candidate, last) {
		return true, ReasonSpeed
	}
	if e.distanceTriggered(candidate, last) {
		return true, ReasonDistance
	}
	if e.directionTriggered(candidate, last) {
		return true, ReasonDirection
	}
	return false, ReasonFiltered
}

func (e *Engine) timeTriggered(c, l *fix.Fix) bool {
	limit, ok := e.Thresholds.Value(TimeFilter)
	if !ok || c.Timestamp.IsZero() || l.Timestamp.IsZero() {
		return false
	}
	elapsed := c.Timestamp.Sub(l.Timestamp).Seconds()
	e.log.Trace().Float64("elapsed", elapsed).Float64("time_filter", limit).Msg("time check")
	return elapsed >= limit
}

func (e *Engine) speedTriggered(c, l *fix.Fix) bool {
	limit, ok := e.Thresholds.Value(SpeedFilter)
	if !ok || c.SpeedMps == nil || l.SpeedMps == nil {
		return false
	}
	delta := math.Abs(*c.SpeedMps - *l.SpeedMps)
	e.log.Trace().Float64("delta", delta).Float64("speed_filter", limit).Msg("speed check")
	return delta >= limit
}

func (e *Engine) distanceTriggered(c, l *fix.Fix) bool {
	limit, ok := e.Thresholds.Value(DistanceFilter)
	if !ok {
		return false
	}
	d, ok := fix.Distance(c, l)
	if !ok {
		return false
	}
	e.log.Trace().Float64("distance", d).Float64("distance_filter", limit).Msg("distance check")
	return d >= limit
}

func (e *Engine) directionTriggered(c, l *fix.Fix) bool {
	limit, ok := e.Thresholds.Value(DirectionFilter)
	if !ok || c.Course == nil || l.Course == nil {
		return false
	}
	delta := fix.CourseDelta(*c.Course, *l.Course)
	e.log.Trace().Float64("delta", delta).Float64("direction_filter", limit).Msg("direction check")
	if delta < limit {
		return false
	}
	threshold, ok := e.Thresholds.Value(DirectionThreshold)
	if !ok {
		return true
	}
	d, ok := fix.Distance(c, l)
	if !ok {
		return false
	}
	e.log.Trace().Float64("distance", d).Float64("direction_threshold", threshold).Msg("direction distance check")
	return d >= threshold
}

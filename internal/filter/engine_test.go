package filter

import (
	"io"
	"testing"
	"time"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
)

func quietLogger() log.Logger {
	return log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

var t0 = time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int, lat, lon, mps, course float64) *fix.Fix {
	return &fix.Fix{
		Valid:     true,
		Latitude:  fix.Float(lat),
		Longitude: fix.Float(lon),
		SpeedMps:  fix.Float(mps),
		Course:    fix.Float(course),
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
	}
}

func newEngine(p Policy) *Engine {
	return NewEngine(NewThresholds(p), quietLogger())
}

func TestEvaluate_FirstFixAlwaysPublishes(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(TimeFilter, 3600)
	_ = e.Thresholds.SetValue(DistanceFilter, 1000000)
	ok, reason := e.Evaluate(at(0, 45, 7, 0, 0), nil)
	if !ok || reason != ReasonFirst {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_InvalidNeverPublishes(t *testing.T) {
	e := newEngine(Clamp)
	c := at(100, 45, 7, 0, 0)
	c.Valid = false
	if ok, reason := e.Evaluate(c, nil); ok || reason != ReasonInvalid {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
	if ok, reason := e.Evaluate(c, at(0, 45, 7, 0, 0)); ok || reason != ReasonInvalid {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_NoFiltersAlways(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(DirectionThreshold, 10)
	ok, reason := e.Evaluate(at(1, 45, 7, 0, 0), at(0, 45, 7, 0, 0))
	if !ok || reason != ReasonAlways {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_TimeBeforeDistance(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(TimeFilter, 10)
	_ = e.Thresholds.SetValue(DistanceFilter, 100)
	// 60 s later and roughly 11 km away: both filters trigger.
	ok, reason := e.Evaluate(at(60, 45.1, 7, 0, 0), at(0, 45, 7, 0, 0))
	if !ok || reason != ReasonTime {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_Speed(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(TimeFilter, 600)
	_ = e.Thresholds.SetValue(SpeedFilter, 5)
	ok, reason := e.Evaluate(at(5, 45, 7, 12, 0), at(0, 45, 7, 6, 0))
	if !ok || reason != ReasonSpeed {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
	ok, reason = e.Evaluate(at(5, 45, 7, 10, 0), at(0, 45, 7, 6, 0))
	if ok || reason != ReasonFiltered {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_Distance(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(DistanceFilter, 1000)
	ok, reason := e.Evaluate(at(5, 45.01, 7, 0, 0), at(0, 45, 7, 0, 0))
	if !ok || reason != ReasonDistance {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
	ok, reason = e.Evaluate(at(5, 45.001, 7, 0, 0), at(0, 45, 7, 0, 0))
	if ok || reason != ReasonFiltered {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_DistanceSkipsWithoutPosition(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(DistanceFilter, 1)
	last := at(0, 45, 7, 0, 0)
	last.Longitude = nil
	ok, reason := e.Evaluate(at(5, 46, 7, 0, 0), last)
	if ok || reason != ReasonFiltered {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_DirectionWraps(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(DirectionFilter, 30)
	ok, reason := e.Evaluate(at(5, 45, 7, 0, 340), at(0, 45, 7, 0, 20))
	if !ok || reason != ReasonDirection {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
	ok, reason = e.Evaluate(at(5, 45, 7, 0, 350), at(0, 45, 7, 0, 10))
	if ok || reason != ReasonFiltered {
		t.Fatalf("20 degree turn should be filtered: ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluate_DirectionNeedsThresholdDistance(t *testing.T) {
	e := newEngine(Clamp)
	_ = e.Thresholds.SetValue(DirectionFilter, 30)
	_ = e.Thresholds.SetValue(DirectionThreshold, 500)
	// Turned 90 degrees but only moved about 111 m.
	ok, reason := e.Evaluate(at(5, 45.001, 7, 0, 90), at(0, 45, 7, 0, 0))
	if ok || reason != ReasonFiltered {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
	// Turned 90 degrees and moved about 1.1 km.
	ok, reason = e.Evaluate(at(5, 45.01, 7, 0, 90), at(0, 45, 7, 0, 0))
	if !ok || reason != ReasonDirection {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}
}

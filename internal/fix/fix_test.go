package fix

import (
	"math"
	"testing"
)

func TestDistance_KnownPair(t *testing.T) {
	// Paris -> London, about 343.5 km on a 6371 km sphere.
	a := &Fix{Latitude: Float(48.8566), Longitude: Float(2.3522)}
	b := &Fix{Latitude: Float(51.5074), Longitude: Float(-0.1278)}
	d, ok := Distance(a, b)
	if !ok {
		t.Fatalf("expected distance")
	}
	if d < 343000 || d > 344500 {
		t.Fatalf("distance=%v", d)
	}
}

func TestDistance_MissingPosition(t *testing.T) {
	a := &Fix{Latitude: Float(1)}
	b := &Fix{Latitude: Float(1), Longitude: Float(1)}
	if _, ok := Distance(a, b); ok {
		t.Fatalf("expected ok=false without longitude")
	}
	if _, ok := Distance(nil, b); ok {
		t.Fatalf("expected ok=false for nil fix")
	}
}

func TestCourseDelta(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{10, 350, 20},
		{350, 10, 20},
		{0, 180, 180},
		{90, 90, 0},
		{45, 315, 90},
	}
	for _, c := range cases {
		if got := CourseDelta(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("CourseDelta(%v,%v)=%v want %v", c.a, c.b, got, c.want)
		}
	}
}

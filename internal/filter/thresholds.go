// Package filter decides whether a new fix differs enough from the last
// published one to be forwarded.
package filter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrOutOfRange    = errors.New("filter: value out of range")
	ErrInvalidValue  = errors.New("filter: invalid value")
	ErrUnknownFilter = errors.New("filter: unknown filter")
	ErrUnknownPolicy = errors.New("filter: unknown policy")
)

type Kind int

const (
	TimeFilter Kind = iota
	SpeedFilter
	DistanceFilter
	DirectionFilter
	DirectionThreshold
	numKinds
)

// Kinds lists every filter in evaluation order.
var Kinds = [...]Kind{TimeFilter, SpeedFilter, DistanceFilter, DirectionFilter, DirectionThreshold}

type Limits struct {
	Min float64
	Max float64
}

var (
	TimeFilterLimits         = Limits{10, 86400}
	DistanceFilterLimits     = Limits{1, 6000000}
	SpeedFilterLimits        = Limits{1, 500}
	DirectionFilterLimits    = Limits{1, 360}
	DirectionThresholdLimits = Limits{1, 6000000}
)

var kindInfo = [numKinds]struct {
	key    string
	name   string
	limits Limits
}{
	TimeFilter:         {"time_filter", "TimeFilter", TimeFilterLimits},
	SpeedFilter:        {"speed_filter", "SpeedFilter", SpeedFilterLimits},
	DistanceFilter:     {"distance_filter", "DistanceFilter", DistanceFilterLimits},
	DirectionFilter:    {"direction_filter", "DirectionFilter", DirectionFilterLimits},
	DirectionThreshold: {"direction_threshold", "DirectionThreshold", DirectionThresholdLimits},
}

// Key is the configuration key, e.g. "time_filter".
func (k Kind) Key() string { return kindInfo[k].key }

// String is the GpsGate name, e.g. "TimeFilter".
func (k Kind) String() string { return kindInfo[k].name }

func (k Kind) Limits() Limits { return kindInfo[k].limits }

// ParseKind accepts either the GpsGate name or the configuration key,
// case-insensitively.
func ParseKind(name string) (Kind, bool) {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
	for _, k := range Kinds {
		if strings.ToLower(k.String()) == n {
			return k, true
		}
	}
	return 0, false
}

type Policy int

const (
	// Clamp pulls out-of-range values to the nearest limit.
	Clamp Policy = iota
	// Strict rejects out-of-range values.
	Strict
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return Clamp, nil
	case "strict":
		return Strict, nil
	}
	return Clamp, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "clamp"
}

// Setting is one threshold. Set distinguishes "never configured" from
// "configured as disabled".
type Setting struct {
	Set     bool
	Enabled bool
	Value   float64
}

// Thresholds is safe for concurrent use: the session writes server overrides
// while the status endpoint reads.
type Thresholds struct {
	mu       sync.RWMutex
	policy   Policy
	settings [numKinds]Setting
}

func NewThresholds(p Policy) *Thresholds {
	return &Thresholds{policy: p}
}

func (t *Thresholds) Policy() Policy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.policy
}

// Set parses raw and stores it. "", "0", "none" and "null" disable the
// filter.
func (t *Thresholds) Set(k Kind, raw string) error {
	if k < 0 || k >= numKinds {
		return fmt.Errorf("%w: %d", ErrUnknownFilter, k)
	}
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "none", "null":
		t.Disable(k)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, k.Key(), raw)
	}
	return t.SetValue(k, v)
}

// SetValue stores v, clamping or rejecting it per policy. Zero disables the
// filter.
func (t *Thresholds) SetValue(k Kind, v float64) error {
	if k < 0 || k >= numKinds {
		return fmt.Errorf("%w: %d", ErrUnknownFilter, k)
	}
	if v == 0 {
		t.Disable(k)
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lim := k.Limits()
	if v < lim.Min || v > lim.Max {
		if t.policy == Strict {
			return fmt.Errorf("%w: %s=%v not in [%v,%v]", ErrOutOfRange, k.Key(), v, lim.Min, lim.Max)
		}
		v = math.Max(lim.Min, math.Min(lim.Max, v))
	}
	t.settings[k] = Setting{Set: true, Enabled: true, Value: v}
	return nil
}

func (t *Thresholds) Disable(k Kind) {
	t.mu.Lock()
	t.settings[k] = Setting{Set: true}
	t.mu.Unlock()
}

// SetByName routes a server-pushed override, e.g. ("DistanceFilter", "500").
func (t *Thresholds) SetByName(name, raw string) error {
	k, ok := ParseKind(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return t.Set(k, raw)
}

func (t *Thresholds) Get(k Kind) Setting {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settings[k]
}

// Value returns the threshold and whether the filter is enabled.
func (t *Thresholds) Value(k Kind) (float64, bool) {
	s := t.Get(k)
	return s.Value, s.Enabled
}

// Any reports whether at least one gating filter is enabled.
// DirectionThreshold only qualifies DirectionFilter and does not count.
func (t *Thresholds) Any() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, k := range []Kind{TimeFilter, SpeedFilter, DistanceFilter, DirectionFilter} {
		if t.settings[k].Enabled {
			return true
		}
	}
	return false
}

// Snapshot maps configuration keys to enabled thresholds; disabled or unset
// filters map to nil.
func (t *Thresholds) Snapshot() map[string]*float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*float64, len(Kinds))
	for _, k := range Kinds {
		s := t.settings[k]
		if s.Enabled {
			v := s.Value
			out[k.Key()] = &v
		} else {
			out[k.Key()] = nil
		}
	}
	return out
}

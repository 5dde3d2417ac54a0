// Package aggregator folds one burst of NMEA sentences into a single
// candidate fix and hands it to the filter engine.
package aggregator

import (
	"fmt"
	"strconv"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/filter"
	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
	"github.com/cradlepoint/sdk-samples-sub000/internal/nmea"
)

const knotsToMps = 0.514444444

// Aggregator is owned by a single goroutine.
type Aggregator struct {
	engine      *filter.Engine
	log         log.Logger
	current     *fix.Fix
	rmcSeen     bool
	timeFromGGA bool
	last        *fix.Fix
	lastPublish time.Time
}

func New(engine *filter.Engine, logger log.Logger) *Aggregator {
	a := &Aggregator{engine: engine, log: logger}
	a.log.Context = log.NewContext(nil).Str("module", "aggregator").Value()
	return a
}

// Start opens a new burst collected at now, or at the current time when now
// is zero. Any unfinished candidate is dropped.
func (a *Aggregator) Start(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	a.current = &fix.Fix{Timestamp: now}
	a.rmcSeen = false
	a.timeFromGGA = false
}

// ParseSentence merges raw into the open burst. The result reports whether a
// supported sentence type was recognized and parsed; unknown types return
// false with a nil error. A missing or wrong checksum and a short sentence
// are errors.
func (a *Aggregator) ParseSentence(raw string) (bool, error) {
	ok, err := nmea.ValidateChecksum(raw)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %q", nmea.ErrChecksum, raw)
	}
	tokens, err := nmea.Tokens(raw)
	if err != nil {
		return false, err
	}
	if a.current == nil {
		a.Start(time.Time{})
	}
	switch tokens[0] {
	case nmea.TypeRMC:
		return a.parseRMC(tokens)
	case nmea.TypeVTG:
		return a.parseVTG(tokens)
	case nmea.TypeGGA:
		return a.parseGGA(tokens)
	}
	a.log.Trace().Str("type", tokens[0]).Msg("ignoring sentence")
	return false, nil
}

// $GPRMC,time,status,lat,N/S,lon,E/W,knots,course,date,magvar,E/W[,mode]
func (a *Aggregator) parseRMC(t []string) (bool, error) {
	if len(t) < 10 {
		return false, fmt.Errorf("%w: %s has %d fields", nmea.ErrFormat, nmea.TypeRMC, len(t))
	}
	c := a.current
	// only the first RMC of a burst decides validity
	if !a.rmcSeen {
		c.Valid = t[2] == "A"
		a.rmcSeen = true
	}
	if t[2] != "A" {
		return false, nil
	}
	a.setPosition(t[3], t[4], t[5], t[6])
	if c.SpeedKnots == nil {
		if kn, ok := parseFloat(t[7]); ok {
			c.SpeedKnots = fix.Float(kn)
			if c.SpeedMps == nil {
				c.SpeedMps = fix.Float(kn * knotsToMps)
			}
		}
	}
	if c.Course == nil {
		if v, ok := parseFloat(t[8]); ok {
			c.Course = fix.Float(v)
		}
	}
	// RMC carries the date, so it replaces a time-of-day taken from GGA
	if c.GPSTime == nil || a.timeFromGGA {
		if gt, ok := gpsTime(t[1], t[9]); ok {
			c.GPSTime = &gt
			a.timeFromGGA = false
		}
	}
	return true, nil
}

// $GPVTG,course,T,course_mag,M,knots,N,kmh,K[,mode]
func (a *Aggregator) parseVTG(t []string) (bool, error) {
	if len(t) < 9 {
		return false, fmt.Errorf("%w: %s has %d fields", nmea.ErrFormat, nmea.TypeVTG, len(t))
	}
	c := a.current
	if c.Course == nil {
		if v, ok := parseFloat(t[1]); ok {
			c.Course = fix.Float(v)
		}
	}
	kn, hasKn := parseFloat(t[5])
	kmh, hasKmh := parseFloat(t[7])
	if c.SpeedKnots == nil && hasKn {
		c.SpeedKnots = fix.Float(kn)
	}
	if c.SpeedKmh == nil && hasKmh {
		c.SpeedKmh = fix.Float(kmh)
	}
	if c.SpeedMps == nil {
		switch {
		case hasKn:
			c.SpeedMps = fix.Float(kn * knotsToMps)
		case hasKmh:
			c.SpeedMps = fix.Float(kmh / 3.6)
		}
	}
	return true, nil
}

// $GPGGA,time,lat,N/S,lon,E/W,quality,sats,hdop,alt,M,geoid,M,age,station
func (a *Aggregator) parseGGA(t []string) (bool, error) {
	if len(t) < 10 {
		return false, fmt.Errorf("%w: %s has %d fields", nmea.ErrFormat, nmea.TypeGGA, len(t))
	}
	c := a.current
	a.setPosition(t[2], t[3], t[4], t[5])
	if c.GPSTime == nil {
		if gt, ok := timeOfDay(t[1], c.Timestamp); ok {
			c.GPSTime = &gt
			a.timeFromGGA = true
		}
	}
	if c.FixQuality == nil {
		if v, err := strconv.Atoi(t[6]); err == nil {
			c.FixQuality = fix.Int(v)
		}
	}
	if c.Satellites == nil {
		if v, err := strconv.Atoi(t[7]); err == nil {
			c.Satellites = fix.Int(v)
		}
	}
	if c.HDOP == nil {
		if v, ok := parseFloat(t[8]); ok {
			c.HDOP = fix.Float(v)
		}
	}
	if c.Altitude == nil {
		if v, ok := parseFloat(t[9]); ok {
			c.Altitude = fix.Float(v)
		}
	}
	return true, nil
}

// setPosition fills latitude and longitude independently. An unparseable
// coordinate is left unset rather than failing the sentence.
func (a *Aggregator) setPosition(lat, ns, lon, ew string) {
	c := a.current
	if c.Latitude == nil && lat != "" {
		if v, err := nmea.ParseLatitude(lat, ns); err == nil {
			c.Latitude = fix.Float(v)
		} else {
			a.log.Debug().Err(err).Msg("latitude skipped")
		}
	}
	if c.Longitude == nil && lon != "" {
		if v, err := nmea.ParseLongitude(lon, ew); err == nil {
			c.Longitude = fix.Float(v)
		} else {
			a.log.Debug().Err(err).Msg("longitude skipped")
		}
	}
}

// End evaluates the open candidate against the last published fix. It does
// not change any state.
func (a *Aggregator) End() (bool, filter.Reason) {
	return a.engine.Evaluate(a.current, a.last)
}

// Publish makes a valid candidate the new reference fix. The publish time is
// recorded either way.
func (a *Aggregator) Publish(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	if a.current != nil && a.current.Valid {
		a.last = a.current
	}
	a.lastPublish = now
}

func (a *Aggregator) Candidate() *fix.Fix { return a.current }

func (a *Aggregator) Last() *fix.Fix { return a.last }

func (a *Aggregator) LastPublish() time.Time { return a.lastPublish }

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func gpsTime(hms, dmy string) (time.Time, bool) {
	if hms == "" || dmy == "" {
		return time.Time{}, false
	}
	t, err := gonmea.ParseTime(hms)
	if err != nil || !t.Valid {
		return time.Time{}, false
	}
	d, err := gonmea.ParseDate(dmy)
	if err != nil || !d.Valid {
		return time.Time{}, false
	}
	year := 2000 + d.YY
	if d.YY >= 80 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC), true
}

// timeOfDay combines an hhmmss token with the UTC date of day.
func timeOfDay(hms string, day time.Time) (time.Time, bool) {
	if hms == "" {
		return time.Time{}, false
	}
	t, err := gonmea.ParseTime(hms)
	if err != nil || !t.Valid {
		return time.Time{}, false
	}
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC), true
}

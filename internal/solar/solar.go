package solar

import (
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/teambition/rrule-go"

	"sunwatch/internal/models"
)

// Times holds the sunrise and sunset for one calendar day. A nil field means
// the event does not occur that day (polar day or night, or an unusable
// coordinate).
type Times struct {
	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`
}

// For returns the instant of the given kind.
func (t Times) For(kind models.EventKind) *time.Time {
	switch kind {
	case models.Sunrise:
		return t.Sunrise
	case models.Sunset:
		return t.Sunset
	}
	return nil
}

type Calculator interface {
	Compute(date time.Time, c models.Coordinate) Times
	ComputeBatch(dates []time.Time, c models.Coordinate) []Times
}

// SunriseCalculator implements Calculator with go-sunrise. The calendar day
// is taken from date in date's own location; returned instants are UTC.
type SunriseCalculator struct{}

func NewCalculator() SunriseCalculator {
	return SunriseCalculator{}
}

func (SunriseCalculator) Compute(date time.Time, c models.Coordinate) Times {
	if !validCoordinate(c) {
		return Times{}
	}

	rise, set := sunrise.SunriseSunset(c.Latitude, c.Longitude, date.Year(), date.Month(), date.Day())
	if rise.IsZero() || set.IsZero() || !rise.Before(set) {
		return Times{}
	}
	return Times{Sunrise: &rise, Sunset: &set}
}

func (s SunriseCalculator) ComputeBatch(dates []time.Time, c models.Coordinate) []Times {
	out := make([]Times, len(dates))
	for i, d := range dates {
		out[i] = s.Compute(d, c)
	}
	return out
}

func validCoordinate(c models.Coordinate) bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return math.Abs(c.Latitude) <= 90 && math.Abs(c.Longitude) <= 180
}

// LocalTime returns now in the coordinate's local mean time, the fixed offset
// of longitude/15 hours from UTC. Its calendar day is the day a person at
// the coordinate is living in, whatever zone the host runs in. An unusable
// coordinate yields UTC.
func LocalTime(now time.Time, c models.Coordinate) time.Time {
	if !validCoordinate(c) {
		return now.UTC()
	}
	offset := int(math.Round(c.Longitude / 15 * 3600))
	return now.In(time.FixedZone("LMT", offset))
}

// Event computes the kind's event for date's calendar day.
func Event(calc Calculator, kind models.EventKind, date time.Time, c models.Coordinate) models.SolarEvent {
	day := startOfDay(date)
	return models.SolarEvent{
		Kind:    kind,
		Date:    day,
		Instant: calc.Compute(day, c).For(kind),
	}
}

// Upcoming computes the kind's event for days consecutive calendar days
// starting with from's day.
func Upcoming(calc Calculator, kind models.EventKind, from time.Time, days int, c models.Coordinate) ([]models.SolarEvent, error) {
	dates, err := Days(from, days)
	if err != nil {
		return nil, err
	}
	times := calc.ComputeBatch(dates, c)
	events := make([]models.SolarEvent, len(dates))
	for i, d := range dates {
		events[i] = models.SolarEvent{Kind: kind, Date: d, Instant: times[i].For(kind)}
	}
	return events, nil
}

// Days returns the midnights of n consecutive days beginning with from's day,
// in from's location.
func Days(from time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return []time.Time{}, nil
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   n,
		Dtstart: startOfDay(from),
	})
	if err != nil {
		return nil, err
	}
	return r.All(), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"sunwatch/internal/models"
	"sunwatch/internal/solar"
)

const MaxDays = 60

// Request describes one feed: which kinds to include, where, and for how
// many days starting with From's calendar day.
type Request struct {
	Coordinate models.Coordinate
	From       time.Time
	Days       int
	Kinds      []models.EventKind
	// Reminders adds a display alarm to events of kinds with an enabled
	// reminder, lead minutes before the event.
	Reminders map[models.EventKind]models.ReminderSetting
}

// Build renders the solar events of req as an iCalendar document. Days
// without an event of a kind are left out.
func Build(calc solar.Calculator, bundle string, req Request) (string, error) {
	if req.Days < 1 || req.Days > MaxDays {
		return "", fmt.Errorf("days must be between 1 and %d", MaxDays)
	}
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = models.Kinds()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//sunwatch//solar events//EN")
	cal.SetXWRCalName("Sunrise & Sunset")

	stamp := req.From.UTC()
	place := fmt.Sprintf("%.4f, %.4f", req.Coordinate.Latitude, req.Coordinate.Longitude)

	for _, kind := range kinds {
		events, err := solar.Upcoming(calc, kind, req.From, req.Days, req.Coordinate)
		if err != nil {
			return "", err
		}
		setting, remind := req.Reminders[kind]
		for _, e := range events {
			if e.Instant == nil {
				continue
			}
			ev := cal.AddEvent(fmt.Sprintf("%s.%s.%s", bundle, kind, e.Date.Format("20060102")))
			ev.SetDtStampTime(stamp)
			ev.SetStartAt(*e.Instant)
			ev.SetEndAt(*e.Instant)
			ev.SetSummary(fmt.Sprintf("%s %s", kind.Emoji(), kind.DisplayName()))
			ev.SetLocation(place)

			if remind && setting.Enabled {
				alarm := ev.AddAlarm()
				alarm.SetAction(ical.ActionDisplay)
				alarm.SetTrigger(fmt.Sprintf("-PT%dM", setting.LeadMinutes))
			}
		}
	}
	return cal.Serialize(), nil
}

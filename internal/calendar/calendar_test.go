package calendar

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"sunwatch/internal/models"
	"sunwatch/internal/solar"
)

var sanFrancisco = models.Coordinate{Latitude: 37.7749, Longitude: -122.4194}

func TestBuildFeed(t *testing.T) {
	from := time.Date(2024, 3, 30, 15, 0, 0, 0, time.UTC)
	body, err := Build(solar.NewCalculator(), "io.sunwatch", Request{
		Coordinate: sanFrancisco,
		From:       from,
		Days:       3,
		Reminders: map[models.EventKind]models.ReminderSetting{
			models.Sunset: {Kind: models.Sunset, Enabled: true, LeadMinutes: 20},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	cal, err := ical.ParseCalendar(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Feed does not parse: %v", err)
	}
	events := cal.Events()
	if len(events) != 6 {
		t.Fatalf("Expected 6 events, got %d", len(events))
	}

	uid := events[0].GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value != "io.sunwatch.sunrise.20240330" {
		t.Errorf("Unexpected first UID %+v", uid)
	}
	summary := events[3].GetProperty(ical.ComponentPropertySummary)
	if summary == nil || !strings.Contains(summary.Value, "Sunset") {
		t.Errorf("Unexpected sunset summary %+v", summary)
	}
	for i, ev := range events {
		start, err := ev.GetStartAt()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if start.IsZero() {
			t.Errorf("event %d has no start", i)
		}
	}

	if n := strings.Count(body, "BEGIN:VALARM"); n != 3 {
		t.Errorf("Expected an alarm on each sunset only, got %d", n)
	}
	if !strings.Contains(body, "-PT20M") {
		t.Error("Expected alarm trigger of 20 minutes")
	}
}

func TestBuildSkipsDaysWithoutEvent(t *testing.T) {
	tromso := models.Coordinate{Latitude: 69.6492, Longitude: 18.9553}
	body, err := Build(solar.NewCalculator(), "io.sunwatch", Request{
		Coordinate: tromso,
		From:       time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
		Days:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body, "BEGIN:VEVENT") {
		t.Fatal("Expected no events during polar day")
	}
	if !strings.Contains(body, "BEGIN:VCALENDAR") {
		t.Fatal("Expected an empty calendar")
	}
}

func TestBuildRejectsDayRange(t *testing.T) {
	for _, days := range []int{0, -1, MaxDays + 1} {
		if _, err := Build(solar.NewCalculator(), "io.sunwatch", Request{Coordinate: sanFrancisco, From: time.Now(), Days: days}); err == nil {
			t.Errorf("Expected error for %d days", days)
		}
	}
}

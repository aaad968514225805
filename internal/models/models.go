package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownEventKind = errors.New("unknown event kind")

// EventKind identifies one of the two solar events the service tracks.
type EventKind string

const (
	Sunrise EventKind = "sunrise"
	Sunset  EventKind = "sunset"
)

// Kinds lists every event kind in display order.
func Kinds() []EventKind {
	return []EventKind{Sunrise, Sunset}
}

func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(strings.ToLower(strings.TrimSpace(s))) {
	case Sunrise:
		return Sunrise, nil
	case Sunset:
		return Sunset, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
}

func (k EventKind) DisplayName() string {
	switch k {
	case Sunrise:
		return "Sunrise"
	case Sunset:
		return "Sunset"
	}
	return string(k)
}

func (k EventKind) Emoji() string {
	switch k {
	case Sunrise:
		return "🌅"
	case Sunset:
		return "🌇"
	}
	return ""
}

// NotificationID is the stable identifier of the kind's reminder, used as
// the dedup key in the notification outbox.
func (k EventKind) NotificationID(bundle string) string {
	return bundle + "." + string(k) + ".notification"
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SolarEvent is the outcome of one calculation. Instant is nil when the sun
// does not rise or set on Date at the requested coordinate.
type SolarEvent struct {
	Kind    EventKind  `json:"kind"`
	Date    time.Time  `json:"date"`
	Instant *time.Time `json:"instant,omitempty"`
}

type ReminderSetting struct {
	Kind        EventKind `json:"kind"`
	Enabled     bool      `json:"enabled"`
	LeadMinutes int       `json:"lead_minutes"`
}

const DefaultLeadMinutes = 15

// DefaultReminderSetting is what a kind reports before anything was stored.
func DefaultReminderSetting(kind EventKind) ReminderSetting {
	return ReminderSetting{Kind: kind, Enabled: false, LeadMinutes: DefaultLeadMinutes}
}

type PendingReminder struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fire_at"`
	CreatedAt time.Time `json:"created_at"`
}

type PushSubscription struct {
	ID       int    `json:"id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type UpdateLeadMinutesRequest struct {
	LeadMinutes *int `json:"lead_minutes"`
}

type ReportFixesRequest struct {
	Fixes []Coordinate `json:"fixes"`
}

type ReportAuthorizationRequest struct {
	Status string `json:"status"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

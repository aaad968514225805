package notify

import (
	"context"
	"errors"
	"time"

	"sunwatch/internal/models"
)

var ErrNotAuthorized = errors.New("notifications not authorized")

type Capability string

const (
	Alert Capability = "alert"
	Sound Capability = "sound"
	Badge Capability = "badge"
)

// Request is a one-shot reminder to deliver at FireAt.
type Request struct {
	ID     string
	Title  string
	Body   string
	FireAt time.Time
}

// Authority accepts, replaces and withdraws pending reminders. Submitting
// an ID that is already pending replaces it.
type Authority interface {
	RequestAuthorization(caps ...Capability) (bool, error)
	Submit(req Request) error
	Cancel(ids ...string) error
	CancelAll() error
	Pending() ([]models.PendingReminder, error)
}

// Deliverer hands due reminders to their channels.
type Deliverer interface {
	DeliverDue(ctx context.Context, now time.Time) (int, error)
}

// Message is what a channel delivers.
type Message struct {
	Title string
	Body  string
	Tag   string
}

// Channel is one delivery route for reminders (web push, e-mail).
type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

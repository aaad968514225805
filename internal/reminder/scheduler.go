package reminder

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sunwatch/internal/models"
	"sunwatch/internal/notify"
)

// Scheduler keeps at most one pending reminder per event kind with the
// notification authority. Authority failures are logged and dropped; a
// reminder that cannot be registered is simply not delivered.
type Scheduler struct {
	authority notify.Authority
	bundle    string
	log       *zap.Logger
	now       func() time.Time
}

func NewScheduler(authority notify.Authority, bundle string, log *zap.Logger) *Scheduler {
	return &Scheduler{authority: authority, bundle: bundle, log: log, now: time.Now}
}

// RequestAuthorization asks for alert, sound and badge permission.
func (s *Scheduler) RequestAuthorization() bool {
	granted, err := s.authority.RequestAuthorization(notify.Alert, notify.Sound, notify.Badge)
	if err != nil {
		s.log.Error("notification authorization failed", zap.Error(err))
		return false
	}
	if !granted {
		s.log.Warn("notification permission denied, reminders will not be delivered")
	}
	return granted
}

// Schedule replaces the kind's reminder with one firing leadMinutes before
// instant. A fire time that is not in the future leaves everything as is.
func (s *Scheduler) Schedule(kind models.EventKind, instant time.Time, leadMinutes int) {
	if leadMinutes < 0 {
		leadMinutes = 0
	}
	fireAt := instant.Add(-time.Duration(leadMinutes) * time.Minute)
	if !fireAt.After(s.now()) {
		s.log.Debug("reminder fire time already passed",
			zap.String("kind", string(kind)),
			zap.Time("fire_at", fireAt),
		)
		return
	}

	id := kind.NotificationID(s.bundle)
	if err := s.authority.Cancel(id); err != nil {
		s.log.Error("failed to cancel reminder", zap.String("id", id), zap.Error(err))
	}

	err := s.authority.Submit(notify.Request{
		ID:     id,
		Title:  Title(kind),
		Body:   Body(kind, leadMinutes),
		FireAt: fireAt,
	})
	switch {
	case errors.Is(err, notify.ErrNotAuthorized):
		s.log.Warn("reminder not scheduled, notifications not authorized", zap.String("id", id))
	case err != nil:
		s.log.Error("failed to schedule reminder", zap.String("id", id), zap.Error(err))
	default:
		s.log.Info("reminder scheduled",
			zap.String("id", id),
			zap.Time("fire_at", fireAt),
			zap.Int("lead_minutes", leadMinutes),
		)
	}
}

func (s *Scheduler) Cancel(kind models.EventKind) {
	id := kind.NotificationID(s.bundle)
	if err := s.authority.Cancel(id); err != nil {
		s.log.Error("failed to cancel reminder", zap.String("id", id), zap.Error(err))
	}
}

func (s *Scheduler) CancelAll() {
	if err := s.authority.CancelAll(); err != nil {
		s.log.Error("failed to cancel reminders", zap.Error(err))
	}
}

func (s *Scheduler) Pending() ([]models.PendingReminder, error) {
	return s.authority.Pending()
}

func Title(kind models.EventKind) string {
	return fmt.Sprintf("%s %s Reminder", kind.Emoji(), kind.DisplayName())
}

func Body(kind models.EventKind, leadMinutes int) string {
	return fmt.Sprintf("%s is in %d minutes!", kind.DisplayName(), leadMinutes)
}

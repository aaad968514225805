package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sunwatch/internal/models"
)

// Outbox keeps pending reminders in the reminders table and delivers them
// through its channels once due. It is authorized only while at least one
// channel is configured.
type Outbox struct {
	db       *sql.DB
	channels []Channel
	log      *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	authorized bool
}

func NewOutbox(db *sql.DB, log *zap.Logger, channels ...Channel) *Outbox {
	return &Outbox{db: db, channels: channels, log: log, now: time.Now}
}

func (o *Outbox) RequestAuthorization(caps ...Capability) (bool, error) {
	configured := make([]string, 0, len(o.channels))
	for _, ch := range o.channels {
		if ch.Configured() {
			configured = append(configured, ch.Name())
		}
	}
	granted := len(configured) > 0

	o.mu.Lock()
	o.authorized = granted
	o.mu.Unlock()

	o.log.Info("notification authorization",
		zap.Bool("granted", granted),
		zap.Strings("channels", configured),
		zap.Any("capabilities", caps),
	)
	return granted, nil
}

func (o *Outbox) isAuthorized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authorized
}

func (o *Outbox) Submit(req Request) error {
	if !o.isAuthorized() {
		return ErrNotAuthorized
	}
	_, err := o.db.Exec(
		`INSERT INTO reminders (id, title, body, fire_at, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		body = excluded.body,
		fire_at = excluded.fire_at,
		created_at = excluded.created_at`,
		req.ID, req.Title, req.Body, req.FireAt.Unix(), o.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store reminder %s: %w", req.ID, err)
	}
	return nil
}

func (o *Outbox) Cancel(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := o.db.Exec("DELETE FROM reminders WHERE id IN ("+placeholders+")", args...)
	return err
}

func (o *Outbox) CancelAll() error {
	_, err := o.db.Exec("DELETE FROM reminders")
	return err
}

func (o *Outbox) Pending() ([]models.PendingReminder, error) {
	return o.query("SELECT id, title, body, fire_at, created_at FROM reminders ORDER BY fire_at ASC")
}

func (o *Outbox) query(q string, args ...any) ([]models.PendingReminder, error) {
	rows, err := o.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := []models.PendingReminder{}
	for rows.Next() {
		var (
			r                 models.PendingReminder
			fireAt, createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Body, &fireAt, &createdAt); err != nil {
			return nil, err
		}
		r.FireAt = time.Unix(fireAt, 0).UTC()
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// DeliverDue sends every reminder whose fire time has arrived and removes
// it. Reminders are one-shot: a channel failure is logged, not retried.
func (o *Outbox) DeliverDue(ctx context.Context, now time.Time) (int, error) {
	due, err := o.query(
		"SELECT id, title, body, fire_at, created_at FROM reminders WHERE fire_at <= ? ORDER BY fire_at ASC",
		now.Unix(),
	)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		// Remove first so a concurrent resubmit of the same ID survives.
		res, err := o.db.Exec("DELETE FROM reminders WHERE id = ? AND fire_at = ?", r.ID, r.FireAt.Unix())
		if err != nil {
			return delivered, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		msg := Message{Title: r.Title, Body: r.Body, Tag: r.ID}
		sent := 0
		for _, ch := range o.channels {
			if !ch.Configured() {
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				o.log.Error("reminder delivery failed",
					zap.String("id", r.ID),
					zap.String("channel", ch.Name()),
					zap.Error(err),
				)
				continue
			}
			sent++
		}
		o.log.Info("reminder delivered",
			zap.String("id", r.ID),
			zap.Time("fire_at", r.FireAt),
			zap.Int("channels", sent),
		)
		delivered++
	}
	return delivered, nil
}

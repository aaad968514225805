package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"sunwatch/internal/models"
)

// PushPayload represents the notification payload sent to clients
type PushPayload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Icon  string                 `json:"icon,omitempty"`
	Tag   string                 `json:"tag,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

type VapidConfig struct {
	Subject    string
	PublicKey  string
	PrivateKey string
}

// WebPush delivers to every browser subscription stored in
// push_subscriptions.
type WebPush struct {
	db    *sql.DB
	vapid VapidConfig
	log   *zap.Logger
	send  func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)
}

func NewWebPush(db *sql.DB, vapid VapidConfig, log *zap.Logger) *WebPush {
	return &WebPush{db: db, vapid: vapid, log: log, send: webpush.SendNotificationWithContext}
}

func (w *WebPush) Name() string { return "webpush" }

func (w *WebPush) Configured() bool {
	return w.vapid.PublicKey != "" && w.vapid.PrivateKey != "" && w.vapid.Subject != ""
}

func (w *WebPush) PublicKey() string { return w.vapid.PublicKey }

func (w *WebPush) options() *webpush.Options {
	return &webpush.Options{
		Subscriber:      w.vapid.Subject,
		VAPIDPublicKey:  w.vapid.PublicKey,
		VAPIDPrivateKey: w.vapid.PrivateKey,
		TTL:             30,
	}
}

func (w *WebPush) Subscribe(sub models.PushSubscription) error {
	_, err := w.db.Exec(
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth)
		VALUES (?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
		p256dh = excluded.p256dh,
		auth = excluded.auth`,
		sub.Endpoint, sub.P256dh, sub.Auth,
	)
	return err
}

func (w *WebPush) Unsubscribe(endpoint string) error {
	_, err := w.db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
	return err
}

func (w *WebPush) subscriptions() ([]models.PushSubscription, error) {
	rows, err := w.db.Query("SELECT id, endpoint, p256dh, auth FROM push_subscriptions")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []models.PushSubscription{}
	for rows.Next() {
		var s models.PushSubscription
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Send pushes msg to all subscriptions. Endpoints the push service reports
// as gone (404, 410) or as keyed for other VAPID credentials (403) are
// removed so the client re-subscribes.
func (w *WebPush) Send(ctx context.Context, msg Message) error {
	if !w.Configured() {
		return ErrNotAuthorized
	}

	subs, err := w.subscriptions()
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return fmt.Errorf("no push subscriptions registered")
	}

	payload, err := json.Marshal(PushPayload{
		Title: msg.Title,
		Body:  msg.Body,
		Tag:   msg.Tag,
		Data:  map[string]interface{}{"id": msg.Tag},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	options := w.options()
	successCount, failCount := 0, 0

	for _, s := range subs {
		resp, err := w.send(ctx, payload, &webpush.Subscription{
			Endpoint: s.Endpoint,
			Keys:     webpush.Keys{P256dh: s.P256dh, Auth: s.Auth},
		}, options)
		if err != nil {
			failCount++
			w.log.Warn("push send failed", zap.String("endpoint", redactEndpoint(s.Endpoint)), zap.Error(err))
			if resp != nil {
				w.prune(s.Endpoint, resp.StatusCode)
				resp.Body.Close()
			}
			continue
		}

		status := resp.StatusCode
		if status >= 400 {
			body, _ := io.ReadAll(resp.Body)
			w.log.Warn("push service error response",
				zap.String("endpoint", redactEndpoint(s.Endpoint)),
				zap.Int("status", status),
				zap.ByteString("body", body),
			)
		}
		resp.Body.Close()

		if status >= 400 {
			failCount++
			w.prune(s.Endpoint, status)
			continue
		}
		successCount++
	}

	w.log.Info("push notification summary",
		zap.Int("subscriptions", len(subs)),
		zap.Int("success", successCount),
		zap.Int("failed", failCount),
	)

	if failCount > 0 && successCount == 0 {
		return fmt.Errorf("failed to send any push notifications (attempted %d)", failCount)
	}
	return nil
}

func (w *WebPush) prune(endpoint string, status int) {
	switch status {
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
	default:
		return
	}
	if err := w.Unsubscribe(endpoint); err != nil {
		w.log.Error("failed to remove push subscription", zap.Error(err))
		return
	}
	w.log.Info("removed push subscription", zap.String("endpoint", redactEndpoint(endpoint)), zap.Int("status", status))
}

func redactEndpoint(endpoint string) string {
	if len(endpoint) <= 50 {
		return endpoint
	}
	return endpoint[:50] + "..."
}

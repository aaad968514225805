package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap/zaptest"

	"sunwatch/internal/database"
	"sunwatch/internal/models"
)

type fakeChannel struct {
	name       string
	configured bool
	err        error

	mu   sync.Mutex
	sent []Message
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return f.configured }
func (f *fakeChannel) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func newTestOutbox(t *testing.T, channels ...Channel) *Outbox {
	t.Helper()
	db, err := database.Initialize(":memory:", "")
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOutbox(db, zaptest.NewLogger(t), channels...)
}

func TestOutboxRequiresConfiguredChannel(t *testing.T) {
	o := newTestOutbox(t, &fakeChannel{name: "push"})
	granted, err := o.RequestAuthorization(Alert, Sound, Badge)
	if err != nil {
		t.Fatal(err)
	}
	if granted {
		t.Fatal("Expected authorization to be denied without configured channels")
	}
	err = o.Submit(Request{ID: "x", FireAt: time.Now().Add(time.Hour)})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}
}

func TestOutboxSubmitReplacesByID(t *testing.T) {
	o := newTestOutbox(t, &fakeChannel{name: "push", configured: true})
	if _, err := o.RequestAuthorization(Alert); err != nil {
		t.Fatal(err)
	}

	first := time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)
	second := first.Add(10 * time.Minute)
	for _, at := range []time.Time{first, second} {
		if err := o.Submit(Request{ID: "io.sunwatch.sunrise.notification", Title: "t", Body: "b", FireAt: at}); err != nil {
			t.Fatal(err)
		}
	}
	if err := o.Submit(Request{ID: "io.sunwatch.sunset.notification", Title: "t", Body: "b", FireAt: first.Add(15 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	pending, err := o.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending reminders, got %d", len(pending))
	}
	if pending[0].ID != "io.sunwatch.sunrise.notification" || !pending[0].FireAt.Equal(second) {
		t.Fatalf("Expected replaced sunrise reminder first, got %+v", pending[0])
	}

	if err := o.Cancel("io.sunwatch.sunrise.notification", "unknown"); err != nil {
		t.Fatal(err)
	}
	if pending, _ = o.Pending(); len(pending) != 1 {
		t.Fatalf("Expected 1 pending after cancel, got %d", len(pending))
	}
	if err := o.CancelAll(); err != nil {
		t.Fatal(err)
	}
	if pending, _ = o.Pending(); len(pending) != 0 {
		t.Fatalf("Expected no pending after CancelAll, got %d", len(pending))
	}
}

func TestDeliverDueSendsOnceThroughConfiguredChannels(t *testing.T) {
	push := &fakeChannel{name: "push", configured: true}
	mail := &fakeChannel{name: "email", configured: true, err: errors.New("smtp down")}
	off := &fakeChannel{name: "off"}
	o := newTestOutbox(t, push, mail, off)
	if _, err := o.RequestAuthorization(Alert); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	o.Submit(Request{ID: "due", Title: "🌇 Sunset Reminder", Body: "Sunset is in 15 minutes!", FireAt: now.Add(-time.Second)})
	o.Submit(Request{ID: "later", Title: "later", Body: "later", FireAt: now.Add(time.Hour)})

	n, err := o.DeliverDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 delivered, got %d", n)
	}
	if len(push.sent) != 1 || push.sent[0].Tag != "due" || push.sent[0].Body != "Sunset is in 15 minutes!" {
		t.Fatalf("Unexpected push deliveries: %+v", push.sent)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("Expected failing channel to be attempted once, got %d", len(mail.sent))
	}
	if len(off.sent) != 0 {
		t.Fatal("Expected unconfigured channel to be skipped")
	}

	n, _ = o.DeliverDue(context.Background(), now)
	if n != 0 {
		t.Fatalf("Expected reminders to be one-shot, got %d on second pass", n)
	}
	pending, _ := o.Pending()
	if len(pending) != 1 || pending[0].ID != "later" {
		t.Fatalf("Expected only the future reminder pending, got %+v", pending)
	}
}

func TestMemoryAuthority(t *testing.T) {
	m := NewMemory(false, zaptest.NewLogger(t))
	m.RequestAuthorization(Alert)
	if err := m.Submit(Request{ID: "a"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}

	m.Granted = true
	m.RequestAuthorization(Alert)
	now := time.Now()
	m.Submit(Request{ID: "a", FireAt: now.Add(-time.Minute)})
	m.Submit(Request{ID: "b", FireAt: now.Add(time.Minute)})
	m.Submit(Request{ID: "b", FireAt: now.Add(2 * time.Minute)})

	pending, _ := m.Pending()
	if len(pending) != 2 || pending[0].ID != "a" {
		t.Fatalf("Unexpected pending %+v", pending)
	}
	if n, _ := m.DeliverDue(context.Background(), now); n != 1 {
		t.Fatalf("Expected 1 delivered, got %d", n)
	}
	if d := m.Delivered(); len(d) != 1 || d[0].ID != "a" {
		t.Fatalf("Unexpected delivered %+v", d)
	}
}

func TestWebPushPrunesGoneSubscriptions(t *testing.T) {
	db, err := database.Initialize(":memory:", "")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	w := NewWebPush(db, VapidConfig{Subject: "mailto:a@b.c", PublicKey: "pub", PrivateKey: "priv"}, zaptest.NewLogger(t))
	if err := w.Subscribe(models.PushSubscription{Endpoint: "https://push.example/gone", P256dh: "k", Auth: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Subscribe(models.PushSubscription{Endpoint: "https://push.example/ok", P256dh: "k", Auth: "a"}); err != nil {
		t.Fatal(err)
	}

	var calls []string
	w.send = func(_ context.Context, payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
		calls = append(calls, sub.Endpoint)
		rec := httptest.NewRecorder()
		if sub.Endpoint == "https://push.example/gone" {
			rec.WriteHeader(http.StatusGone)
		} else {
			rec.WriteHeader(http.StatusCreated)
		}
		return rec.Result(), nil
	}

	if err := w.Send(context.Background(), Message{Title: "t", Body: "b", Tag: "x"}); err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("Expected 2 sends, got %d", len(calls))
	}
	subs, err := w.subscriptions()
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/ok" {
		t.Fatalf("Expected gone endpoint pruned, got %+v", subs)
	}
}

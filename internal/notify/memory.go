package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"sunwatch/internal/models"
)

// Memory is an in-process authority. Delivery only logs and drops the
// reminder.
type Memory struct {
	// Granted is the answer RequestAuthorization gives.
	Granted bool

	log *zap.Logger
	now func() time.Time

	mu         sync.Mutex
	authorized bool
	pending    map[string]models.PendingReminder
	delivered  []models.PendingReminder
}

func NewMemory(granted bool, log *zap.Logger) *Memory {
	return &Memory{
		Granted: granted,
		log:     log,
		now:     time.Now,
		pending: make(map[string]models.PendingReminder),
	}
}

func (m *Memory) RequestAuthorization(caps ...Capability) (bool, error) {
	m.mu.Lock()
	m.authorized = m.Granted
	m.mu.Unlock()
	m.log.Info("notification authorization", zap.Bool("granted", m.Granted), zap.Any("capabilities", caps))
	return m.Granted, nil
}

func (m *Memory) Submit(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized {
		return ErrNotAuthorized
	}
	m.pending[req.ID] = models.PendingReminder{
		ID:        req.ID,
		Title:     req.Title,
		Body:      req.Body,
		FireAt:    req.FireAt,
		CreatedAt: m.now(),
	}
	return nil
}

func (m *Memory) Cancel(ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.pending, id)
	}
	return nil
}

func (m *Memory) CancelAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
	return nil
}

func (m *Memory) Pending() ([]models.PendingReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PendingReminder, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (m *Memory) DeliverDue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.pending {
		if r.FireAt.After(now) {
			continue
		}
		delete(m.pending, id)
		m.delivered = append(m.delivered, r)
		m.log.Info("reminder delivered", zap.String("id", id), zap.String("title", r.Title), zap.String("body", r.Body))
		n++
	}
	return n, nil
}

// Delivered returns every reminder handed out by DeliverDue so far.
func (m *Memory) Delivered() []models.PendingReminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PendingReminder(nil), m.delivered...)
}

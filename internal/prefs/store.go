package prefs

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sunwatch/internal/models"
)

var ErrInvalidLeadMinutes = errors.New("lead minutes must not be negative")

// Backend is durable key-value storage. Missing keys report ok == false.
type Backend interface {
	GetBool(key string) (value bool, ok bool, err error)
	GetInt(key string) (value int, ok bool, err error)
	SetBool(key string, value bool) error
	SetInt(key string, value int) error
}

func enabledKey(kind models.EventKind) string {
	return string(kind) + "NotificationEnabled"
}

func minutesKey(kind models.EventKind) string {
	return string(kind) + "NotificationMinutes"
}

// Store holds the reminder settings of every event kind. Values are read
// from the backend once at construction; each mutation is written through
// before it becomes visible to Get and to subscribers.
type Store struct {
	backend Backend
	log     *zap.Logger

	// notifyMu orders whole updates, write through callbacks, so
	// subscribers see changes in commit order. It is taken before mu.
	notifyMu sync.Mutex

	mu       sync.Mutex
	settings map[models.EventKind]models.ReminderSetting
	nextSub  int
	subs     []subscriber
}

type subscriber struct {
	id int
	fn func(models.ReminderSetting)
}

func NewStore(backend Backend, log *zap.Logger) *Store {
	s := &Store{
		backend:  backend,
		log:      log,
		settings: make(map[models.EventKind]models.ReminderSetting),
	}
	for _, kind := range models.Kinds() {
		s.settings[kind] = s.load(kind)
	}
	return s
}

func (s *Store) load(kind models.EventKind) models.ReminderSetting {
	setting := models.DefaultReminderSetting(kind)

	if v, ok, err := s.backend.GetBool(enabledKey(kind)); err != nil {
		s.log.Error("failed to read setting, using default", zap.String("key", enabledKey(kind)), zap.Error(err))
	} else if ok {
		setting.Enabled = v
	}

	if v, ok, err := s.backend.GetInt(minutesKey(kind)); err != nil {
		s.log.Error("failed to read setting, using default", zap.String("key", minutesKey(kind)), zap.Error(err))
	} else if ok && v >= 0 {
		setting.LeadMinutes = v
	}

	return setting
}

func (s *Store) Get(kind models.EventKind) models.ReminderSetting {
	s.mu.Lock()
	defer s.mu.Unlock()
	if setting, ok := s.settings[kind]; ok {
		return setting
	}
	return models.DefaultReminderSetting(kind)
}

func (s *Store) SetEnabled(kind models.EventKind, enabled bool) error {
	return s.update(kind, func(setting *models.ReminderSetting) error {
		if err := s.backend.SetBool(enabledKey(kind), enabled); err != nil {
			return fmt.Errorf("persist %s: %w", enabledKey(kind), err)
		}
		setting.Enabled = enabled
		return nil
	})
}

// ToggleEnabled flips the kind's reminder flag in one update and returns
// the committed setting.
func (s *Store) ToggleEnabled(kind models.EventKind) (models.ReminderSetting, error) {
	var committed models.ReminderSetting
	err := s.update(kind, func(setting *models.ReminderSetting) error {
		enabled := !setting.Enabled
		if err := s.backend.SetBool(enabledKey(kind), enabled); err != nil {
			return fmt.Errorf("persist %s: %w", enabledKey(kind), err)
		}
		setting.Enabled = enabled
		committed = *setting
		return nil
	})
	if err != nil {
		return s.Get(kind), err
	}
	return committed, nil
}

func (s *Store) SetLeadMinutes(kind models.EventKind, minutes int) error {
	if minutes < 0 {
		return ErrInvalidLeadMinutes
	}
	return s.update(kind, func(setting *models.ReminderSetting) error {
		if err := s.backend.SetInt(minutesKey(kind), minutes); err != nil {
			return fmt.Errorf("persist %s: %w", minutesKey(kind), err)
		}
		setting.LeadMinutes = minutes
		return nil
	})
}

// update applies mutate to a copy of the kind's setting under the store
// lock, commits it only if mutate succeeds, and then notifies subscribers
// outside mu when the value changed. Updates run one at a time through
// notification, so callbacks must not mutate the store.
func (s *Store) update(kind models.EventKind, mutate func(*models.ReminderSetting) error) error {
	if kind != models.Sunrise && kind != models.Sunset {
		return fmt.Errorf("%w: %q", models.ErrUnknownEventKind, kind)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	before, ok := s.settings[kind]
	if !ok {
		before = models.DefaultReminderSetting(kind)
	}
	after := before
	if err := mutate(&after); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings[kind] = after
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if after == before {
		return nil
	}
	s.log.Info("reminder setting changed",
		zap.String("kind", string(kind)),
		zap.Bool("enabled", after.Enabled),
		zap.Int("lead_minutes", after.LeadMinutes),
	)
	for _, sub := range subs {
		sub.fn(after)
	}
	return nil
}

// Subscribe registers fn to be called with the new setting after every
// committed change, for any kind. Subscribers are called in registration
// order.
func (s *Store) Subscribe(fn func(models.ReminderSetting)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

package prefs_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"sunwatch/internal/database"
	"sunwatch/internal/models"
	"sunwatch/internal/prefs"
)

// backends returns a factory per backend; each factory call reopens the
// same underlying storage so restarts can be simulated.
func backends(t *testing.T) map[string]func() prefs.Backend {
	dir := t.TempDir()

	db, err := database.Initialize(filepath.Join(dir, "sunwatch.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mem := prefs.NewMemory()

	var bolt *prefs.Bolt
	boltPath := filepath.Join(dir, "prefs.bolt")
	t.Cleanup(func() {
		if bolt != nil {
			bolt.Close()
		}
	})

	return map[string]func() prefs.Backend{
		"sqlite": func() prefs.Backend { return prefs.NewSQLite(db) },
		"memory": func() prefs.Backend { return mem },
		"bolt": func() prefs.Backend {
			if bolt != nil {
				bolt.Close()
			}
			b, err := prefs.OpenBolt(boltPath)
			if err != nil {
				t.Fatal(err)
			}
			bolt = b
			return b
		},
	}
}

func TestDefaultsOnFirstRun(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := prefs.NewStore(open(), zaptest.NewLogger(t))
			for _, kind := range models.Kinds() {
				got := store.Get(kind)
				if got.Enabled || got.LeadMinutes != 15 || got.Kind != kind {
					t.Errorf("%s: unexpected default %+v", kind, got)
				}
			}
		})
	}
}

func TestSettingsSurviveRestart(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := prefs.NewStore(open(), zaptest.NewLogger(t))
			if err := store.SetEnabled(models.Sunset, true); err != nil {
				t.Fatal(err)
			}
			if err := store.SetLeadMinutes(models.Sunrise, 42); err != nil {
				t.Fatal(err)
			}

			restarted := prefs.NewStore(open(), zaptest.NewLogger(t))
			if got := restarted.Get(models.Sunset); !got.Enabled || got.LeadMinutes != 15 {
				t.Errorf("sunset after restart: %+v", got)
			}
			if got := restarted.Get(models.Sunrise); got.Enabled || got.LeadMinutes != 42 {
				t.Errorf("sunrise after restart: %+v", got)
			}
		})
	}
}

func TestSubscribersSeeDurableValues(t *testing.T) {
	backend := prefs.NewMemory()
	store := prefs.NewStore(backend, zaptest.NewLogger(t))

	var seen []models.ReminderSetting
	cancel := store.Subscribe(func(s models.ReminderSetting) {
		v, ok, _ := backend.GetBool("sunsetNotificationEnabled")
		if s.Kind == models.Sunset && (!ok || v != s.Enabled) {
			t.Errorf("Subscriber saw %+v before it was persisted", s)
		}
		seen = append(seen, s)
	})

	if err := store.SetEnabled(models.Sunset, true); err != nil {
		t.Fatal(err)
	}
	// Unchanged value: persisted again but no notification.
	if err := store.SetEnabled(models.Sunset, true); err != nil {
		t.Fatal(err)
	}
	if err := store.SetLeadMinutes(models.Sunset, 30); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 {
		t.Fatalf("Expected 2 notifications, got %d: %+v", len(seen), seen)
	}
	if seen[1] != (models.ReminderSetting{Kind: models.Sunset, Enabled: true, LeadMinutes: 30}) {
		t.Fatalf("Unexpected last notification %+v", seen[1])
	}

	cancel()
	if err := store.SetEnabled(models.Sunset, false); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Fatalf("Expected no notification after cancel, got %d", len(seen))
	}
}

func TestFailedWriteIsNotCommitted(t *testing.T) {
	backend := prefs.NewMemory()
	store := prefs.NewStore(backend, zaptest.NewLogger(t))

	notified := false
	store.Subscribe(func(models.ReminderSetting) { notified = true })

	backend.Fail = errors.New("disk full")
	if err := store.SetEnabled(models.Sunrise, true); err == nil {
		t.Fatal("Expected write error")
	}
	if store.Get(models.Sunrise).Enabled {
		t.Fatal("Expected value not committed after failed write")
	}
	if notified {
		t.Fatal("Expected no notification after failed write")
	}
}

func TestRejectsInvalidInput(t *testing.T) {
	store := prefs.NewStore(prefs.NewMemory(), zaptest.NewLogger(t))

	if err := store.SetLeadMinutes(models.Sunrise, -1); !errors.Is(err, prefs.ErrInvalidLeadMinutes) {
		t.Fatalf("Expected ErrInvalidLeadMinutes, got %v", err)
	}
	if err := store.SetEnabled(models.EventKind("noon"), true); !errors.Is(err, models.ErrUnknownEventKind) {
		t.Fatalf("Expected ErrUnknownEventKind, got %v", err)
	}
	if err := store.SetLeadMinutes(models.Sunrise, 0); err != nil {
		t.Fatalf("Expected zero lead to be accepted, got %v", err)
	}
}

func TestOverlappingUpdatesNotifyInCommitOrder(t *testing.T) {
	store := prefs.NewStore(prefs.NewMemory(), zaptest.NewLogger(t))

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		last models.ReminderSetting
		once sync.Once
	)
	store.Subscribe(func(s models.ReminderSetting) {
		if s.Enabled {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		last = s
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := store.SetEnabled(models.Sunset, true); err != nil {
			t.Error(err)
		}
	}()
	<-entered

	go func() {
		defer wg.Done()
		if err := store.SetEnabled(models.Sunset, false); err != nil {
			t.Error(err)
		}
	}()
	// Give the second update time to run ahead if it could.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := store.Get(models.Sunset); got != last {
		t.Fatalf("Subscriber holds %+v, store holds %+v", last, got)
	}
	if last.Enabled {
		t.Fatalf("Expected final notification to carry enabled=false, got %+v", last)
	}
}

func TestToggleEnabledIsAtomic(t *testing.T) {
	store := prefs.NewStore(prefs.NewMemory(), zaptest.NewLogger(t))

	const toggles = 50
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ToggleEnabled(models.Sunrise); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// An even number of flips lands back on the default.
	if store.Get(models.Sunrise).Enabled {
		t.Fatal("Expected every toggle to apply, a toggle was lost")
	}

	got, err := store.ToggleEnabled(models.Sunrise)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled || got.LeadMinutes != 15 {
		t.Fatalf("Unexpected setting after toggle %+v", got)
	}
}

func TestSubscribersRunInRegistrationOrder(t *testing.T) {
	store := prefs.NewStore(prefs.NewMemory(), zaptest.NewLogger(t))

	var order []int
	cancels := make([]func(), 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		cancels = append(cancels, store.Subscribe(func(models.ReminderSetting) {
			order = append(order, i)
		}))
	}
	cancels[2]()

	if err := store.SetLeadMinutes(models.Sunset, 20); err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, order)
		}
	}
}

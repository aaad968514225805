package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sunwatch/internal/location"
	"sunwatch/internal/models"
	"sunwatch/internal/solar"
)

// Passed is the countdown shown once the event instant has been reached.
const Passed = "passed"

type Phase string

const (
	NoFix           Phase = "no_fix"
	HasCoordinate   Phase = "has_coordinate"
	HasEventInstant Phase = "has_event_instant"
)

type Scheduler interface {
	Schedule(kind models.EventKind, instant time.Time, leadMinutes int)
	Cancel(kind models.EventKind)
}

type Settings interface {
	Get(kind models.EventKind) models.ReminderSetting
	SetEnabled(kind models.EventKind, enabled bool) error
	ToggleEnabled(kind models.EventKind) (models.ReminderSetting, error)
	SetLeadMinutes(kind models.EventKind, minutes int) error
	Subscribe(fn func(models.ReminderSetting)) func()
}

// Snapshot is a consistent copy of a controller's state.
type Snapshot struct {
	Kind          models.EventKind             `json:"kind"`
	Name          string                       `json:"name"`
	Emoji         string                       `json:"emoji"`
	Phase         Phase                        `json:"phase"`
	Authorization location.AuthorizationStatus `json:"authorization"`
	Coordinate    *models.Coordinate           `json:"coordinate,omitempty"`
	Date          *time.Time                   `json:"date,omitempty"`
	Instant       *time.Time                   `json:"instant,omitempty"`
	Countdown     string                       `json:"countdown"`
	Reminder      models.ReminderSetting       `json:"reminder"`
}

// derivation is the joined signal reminders are derived from.
type derivation struct {
	instant     *time.Time
	enabled     bool
	leadMinutes int
}

func (d derivation) equal(o derivation) bool {
	if d.enabled != o.enabled || d.leadMinutes != o.leadMinutes {
		return false
	}
	if d.instant == nil || o.instant == nil {
		return d.instant == nil && o.instant == nil
	}
	return d.instant.Equal(*o.instant)
}

type Options struct {
	Kind       models.EventKind
	Calculator solar.Calculator
	Scheduler  Scheduler
	Settings   Settings
	Source     location.Source
	// Location decides which calendar day "today" is. Nil follows the
	// coordinate's local mean time.
	Location *time.Location
	Logger   *zap.Logger
}

// Controller tracks one event kind: today's instant at the latest fix, a
// countdown refreshed every second, and the kind's pending reminder. All
// handlers run one at a time under mu.
type Controller struct {
	kind      models.EventKind
	calc      solar.Calculator
	scheduler Scheduler
	settings  Settings
	source    location.Source
	loc       *time.Location
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	auth      location.AuthorizationStatus
	coord     *models.Coordinate
	event     *models.SolarEvent
	countdown string
	setting   models.ReminderSetting
	derived   bool
	last      derivation

	connectOnce sync.Once
	coords      <-chan models.Coordinate
	auths       <-chan location.AuthorizationStatus
	release     []func()
}

func New(opts Options) *Controller {
	return &Controller{
		kind:      opts.Kind,
		calc:      opts.Calculator,
		scheduler: opts.Scheduler,
		settings:  opts.Settings,
		source:    opts.Source,
		loc:       opts.Location,
		log:       opts.Logger.With(zap.String("kind", string(opts.Kind))),
		now:       time.Now,
		auth:      location.NotDetermined,
		setting:   opts.Settings.Get(opts.Kind),
	}
}

func (c *Controller) Kind() models.EventKind { return c.kind }

// Connect subscribes to the location source and the settings store and runs
// the first reminder derivation, which withdraws any reminder left over from
// a previous run. Streams do not replay, so call it before the source is
// started. Calling it again does nothing.
func (c *Controller) Connect() {
	c.connectOnce.Do(func() {
		var cancelCoords, cancelAuth func()
		c.coords, cancelCoords = c.source.SubscribeCoordinates()
		c.auths, cancelAuth = c.source.SubscribeAuthorization()
		cancelSettings := c.settings.Subscribe(c.HandleSetting)
		c.release = []func(){cancelCoords, cancelAuth, cancelSettings}

		c.mu.Lock()
		c.setting = c.settings.Get(c.kind)
		c.rederive()
		c.mu.Unlock()
	})
}

// Run processes fixes, authorization changes and the 1 Hz tick until ctx is
// done, then releases every subscription.
func (c *Controller) Run(ctx context.Context) error {
	c.Connect()
	defer func() {
		for _, fn := range c.release {
			fn()
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	c.Tick()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("event controller stopped")
			return nil
		case <-ticker.C:
			c.Tick()
		case coord, ok := <-c.coords:
			if !ok {
				c.coords = nil
				continue
			}
			c.HandleFix(coord)
		case status, ok := <-c.auths:
			if !ok {
				c.auths = nil
				continue
			}
			c.HandleAuthorization(status)
		}
	}
}

// HandleFix stores the coordinate and recomputes today's event for it.
func (c *Controller) HandleFix(coord models.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.coord = &coord
	c.recompute()
	c.rederive()
}

// Tick refreshes the countdown. When the calendar day has changed since the
// event was computed, the event is recomputed for the new day first.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coord != nil && c.event != nil && !sameDay(c.event.Date, c.today()) {
		c.recompute()
		c.rederive()
		return
	}
	c.countdown = FormatCountdown(c.instant(), c.now())
}

func (c *Controller) HandleAuthorization(status location.AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.auth == status {
		return
	}
	c.auth = status
	switch status {
	case location.Denied, location.Restricted:
		c.log.Warn("location access unavailable", zap.String("status", string(status)))
	default:
		c.log.Info("location authorization", zap.String("status", string(status)))
	}
}

// HandleSetting takes a committed settings change. Changes for other kinds
// are ignored.
func (c *Controller) HandleSetting(s models.ReminderSetting) {
	if s.Kind != c.kind {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setting = s
	c.rederive()
}

// ToggleEnabled flips the reminder flag in the settings store. The store's
// change notification reschedules the reminder.
func (c *Controller) ToggleEnabled() (models.ReminderSetting, error) {
	return c.settings.ToggleEnabled(c.kind)
}

func (c *Controller) SetLeadMinutes(minutes int) (models.ReminderSetting, error) {
	if err := c.settings.SetLeadMinutes(c.kind, minutes); err != nil {
		return c.settings.Get(c.kind), err
	}
	return c.settings.Get(c.kind), nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Kind:          c.kind,
		Name:          c.kind.DisplayName(),
		Emoji:         c.kind.Emoji(),
		Phase:         c.phase(),
		Authorization: c.auth,
		Countdown:     c.countdown,
		Reminder:      c.setting,
	}
	if c.coord != nil {
		coord := *c.coord
		snap.Coordinate = &coord
	}
	if c.event != nil {
		date := c.event.Date
		snap.Date = &date
		if c.event.Instant != nil {
			instant := *c.event.Instant
			snap.Instant = &instant
		}
	}
	return snap
}

func (c *Controller) phase() Phase {
	switch {
	case c.coord == nil:
		return NoFix
	case c.instant() == nil:
		return HasCoordinate
	default:
		return HasEventInstant
	}
}

func (c *Controller) instant() *time.Time {
	if c.event == nil {
		return nil
	}
	return c.event.Instant
}

func (c *Controller) recompute() {
	event := solar.Event(c.calc, c.kind, c.today(), *c.coord)
	c.event = &event
	c.countdown = FormatCountdown(event.Instant, c.now())

	if event.Instant == nil {
		c.log.Info("no event today at coordinate",
			zap.Float64("latitude", c.coord.Latitude),
			zap.Float64("longitude", c.coord.Longitude),
		)
		return
	}
	c.log.Debug("event computed", zap.Time("instant", *event.Instant))
}

// today is the current time in the zone whose calendar day selects the
// event: the configured location, or the coordinate's local mean time.
func (c *Controller) today() time.Time {
	if c.loc != nil {
		return c.now().In(c.loc)
	}
	return solar.LocalTime(c.now(), *c.coord)
}

// rederive cancels the kind's reminder and, when enabled with an instant
// available, schedules it again. It only acts when the joined
// (instant, enabled, lead) value differs from the last one acted on.
func (c *Controller) rederive() {
	next := derivation{instant: c.instant(), enabled: c.setting.Enabled, leadMinutes: c.setting.LeadMinutes}
	if c.derived && next.equal(c.last) {
		return
	}
	c.derived = true
	c.last = next

	c.scheduler.Cancel(c.kind)
	if next.enabled && next.instant != nil {
		c.scheduler.Schedule(c.kind, *next.instant, next.leadMinutes)
	}
}

// FormatCountdown renders the time left until instant: "" without an
// instant, Passed once reached, HH:MM:SS from one hour out and MM:SS below.
func FormatCountdown(instant *time.Time, now time.Time) string {
	if instant == nil {
		return ""
	}
	left := instant.Sub(now)
	if left <= 0 {
		return Passed
	}
	secs := int64(left / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h >= 1 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

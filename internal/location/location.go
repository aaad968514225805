package location

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"sunwatch/internal/models"
)

var (
	ErrNotStarted    = errors.New("location updates not started")
	ErrNotAuthorized = errors.New("location access not authorized")
	ErrUnknownStatus = errors.New("unknown authorization status")
)

type AuthorizationStatus string

const (
	NotDetermined AuthorizationStatus = "not_determined"
	Restricted    AuthorizationStatus = "restricted"
	Denied        AuthorizationStatus = "denied"
	Authorized    AuthorizationStatus = "authorized"
)

func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	switch st := AuthorizationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case NotDetermined, Restricted, Denied, Authorized:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

const feedBuffer = 4

// Source delivers coordinate fixes and authorization transitions. Both
// streams are multicast with no replay, so consumers subscribe before Start.
type Source interface {
	Start()
	SubscribeCoordinates() (<-chan models.Coordinate, func())
	SubscribeAuthorization() (<-chan AuthorizationStatus, func())
}

// Status is a point-in-time view of a source, for display.
type Status struct {
	PermissionRequested   bool                `json:"permission_requested"`
	Authorization         AuthorizationStatus `json:"authorization"`
	DesiredAccuracyMeters int                 `json:"desired_accuracy_meters"`
	Last                  *models.Coordinate  `json:"last,omitempty"`
}

// Reported is fed by a remote client that owns the positioning hardware:
// the client polls Status, answers the permission request with
// ReportAuthorization and then pushes fix batches with ReportFixes.
type Reported struct {
	log             *zap.Logger
	desiredAccuracy int

	coords *Feed[models.Coordinate]
	auth   *Feed[AuthorizationStatus]

	mu      sync.Mutex
	started bool
	status  AuthorizationStatus
	last    *models.Coordinate
}

func NewReported(log *zap.Logger, desiredAccuracyMeters int) *Reported {
	return &Reported{
		log:             log,
		desiredAccuracy: desiredAccuracyMeters,
		coords:          NewFeed[models.Coordinate](feedBuffer),
		auth:            NewFeed[AuthorizationStatus](feedBuffer),
		status:          NotDetermined,
	}
}

func (r *Reported) SubscribeCoordinates() (<-chan models.Coordinate, func()) {
	return r.coords.Subscribe()
}

func (r *Reported) SubscribeAuthorization() (<-chan AuthorizationStatus, func()) {
	return r.auth.Subscribe()
}

// Start raises the one-time permission request. Later calls do nothing.
func (r *Reported) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.log.Info("location permission requested", zap.Int("desired_accuracy_m", r.desiredAccuracy))
}

// ReportAuthorization forwards every reported transition, denials included.
func (r *Reported) ReportAuthorization(status AuthorizationStatus) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	r.status = status
	r.mu.Unlock()

	r.log.Info("location authorization changed", zap.String("status", string(status)))
	r.auth.Publish(status)
	return nil
}

// ReportFixes forwards only the last fix of the batch.
func (r *Reported) ReportFixes(fixes []models.Coordinate) error {
	if len(fixes) == 0 {
		return nil
	}

	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.status != Authorized {
		r.mu.Unlock()
		return ErrNotAuthorized
	}
	last := fixes[len(fixes)-1]
	r.last = &last
	r.mu.Unlock()

	n := r.coords.Publish(last)
	r.log.Debug("location fix forwarded",
		zap.Float64("latitude", last.Latitude),
		zap.Float64("longitude", last.Longitude),
		zap.Int("batch", len(fixes)),
		zap.Int("subscribers", n),
	)
	return nil
}

func (r *Reported) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		PermissionRequested:   r.started,
		Authorization:         r.status,
		DesiredAccuracyMeters: r.desiredAccuracy,
	}
	if r.last != nil {
		c := *r.last
		st.Last = &c
	}
	return st
}

// Fixed stands in for positioning hardware with a configured coordinate.
type Fixed struct {
	log   *zap.Logger
	coord models.Coordinate

	coords *Feed[models.Coordinate]
	auth   *Feed[AuthorizationStatus]

	once    sync.Once
	mu      sync.Mutex
	started bool
}

func NewFixed(log *zap.Logger, coord models.Coordinate) *Fixed {
	return &Fixed{
		log:    log,
		coord:  coord,
		coords: NewFeed[models.Coordinate](feedBuffer),
		auth:   NewFeed[AuthorizationStatus](feedBuffer),
	}
}

func (f *Fixed) SubscribeCoordinates() (<-chan models.Coordinate, func()) {
	return f.coords.Subscribe()
}

func (f *Fixed) SubscribeAuthorization() (<-chan AuthorizationStatus, func()) {
	return f.auth.Subscribe()
}

// Start grants authorization and emits the configured coordinate once.
func (f *Fixed) Start() {
	f.once.Do(func() {
		f.mu.Lock()
		f.started = true
		f.mu.Unlock()

		f.log.Info("using fixed location",
			zap.Float64("latitude", f.coord.Latitude),
			zap.Float64("longitude", f.coord.Longitude),
		)
		f.auth.Publish(Authorized)
		f.coords.Publish(f.coord)
	})
}

func (f *Fixed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Status{PermissionRequested: f.started, Authorization: NotDetermined}
	if f.started {
		c := f.coord
		st.Authorization = Authorized
		st.Last = &c
	}
	return st
}

package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"sunwatch/internal/auth"
	"sunwatch/internal/controller"
	"sunwatch/internal/location"
	"sunwatch/internal/models"
	"sunwatch/internal/notify"
	"sunwatch/internal/solar"
)

type LocationStatus interface {
	Status() location.Status
}

// LocationReporter is implemented by sources fed over HTTP.
type LocationReporter interface {
	ReportFixes(fixes []models.Coordinate) error
	ReportAuthorization(status location.AuthorizationStatus) error
}

type PendingLister interface {
	Pending() ([]models.PendingReminder, error)
}

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Controllers map[models.EventKind]*controller.Controller
	Calculator  solar.Calculator
	Timezone    *time.Location
	Location    LocationStatus
	// Reporter is nil when the location is not reported by a client.
	Reporter  LocationReporter
	Reminders PendingLister
	// Push is nil when web push is not configured.
	Push   *notify.WebPush
	Auth   *auth.Manager
	Bundle string
	Log    *zap.Logger
}

// today is the current time in the zone whose calendar day starts the
// listings: Timezone when set, otherwise the coordinate's local mean time.
func (d *Deps) today(coord models.Coordinate) time.Time {
	if d.Timezone != nil {
		return time.Now().In(d.Timezone)
	}
	return solar.LocalTime(time.Now(), coord)
}

func (d *Deps) timezoneName() string {
	if d.Timezone == nil {
		return "coordinate"
	}
	return d.Timezone.String()
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func SetupRoutes(app *fiber.App, d *Deps) {
	api := app.Group("/api")

	// Configuration endpoint (public)
	api.Get("/config", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"authEnabled":           d.Auth != nil,
			"desiredAccuracyMeters": d.Location.Status().DesiredAccuracyMeters,
			"locationReported":      d.Reporter != nil,
			"webPush":               d.Push != nil,
			"bundle":                d.Bundle,
			"timezone":              d.timezoneName(),
		})
	})

	api.Post("/auth/login", LoginHandler(d))

	// Public reads
	api.Get("/events", ListEventsHandler(d))
	api.Get("/events/:kind", GetEventHandler(d))
	api.Get("/events/:kind/upcoming", UpcomingEventsHandler(d))
	api.Get("/calendar.ics", CalendarHandler(d))
	api.Get("/location", LocationStatusHandler(d))
	api.Get("/reminders", ListRemindersHandler(d))
	api.Get("/push/vapid-public-key", VapidPublicKeyHandler(d))

	// Mutations
	protected := api.Group("/", AuthMiddleware(d.Auth))
	protected.Put("/events/:kind/reminder/toggle", ToggleReminderHandler(d))
	protected.Put("/events/:kind/reminder", UpdateLeadMinutesHandler(d))
	protected.Post("/location", ReportFixesHandler(d))
	protected.Post("/location/authorization", ReportAuthorizationHandler(d))
	protected.Post("/push/subscribe", SubscribePushHandler(d))
	protected.Delete("/push/unsubscribe", UnsubscribePushHandler(d))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

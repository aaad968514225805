package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"sunwatch/internal/calendar"
	"sunwatch/internal/controller"
	"sunwatch/internal/models"
	"sunwatch/internal/prefs"
	"sunwatch/internal/solar"
)

const defaultUpcomingDays = 7

func (d *Deps) controller(c *fiber.Ctx) (*controller.Controller, error) {
	kind, err := models.ParseEventKind(c.Params("kind"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	ctrl, ok := d.Controllers[kind]
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "Unknown event kind")
	}
	return ctrl, nil
}

func (d *Deps) snapshots() []controller.Snapshot {
	out := make([]controller.Snapshot, 0, len(d.Controllers))
	for _, kind := range models.Kinds() {
		if ctrl, ok := d.Controllers[kind]; ok {
			out = append(out, ctrl.Snapshot())
		}
	}
	return out
}

// coordinate is the latest fix any controller has seen.
func (d *Deps) coordinate() (models.Coordinate, error) {
	for _, snap := range d.snapshots() {
		if snap.Coordinate != nil {
			return *snap.Coordinate, nil
		}
	}
	return models.Coordinate{}, fiber.NewError(fiber.StatusConflict, "No location fix yet")
}

func parseDays(c *fiber.Ctx, def int) (int, error) {
	days := c.QueryInt("days", def)
	if days < 1 || days > calendar.MaxDays {
		return 0, fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 60")
	}
	return days, nil
}

func ListEventsHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(d.snapshots())
	}
}

func GetEventHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := d.controller(c)
		if err != nil {
			return err
		}
		return c.JSON(ctrl.Snapshot())
	}
}

func UpcomingEventsHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := d.controller(c)
		if err != nil {
			return err
		}
		days, err := parseDays(c, defaultUpcomingDays)
		if err != nil {
			return err
		}
		coord, err := d.coordinate()
		if err != nil {
			return err
		}

		events, err := solar.Upcoming(d.Calculator, ctrl.Kind(), d.today(coord), days, coord)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"kind":       ctrl.Kind(),
			"coordinate": coord,
			"events":     events,
		})
	}
}

func ToggleReminderHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := d.controller(c)
		if err != nil {
			return err
		}
		setting, err := ctrl.ToggleEnabled()
		if err != nil {
			return err
		}
		return c.JSON(setting)
	}
}

func UpdateLeadMinutesHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := d.controller(c)
		if err != nil {
			return err
		}

		var req models.UpdateLeadMinutesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.LeadMinutes == nil {
			return fiber.NewError(fiber.StatusBadRequest, "lead_minutes is required")
		}

		setting, err := ctrl.SetLeadMinutes(*req.LeadMinutes)
		if errors.Is(err, prefs.ErrInvalidLeadMinutes) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return err
		}
		return c.JSON(setting)
	}
}

func CalendarHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		days, err := parseDays(c, 14)
		if err != nil {
			return err
		}
		coord, err := d.coordinate()
		if err != nil {
			return err
		}

		reminders := make(map[models.EventKind]models.ReminderSetting)
		for _, snap := range d.snapshots() {
			reminders[snap.Kind] = snap.Reminder
		}

		body, err := calendar.Build(d.Calculator, d.Bundle, calendar.Request{
			Coordinate: coord,
			From:       d.today(coord),
			Days:       days,
			Reminders:  reminders,
		})
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `inline; filename="sunwatch.ics"`)
		return c.SendString(body)
	}
}

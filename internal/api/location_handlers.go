package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"sunwatch/internal/location"
	"sunwatch/internal/models"
)

func LocationStatusHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(d.Location.Status())
	}
}

func locationError(err error) error {
	switch {
	case errors.Is(err, location.ErrNotAuthorized):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, location.ErrNotStarted):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, location.ErrUnknownStatus):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

func ReportFixesHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.Reporter == nil {
			return fiber.NewError(fiber.StatusConflict, "Location is not reported by clients")
		}

		var req models.ReportFixesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if len(req.Fixes) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "At least one fix is required")
		}

		if err := d.Reporter.ReportFixes(req.Fixes); err != nil {
			return locationError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(d.Location.Status())
	}
}

func ReportAuthorizationHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.Reporter == nil {
			return fiber.NewError(fiber.StatusConflict, "Location is not reported by clients")
		}

		var req models.ReportAuthorizationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		status, err := location.ParseAuthorizationStatus(req.Status)
		if err != nil {
			return locationError(err)
		}

		if err := d.Reporter.ReportAuthorization(status); err != nil {
			return locationError(err)
		}
		return c.JSON(d.Location.Status())
	}
}

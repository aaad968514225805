package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"sunwatch/internal/models"
)

func VapidPublicKeyHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.Push == nil {
			return fiber.NewError(fiber.StatusNotFound, "Web push is not configured")
		}
		return c.JSON(fiber.Map{"publicKey": d.Push.PublicKey()})
	}
}

func SubscribePushHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.Push == nil {
			return fiber.NewError(fiber.StatusNotFound, "Web push is not configured")
		}

		var sub models.PushSubscription
		if err := c.BodyParser(&sub); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing subscription fields")
		}

		if err := d.Push.Subscribe(sub); err != nil {
			return err
		}
		d.Log.Info("push subscription stored")
		return c.JSON(fiber.Map{"success": true})
	}
}

func UnsubscribePushHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.Push == nil {
			return fiber.NewError(fiber.StatusNotFound, "Web push is not configured")
		}

		var body struct {
			Endpoint string `json:"endpoint"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Endpoint == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing endpoint")
		}

		if err := d.Push.Unsubscribe(body.Endpoint); err != nil {
			d.Log.Error("failed to remove push subscription", zap.Error(err))
			return err
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

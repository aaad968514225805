package api

import (
	"github.com/gofiber/fiber/v2"
)

func ListRemindersHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reminders, err := d.Reminders.Pending()
		if err != nil {
			return err
		}
		return c.JSON(reminders)
	}
}

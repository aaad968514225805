package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"sunwatch/internal/auth"
	"sunwatch/internal/models"
)

func LoginHandler(d *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d.Auth == nil {
			return fiber.NewError(fiber.StatusNotFound, "Authentication is disabled")
		}

		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if req.Username == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Username and password are required")
		}

		token, expiresAt, err := d.Auth.Login(req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			d.Log.Warn("failed login", zap.String("username", req.Username), zap.String("ip", c.IP()))
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid username or password")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate token")
		}

		return c.JSON(models.AuthResponse{
			Token:     token,
			ExpiresAt: expiresAt,
		})
	}
}

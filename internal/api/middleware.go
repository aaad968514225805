package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"sunwatch/internal/auth"
)

// AuthMiddleware requires a valid bearer token. With a nil manager,
// authentication is disabled and every request passes.
func AuthMiddleware(m *auth.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing authorization header")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization header format")
		}

		claims, err := m.ValidateToken(parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}

		c.Locals("username", claims.Username)
		return c.Next()
	}
}

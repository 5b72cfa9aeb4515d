package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// RequireAuth ensures a logged-in session for API routes, JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	v := c.Locals(usercontext.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

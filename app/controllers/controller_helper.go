package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/internal/pkg/env"
	"github.com/snipfox/snipfox/internal/pkg/session"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// loginSession writes the account identity into the caller's session.
func loginSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}

	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyUserClass, user.Class)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)

	return sess.Save()
}

// logoutSession destroys the caller's session.
func logoutSession(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}
	return sess.Destroy()
}

// publicURL builds the public short URL for a code.
func publicURL(code string) string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	return fmt.Sprintf("%s/%s", base, code)
}

// parsePeriod parses a YYYY-MM period parameter into its period key. An empty
// value yields the zero time so callers can fall back to the current period.
func parsePeriod(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("period must be formatted YYYY-MM")
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

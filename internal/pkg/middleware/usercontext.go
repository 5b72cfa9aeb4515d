package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/snipfox/snipfox/internal/pkg/session"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the caller identity for every request.
// Authenticated requests carry the account in the session; everything else is
// anonymous and keyed by client IP.
func UserContextMiddleware(c *fiber.Ctx) error {
	anonymous := func() error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
			ClientIP:   c.IP(),
		})
		c.Locals(usercontext.KeyFromProtected, false)
		c.Locals(usercontext.KeyIsAdmin, false)
		return c.Next()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return anonymous()
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		return anonymous()
	}

	uid, ok := userID.(uint)
	if !ok || uid == 0 {
		return anonymous()
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	class := session.GetSessionValue(c, usercontext.KeyUserClass)
	isAdmin := sess.Get(usercontext.KeyIsAdmin)

	userCtx := usercontext.UserContext{
		UserID:     uid,
		Username:   username,
		Class:      class,
		IsLoggedIn: true,
		IsAdmin:    isAdmin != nil && isAdmin == true,
		ClientIP:   c.IP(),
	}
	c.Locals("USER_CONTEXT", userCtx)

	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUserID, uid)
	c.Locals(usercontext.KeyUsername, username)
	c.Locals(usercontext.KeyIsAdmin, userCtx.IsAdmin)

	return c.Next()
}

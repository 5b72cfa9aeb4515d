package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	AuthKey          = "authenticated"
	KeyUserID        = "user_id"
	KeyUsername      = "username"
	KeyUserClass     = "user_class"
	KeyIsAdmin       = "isAdmin"
	KeyFromProtected = "from_protected"
)

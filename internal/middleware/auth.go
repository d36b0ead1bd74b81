package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/auth"
	"github.com/bundlehub/bundlehub/internal/user"
)

// UserKey is the fiber locals key holding the authenticated user.
const UserKey = "current_user"

// RequireAuth validates the bearer token and attaches the acting user to the
// request. Session-version mismatches surface as revoked sessions so clients
// know to re-login rather than retry.
func RequireAuth(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])

		u, err := authSvc.Validate(c.UserContext(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			case errors.Is(err, auth.ErrSessionRevoked):
				return fiber.NewError(http.StatusUnauthorized, "session revoked")
			default:
				return fiber.NewError(http.StatusUnauthorized, "invalid token")
			}
		}

		c.Locals(UserKey, u)
		return c.Next()
	}
}

// RequireAdmin gates admin endpoints. Must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, ok := c.Locals(UserKey).(user.User)
		if !ok || !u.IsAdmin() {
			return fiber.NewError(http.StatusForbidden, "admin access required")
		}
		return c.Next()
	}
}

// CurrentUser extracts the authenticated user attached by RequireAuth.
func CurrentUser(c *fiber.Ctx) (user.User, bool) {
	u, ok := c.Locals(UserKey).(user.User)
	return u, ok
}

package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the fiber local holding the authenticated user.
// Locals survive the websocket upgrade.
const UserIDKey = "user_id"

// Middleware rejects requests without a valid token. The token is read from
// the Authorization header, or from the token query parameter since browsers
// cannot set headers on a websocket handshake.
func (a *Authenticator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization token is missing")
		}

		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		c.Locals(UserIDKey, claims.UserID)
		return c.Next()
	}
}

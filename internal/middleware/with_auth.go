package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// Roles understood by WithAuth and RequireRole.
const (
	AuthRoleAny   = "any"
	AuthRoleAdmin = "admin"
	AuthRoleUser  = "user"
)

// AuthOptions configures the WithAuth helper. Any role other than AuthRoleAny implies
// RequireUser.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a single handler with authentication and role guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := normalizeRole(opts.Role)
	if role == "" {
		role = AuthRoleAny
	}
	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		if c.Locals(LocalUserID) == nil {
			if requireUser {
				return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
			}
			return handler(c)
		}
		if !roleSatisfies(currentRole(c), role) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return handler(c)
	}
}

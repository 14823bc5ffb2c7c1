package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// RequireRole lets the request through when the token role satisfies any of roles.
// Anonymous requests get 401, authenticated ones with the wrong role 403.
func RequireRole(roles ...string) fiber.Handler {
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			required = append(required, normalized)
		}
	}

	return func(c *fiber.Ctx) error {
		if c.Locals(LocalUserID) == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		current := currentRole(c)
		for _, role := range required {
			if roleSatisfies(current, role) {
				return c.Next()
			}
		}
		return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
	}
}

// roleSatisfies reports whether current grants required. Admins hold every user permission.
func roleSatisfies(current, required string) bool {
	switch required {
	case AuthRoleAny:
		return true
	case AuthRoleUser:
		return current == AuthRoleUser || current == AuthRoleAdmin
	default:
		return current != "" && current == required
	}
}

func currentRole(c *fiber.Ctx) string {
	role, _ := c.Locals(LocalUserRole).(string)
	return normalizeRole(role)
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

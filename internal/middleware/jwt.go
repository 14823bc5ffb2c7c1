package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// Locals keys written by JWTProtected.
const (
	LocalUserID    = "user_id"
	LocalUserRole  = "user_role"
	LocalUserEmail = "user_email"
)

// JWTProtected validates HS256 bearer tokens and stores the subject, role and email in Locals.
// Tokens without a numeric subject are rejected. An access_token query parameter is accepted
// when no Authorization header is present.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" {
			// browsers cannot set headers on websocket upgrades
			if query := c.Query("access_token"); query != "" {
				authorization = "Bearer " + query
			}
		}
		if authorization == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authorization header missing", nil)
		}

		const bearer = "bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid authorization header", nil)
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token", nil)
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token", nil)
		}

		userID := extractUserIDFromClaims(claims)
		if userID == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "invalid token subject", nil)
		}
		c.Locals(LocalUserID, *userID)
		if role := extractUserRoleFromClaims(claims); role != "" {
			c.Locals(LocalUserRole, role)
		}
		if email, ok := claims["email"].(string); ok && email != "" {
			c.Locals(LocalUserEmail, email)
		}

		return c.Next()
	}
}

func extractUserIDFromClaims(claims jwt.MapClaims) *uint {
	for _, key := range []string{"sub", "user_id", "id"} {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil && normalized != 0 {
				return &normalized
			}
		}
	}
	return nil
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	switch v := claims["role"].(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				return strings.ToLower(strings.TrimSpace(str))
			}
		}
	}
	return ""
}

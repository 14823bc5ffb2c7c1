package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// HeaderCorrelationID carries the request correlation identifier.
const HeaderCorrelationID = "X-Correlation-ID"

// LocalCorrelationID is the Locals key holding the request correlation identifier.
const LocalCorrelationID = utils.LocalCorrelationID

const maxCorrelationIDLength = 128

type correlationKey struct{}

// CorrelationID binds a correlation identifier to every request and echoes it back. Client
// supplied ids from X-Correlation-ID or X-Request-ID are kept when they are reasonably short.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := incomingCorrelationID(c)
		c.Locals(LocalCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))
		return c.Next()
	}
}

func incomingCorrelationID(c *fiber.Ctx) string {
	for _, header := range []string{HeaderCorrelationID, fiber.HeaderXRequestID} {
		if value := strings.TrimSpace(c.Get(header)); value != "" && len(value) <= maxCorrelationIDLength {
			return value
		}
	}
	return uuid.NewString()
}

// CorrelationIDFromContext returns the identifier stored by ContextWithCorrelation.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(LocalCorrelationID).(string); ok && id != "" {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation returns ctx carrying the identifier. Blank identifiers leave ctx as is.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

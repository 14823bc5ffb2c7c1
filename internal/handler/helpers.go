package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/middleware"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

func userIDFromContext(c *fiber.Ctx) uint {
	if id, ok := c.Locals(middleware.LocalUserID).(uint); ok {
		return id
	}
	return 0
}

// requestContext returns the request context carrying the correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

// validationFailure answers 400 with one entry per failed field, or false when err is not a
// validation error.
func validationFailure(c *fiber.Ctx, err error) (bool, error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return false, nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return true, utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
}

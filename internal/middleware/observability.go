package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/observability"
)

// Observability records request counters and latency for /api routes and writes one access
// log line per request. Health probes log at trace level so they do not flood the output.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if !strings.HasPrefix(c.Path(), "/api/") {
			return err
		}

		elapsed := time.Since(start)
		status := c.Response().StatusCode()
		route := routeTemplate(c)
		recordRequest(c.Method(), route, status, elapsed)

		event := accessLogEvent(logger, route, status)
		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Str("latency_bucket", latencyBucket(elapsed))
		if userID, ok := c.Locals(LocalUserID).(uint); ok {
			event = event.Uint("user_id", userID)
		}
		event.Msg("request handled")

		return err
	}
}

func recordRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	observability.HTTPRequests().WithLabelValues(method, route, code).Inc()
	observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
	if status >= fiber.StatusBadRequest {
		observability.HTTPErrors().WithLabelValues(method, route, code).Inc()
	}
}

func accessLogEvent(logger zerolog.Logger, route string, status int) *zerolog.Event {
	switch {
	case status >= fiber.StatusInternalServerError:
		return logger.Error()
	case status >= fiber.StatusBadRequest:
		return logger.Warn()
	case strings.HasSuffix(route, "/health"):
		return logger.Trace()
	default:
		return logger.Debug()
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

// latencyBucket groups AI-backed requests, which routinely take seconds, apart from fast ones.
func latencyBucket(elapsed time.Duration) string {
	for _, limit := range []time.Duration{50 * time.Millisecond, 250 * time.Millisecond, time.Second, 5 * time.Second} {
		if elapsed <= limit {
			return "<=" + limit.String()
		}
	}
	return ">5s"
}

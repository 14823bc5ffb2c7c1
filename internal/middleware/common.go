package middleware

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline. Production drops stack traces from
// panic logs.
type Config struct {
	Logger       *zerolog.Logger
	AllowOrigins []string
	Production   bool
}

// Register attaches the common middlewares used across the API. Helmet is relaxed on the
// cross-origin policies so the browser frontend can call the API from its own origin.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		requestLogger = *cfg.Logger
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: panicLogger(requestLogger, !cfg.Production),
	}))
	app.Use(CorrelationID())
	app.Use(Observability(requestLogger))
	app.Use(helmet.New(helmet.Config{
		CrossOriginEmbedderPolicy: "unsafe-none",
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins(cfg),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + HeaderCorrelationID,
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: HeaderCorrelationID,
	}))
}

func allowedOrigins(cfg Config) string {
	origins := make([]string, 0, len(cfg.AllowOrigins))
	for _, origin := range cfg.AllowOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}

func panicLogger(logger zerolog.Logger, withStack bool) func(*fiber.Ctx, interface{}) {
	return func(c *fiber.Ctx, recovered interface{}) {
		event := logger.Error().
			Str("panic", fmt.Sprint(recovered)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("correlation_id", GetCorrelationID(c))
		if withStack {
			event = event.Str("stack", string(debug.Stack()))
		}
		event.Msg("recovered from panic")
	}
}

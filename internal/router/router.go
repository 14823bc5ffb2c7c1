package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ashuthecoder/cybervantage-api/internal/config"
	"github.com/ashuthecoder/cybervantage-api/internal/handler"
	"github.com/ashuthecoder/cybervantage-api/internal/middleware"
	"github.com/ashuthecoder/cybervantage-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	SimulationHandler *handler.SimulationHandler
	AnalysisHandler   *handler.AnalysisHandler
	ThreatHandler     *handler.ThreatHandler
	AdminHandler      *handler.AdminHandler
	HealthProbes      []handler.HealthProbe
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	userGuard := middleware.WithAuth(func(c *fiber.Ctx) error { return c.Next() }, middleware.AuthOptions{Role: middleware.AuthRoleUser})

	if deps.AuthHandler != nil {
		limit := middleware.RateLimit("auth", cfg.AuthRateLimit, time.Minute)
		deps.AuthHandler.Register(api.Group("/auth"), limit, jwtMiddleware)
	}

	if deps.SimulationHandler != nil {
		deps.SimulationHandler.Register(api.Group("/simulation", jwtMiddleware, userGuard))
	}

	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.Register(api.Group("/analysis", jwtMiddleware, userGuard))
	}

	if deps.ThreatHandler != nil {
		deps.ThreatHandler.Register(api.Group("/threats", jwtMiddleware, userGuard))
	}

	if deps.AdminHandler != nil {
		deps.AdminHandler.Register(api.Group("/admin", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleAdmin)))
	}
}

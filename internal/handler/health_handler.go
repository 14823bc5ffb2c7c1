package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ashuthecoder/cybervantage-api/internal/config"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// HealthProbe checks one dependency.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthCheck reports service health. Any failing probe turns the answer into a 503.
func HealthCheck(cfg config.Config, probes ...HealthProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if len(probes) > 0 {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()
			payload.Checks = make(map[string]string, len(probes))
			for _, probe := range probes {
				if err := probe.Check(ctx); err != nil {
					payload.Checks[probe.Name] = err.Error()
					payload.Status = "degraded"
					continue
				}
				payload.Checks[probe.Name] = "ok"
			}
		}

		if payload.Status != "ok" {
			return utils.Respond(c, fiber.StatusServiceUnavailable, utils.APIResponse{Data: payload, Message: "service degraded"})
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}

package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

const defaultMonitorInterval = 5 * time.Second

// AdminHandler exposes the AI monitor, state debugging and schema maintenance.
type AdminHandler struct {
	monitor    service.APIMonitorService
	simulation service.SimulationService
	schema     service.SchemaService
	interval   time.Duration
	logger     zerolog.Logger
}

// NewAdminHandler constructs the handler. interval paces the monitor websocket stream.
func NewAdminHandler(monitor service.APIMonitorService, simulation service.SimulationService, schema service.SchemaService, interval time.Duration, logger zerolog.Logger) *AdminHandler {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &AdminHandler{
		monitor:    monitor,
		simulation: simulation,
		schema:     schema,
		interval:   interval,
		logger:     logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register attaches admin endpoints. The group must already enforce the admin role.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Get("/api-monitor", h.snapshot)
	router.Use("/api-monitor/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/api-monitor/ws", websocket.New(h.stream))
	router.Get("/simulation/:userId", h.debugState)
	router.Post("/schema/patch", h.patchSchema)
}

func (h *AdminHandler) snapshot(c *fiber.Ctx) error {
	snapshot, err := h.monitor.Snapshot(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to build api monitor snapshot")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.SendSuccess(c, "api monitor snapshot", snapshot)
}

// stream pushes a snapshot immediately and then on every tick until the client goes away.
func (h *AdminHandler) stream(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.logger.Info().Msg("api monitor stream opened")
	defer h.logger.Info().Msg("api monitor stream closed")

	for {
		snapshot, err := h.monitor.Snapshot(ctx)
		if err != nil {
			h.logger.Warn().Err(err).Msg("api monitor snapshot failed")
		} else if err := conn.WriteJSON(snapshot); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *AdminHandler) debugState(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	resp, err := h.simulation.DebugState(requestContext(c), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("user_id", userID).Msg("failed to load simulation debug state")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.SendSuccess(c, "simulation state", resp)
}

func (h *AdminHandler) patchSchema(c *fiber.Ctx) error {
	resp, err := h.schema.Patch(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("schema patch failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "schema patch failed")
	}
	return utils.OK(c, resp, "schema patched", fiber.Map{"applied": len(resp.Applied)})
}

package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// AnalysisHandler serves the trainee's performance analytics.
type AnalysisHandler struct {
	service service.AnalyticsService
	logger  zerolog.Logger
}

// NewAnalysisHandler constructs the handler.
func NewAnalysisHandler(service service.AnalyticsService, logger zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{service: service, logger: logger.With().Str("component", "analysis_handler").Logger()}
}

// Register attaches analytics endpoints.
func (h *AnalysisHandler) Register(router fiber.Router) {
	router.Get("/performance", h.performance)
	router.Get("/history", h.history)
}

func (h *AnalysisHandler) performance(c *fiber.Ctx) error {
	resp, err := h.service.Performance(requestContext(c), userIDFromContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to compute performance")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.SendSuccess(c, "performance retrieved", resp)
}

func (h *AnalysisHandler) history(c *fiber.Ctx) error {
	resp, err := h.service.History(requestContext(c), userIDFromContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load history")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.OK(c, resp, "history retrieved", fiber.Map{"total_sessions": resp.TotalSessions, "total_attempts": len(resp.Attempts)})
}

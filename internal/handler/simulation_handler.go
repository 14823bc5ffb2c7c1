package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/simulation"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// SimulationHandler exposes the two-phase phishing simulation.
type SimulationHandler struct {
	service   service.SimulationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSimulationHandler constructs the handler.
func NewSimulationHandler(service service.SimulationService, validator *validator.Validate, logger zerolog.Logger) *SimulationHandler {
	return &SimulationHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "simulation_handler").Logger(),
	}
}

// Register attaches simulation endpoints to the router group.
func (h *SimulationHandler) Register(router fiber.Router) {
	router.Get("/current", h.current)
	router.Post("/submit", h.submit)
	router.Get("/feedback", h.feedback)
	router.Post("/continue", h.advance(h.service.Continue, "moved to the next email"))
	router.Post("/skip", h.advance(h.service.Skip, "email skipped"))
	router.Get("/results", h.results)
	router.Post("/restart", h.advance(h.service.Restart, "simulation restarted"))
}

func (h *SimulationHandler) current(c *fiber.Ctx) error {
	view, err := h.service.Current(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "simulation state retrieved", view)
}

func (h *SimulationHandler) submit(c *fiber.Ctx) error {
	var payload dto.SimulationSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	resp, err := h.service.Submit(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "response recorded", resp)
}

func (h *SimulationHandler) feedback(c *fiber.Ctx) error {
	resp, err := h.service.Feedback(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "feedback retrieved", resp)
}

func (h *SimulationHandler) advance(action func(context.Context, uint) (dto.SimulationView, error), message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := action(requestContext(c), userIDFromContext(c))
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, message, view)
	}
}

func (h *SimulationHandler) results(c *fiber.Ctx) error {
	resp, err := h.service.Results(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	if resp.Reset {
		return utils.SendSuccess(c, "simulation state was reset", resp)
	}
	return utils.SendSuccess(c, "simulation results", resp)
}

func (h *SimulationHandler) handleError(c *fiber.Ctx, err error) error {
	if handled, resp := validationFailure(c, err); handled {
		return resp
	}
	switch {
	case errors.Is(err, simulation.ErrInvalidTransition),
		errors.Is(err, simulation.ErrEmailMismatch),
		errors.Is(err, simulation.ErrNotComplete),
		errors.Is(err, simulation.ErrFeedbackPending):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrExplanationRequired):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoFeedback):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "request cancelled")
	default:
		requestLogger(h.logger, c).Error().Err(err).Uint("user_id", userIDFromContext(c)).Msg("simulation request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

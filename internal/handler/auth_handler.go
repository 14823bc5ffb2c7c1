package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// AuthHandler wires account and token endpoints.
type AuthHandler struct {
	auth       service.AuthService
	simulation service.SimulationService
	logger     zerolog.Logger
}

// NewAuthHandler constructs the handler. The simulation service clears state on logout.
func NewAuthHandler(auth service.AuthService, simulation service.SimulationService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:       auth,
		simulation: simulation,
		logger:     logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register attaches the auth endpoints. limit guards the credential endpoints and protect
// guards the ones that need a bearer token.
func (h *AuthHandler) Register(router fiber.Router, limit, protect fiber.Handler) {
	router.Post("/register", limit, h.register)
	router.Post("/login", limit, h.login)
	router.Post("/password-reset-request", limit, h.requestPasswordReset)
	router.Post("/password-reset", limit, h.resetPassword)

	router.Post("/logout", protect, h.logout)
	router.Post("/refresh", protect, h.refresh)
	router.Get("/me", protect, h.me)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	token, err := h.auth.Register(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created", token)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	token, err := h.auth.Login(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "login successful", token)
}

func (h *AuthHandler) logout(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if h.simulation != nil {
		if err := h.simulation.ClearState(requestContext(c), userID); err != nil {
			requestLogger(h.logger, c).Warn().Err(err).Uint("user_id", userID).Msg("failed to clear simulation state on logout")
		}
	}
	return utils.SendSuccess(c, "logged out", nil)
}

func (h *AuthHandler) refresh(c *fiber.Ctx) error {
	token, err := h.auth.Refresh(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "token refreshed", token)
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	user, err := h.auth.Me(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "profile retrieved", user)
}

func (h *AuthHandler) requestPasswordReset(c *fiber.Ctx) error {
	var payload dto.PasswordResetRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	resp, err := h.auth.RequestPasswordReset(requestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "if the account exists a reset link has been issued", resp)
}

func (h *AuthHandler) resetPassword(c *fiber.Ctx) error {
	var payload dto.PasswordResetConfirmRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.auth.ResetPassword(requestContext(c), payload); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "password updated", nil)
}

func (h *AuthHandler) handleError(c *fiber.Ctx, err error) error {
	if handled, resp := validationFailure(c, err); handled {
		return resp
	}
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrResetTokenInvalid):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("auth request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

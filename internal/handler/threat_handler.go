package handler

import (
	"errors"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

// ThreatHandler exposes threat-intelligence lookups.
type ThreatHandler struct {
	service service.ThreatService
	logger  zerolog.Logger
}

// NewThreatHandler constructs the handler.
func NewThreatHandler(service service.ThreatService, logger zerolog.Logger) *ThreatHandler {
	return &ThreatHandler{service: service, logger: logger.With().Str("component", "threat_handler").Logger()}
}

// Register attaches threat endpoints.
func (h *ThreatHandler) Register(router fiber.Router) {
	router.Post("/url", h.scanURL)
	router.Post("/deep-url", h.deepScanURL)
	router.Post("/ip", h.scanIP)
	router.Post("/hash", h.scanHash)
	router.Post("/file", h.scanFile)
	router.Post("/email", h.analyzeEmail)
	router.Get("/history", h.history)
}

func (h *ThreatHandler) scanURL(c *fiber.Ctx) error {
	var payload dto.ThreatURLRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	report, err := h.service.ScanURL(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "url scanned", report)
}

func (h *ThreatHandler) deepScanURL(c *fiber.Ctx) error {
	var payload dto.ThreatURLRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	report, err := h.service.DeepScanURL(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "deep scan complete", report)
}

func (h *ThreatHandler) scanIP(c *fiber.Ctx) error {
	var payload dto.ThreatIPRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	report, err := h.service.ScanIP(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "ip scanned", report)
}

func (h *ThreatHandler) scanHash(c *fiber.Ctx) error {
	var payload dto.ThreatHashRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	report, err := h.service.ScanHash(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "hash scanned", report)
}

func (h *ThreatHandler) scanFile(c *fiber.Ctx) error {
	report, err := h.service.ScanFile(requestContext(c), userIDFromContext(c), formFile(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "file scanned", report)
}

func (h *ThreatHandler) analyzeEmail(c *fiber.Ctx) error {
	report, err := h.service.AnalyzeEmail(requestContext(c), userIDFromContext(c), formFile(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "email analysed", report)
}

func (h *ThreatHandler) history(c *fiber.Ctx) error {
	items, err := h.service.History(requestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.OK(c, items, "scan history", fiber.Map{"count": len(items), "limit": service.ThreatHistoryLimit})
}

func formFile(c *fiber.Ctx) *multipart.FileHeader {
	file, err := c.FormFile("file")
	if err != nil {
		return nil
	}
	return file
}

func (h *ThreatHandler) handleError(c *fiber.Ctx, err error) error {
	if handled, resp := validationFailure(c, err); handled {
		return resp
	}
	switch {
	case errors.Is(err, service.ErrUploadRequired), errors.Is(err, service.ErrUploadEmpty):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrInvalidEmail):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, service.ErrInvalidEmail.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("threat request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

package utils

import "github.com/gofiber/fiber/v2"

// LocalCorrelationID is the fiber Locals key under which the correlation middleware stores the
// request identifier. Envelopes echo it.
const LocalCorrelationID = "correlation_id"

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Message       string      `json:"message"`
	Meta          interface{} `json:"meta,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus answers a success envelope with an explicit status, e.g. 201 on register.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	return Respond(c, status, APIResponse{Success: true, Data: data, Message: defaultMessage(message, "success")})
}

// OK answers 200 with data plus metadata such as history counts or applied schema patches.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return Respond(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Message: defaultMessage(message, "success"), Meta: meta})
}

// SendError answers an error envelope without details.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail answers an error envelope. details carries per-field validation messages.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	if status < fiber.StatusBadRequest {
		status = fiber.StatusInternalServerError
	}
	return Respond(c, status, APIResponse{Message: defaultMessage(message, "error"), Details: details})
}

// Respond writes a prepared envelope and fills in the correlation id.
func Respond(c *fiber.Ctx, status int, body APIResponse) error {
	if body.CorrelationID == "" {
		if id, ok := c.Locals(LocalCorrelationID).(string); ok {
			body.CorrelationID = id
		}
	}
	return c.Status(status).JSON(body)
}

func defaultMessage(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]string      `json:"details"`
	CorrID  string                 `json:"correlation_id"`
}

func respond(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestSendSuccessWithStatus(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created", fiber.Map{"id": 4})
	})
	require.Equal(t, fiber.StatusCreated, status)
	require.True(t, body.Success)
	require.Equal(t, "account created", body.Message)
	require.JSONEq(t, `{"id":4}`, string(body.Data))
}

func TestOKIncludesMetaAndDefaultMessage(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.OK(c, []string{"a", "b"}, "", fiber.Map{"count": 2})
	})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "success", body.Message)
	require.Equal(t, float64(2), body.Meta["count"])
}

func TestFailCarriesDetailsWithoutData(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", map[string]string{"email_id": "required"})
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, body.Success)
	require.Equal(t, "required", body.Details["email_id"])
	require.Empty(t, body.Data)
}

func TestSendErrorDefaultsMessage(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusConflict, "")
	})
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "error", body.Message)
	require.Nil(t, body.Details)
}

func TestEnvelopeEchoesCorrelationID(t *testing.T) {
	_, body := respond(t, func(c *fiber.Ctx) error {
		c.Locals(utils.LocalCorrelationID, "corr-77")
		return utils.SendSuccess(c, "", nil)
	})
	require.Equal(t, "corr-77", body.CorrID)

	_, body = respond(t, func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "", nil)
	})
	require.Empty(t, body.CorrID)
}

func TestFailRejectsNonErrorStatus(t *testing.T) {
	status, body := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusOK, "broken", nil)
	})
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.False(t, body.Success)
}

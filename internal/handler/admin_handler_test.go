package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/handler"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/pkg/ai"
)

type stubMonitor struct {
	snapshot dto.APIMonitorSnapshot
}

func (s *stubMonitor) Record(context.Context, models.APIRequestLog) {}

func (s *stubMonitor) Wrap(provider ai.Provider) ai.Provider { return provider }

func (s *stubMonitor) Snapshot(context.Context) (dto.APIMonitorSnapshot, error) {
	return s.snapshot, nil
}

type stubSchema struct {
	calls int
}

func (s *stubSchema) Patch(context.Context) (dto.SchemaPatchResponse, error) {
	s.calls++
	return dto.SchemaPatchResponse{Applied: []dto.SchemaPatchItem{{Table: "users", Column: "reset_token"}}}, nil
}

func adminApp(monitor *stubMonitor, sim *stubSimulationService, schema *stubSchema) *fiber.App {
	app := fiber.New()
	handler.NewAdminHandler(monitor, sim, schema, time.Second, zerolog.New(io.Discard)).Register(app.Group("/admin", withUser(1)))
	return app
}

func TestAdminHandlerSnapshot(t *testing.T) {
	monitor := &stubMonitor{snapshot: dto.APIMonitorSnapshot{TotalCalls: 12, RequestsPerMin: 8, Providers: "gemini -> azure"}}
	app := adminApp(monitor, &stubSimulationService{}, &stubSchema{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/api-monitor", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.APIMonitorSnapshot `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, int64(12), body.Data.TotalCalls)
	require.Equal(t, 8, body.Data.RequestsPerMin)
}

func TestAdminHandlerStreamRequiresUpgrade(t *testing.T) {
	app := adminApp(&stubMonitor{}, &stubSimulationService{}, &stubSchema{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/api-monitor/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestAdminHandlerDebugState(t *testing.T) {
	sim := &stubSimulationService{}
	app := adminApp(&stubMonitor{}, sim, &stubSchema{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/simulation/17", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(17), sim.lastUserID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin/simulation/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminHandlerSchemaPatch(t *testing.T) {
	schema := &stubSchema{}
	app := adminApp(&stubMonitor{}, &stubSimulationService{}, schema)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/admin/schema/patch", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, schema.calls)

	var body struct {
		Data dto.SchemaPatchResponse `json:"data"`
		Meta map[string]int          `json:"meta"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, 1, body.Meta["applied"])
	require.Equal(t, "users", body.Data.Applied[0].Table)
}

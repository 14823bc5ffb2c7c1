package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	ThreatScans().WithLabelValues("url", "ok").Inc()
	SimulationEvents().WithLabelValues("started").Inc()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	require.True(t, strings.Contains(text, "cybervantage_threat_scans_total"))
	require.True(t, strings.Contains(text, "cybervantage_simulation_events_total"))
}

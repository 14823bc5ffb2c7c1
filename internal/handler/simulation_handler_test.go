package handler_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/handler"
	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/simulation"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

type stubSimulationService struct {
	view       dto.SimulationView
	submitted  *dto.SimulationSubmitRequest
	lastUserID uint
	err        error
	cleared    bool
	results    dto.SimulationResultsResponse
}

func (s *stubSimulationService) Current(_ context.Context, userID uint) (dto.SimulationView, error) {
	s.lastUserID = userID
	return s.view, s.err
}

func (s *stubSimulationService) Submit(_ context.Context, userID uint, req dto.SimulationSubmitRequest) (dto.SimulationSubmitResponse, error) {
	s.lastUserID = userID
	s.submitted = &req
	return dto.SimulationSubmitResponse{}, s.err
}

func (s *stubSimulationService) Feedback(context.Context, uint) (dto.SimulationFeedbackResponse, error) {
	return dto.SimulationFeedbackResponse{}, s.err
}

func (s *stubSimulationService) Continue(context.Context, uint) (dto.SimulationView, error) {
	return s.view, s.err
}

func (s *stubSimulationService) Skip(context.Context, uint) (dto.SimulationView, error) {
	return s.view, s.err
}

func (s *stubSimulationService) Results(context.Context, uint) (dto.SimulationResultsResponse, error) {
	return s.results, s.err
}

func (s *stubSimulationService) Restart(context.Context, uint) (dto.SimulationView, error) {
	return s.view, s.err
}

func (s *stubSimulationService) ClearState(context.Context, uint) error {
	s.cleared = true
	return s.err
}

func (s *stubSimulationService) DebugState(_ context.Context, userID uint) (dto.SimulationDebugResponse, error) {
	s.lastUserID = userID
	return dto.SimulationDebugResponse{}, s.err
}

func (s *stubSimulationService) SeedPredefined(context.Context) error { return nil }

func simulationApp(svc service.SimulationService) *fiber.App {
	app := fiber.New()
	group := app.Group("/simulation", withUser(42))
	handler.NewSimulationHandler(svc, utils.NewValidator(), zerolog.New(io.Discard)).Register(group)
	return app
}

func TestSimulationHandlerCurrent(t *testing.T) {
	svc := &stubSimulationService{view: dto.SimulationView{Stage: string(simulation.StagePhase1), Phase: 1, CurrentPredefinedIndex: 1}}

	resp, err := simulationApp(svc).Test(httptest.NewRequest(http.MethodGet, "/simulation/current", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool               `json:"success"`
		Data    dto.SimulationView `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "phase_1_active", body.Data.Stage)
	require.Equal(t, uint(42), svc.lastUserID)
}

func TestSimulationHandlerSubmitValidates(t *testing.T) {
	svc := &stubSimulationService{}
	req := httptest.NewRequest(http.MethodPost, "/simulation/submit", bytes.NewBufferString(`{"email_id":1}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := simulationApp(svc).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Details map[string]string `json:"details"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "required", body.Details["is_spam"])
	require.Nil(t, svc.submitted)
}

func TestSimulationHandlerSubmitPassesPayload(t *testing.T) {
	svc := &stubSimulationService{}
	req := httptest.NewRequest(http.MethodPost, "/simulation/submit", bytes.NewBufferString(`{"email_id":3,"is_spam":false,"explanation":"looks fine"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := simulationApp(svc).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, svc.submitted)
	require.Equal(t, uint(3), svc.submitted.EmailID)
	require.False(t, *svc.submitted.IsSpam)
	require.Equal(t, "looks fine", svc.submitted.Explanation)
}

func TestSimulationHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		method string
		path   string
		status int
	}{
		{"mismatch", simulation.ErrEmailMismatch, http.MethodPost, "/simulation/continue", fiber.StatusConflict},
		{"pending", simulation.ErrFeedbackPending, http.MethodPost, "/simulation/continue", fiber.StatusConflict},
		{"not complete", simulation.ErrNotComplete, http.MethodGet, "/simulation/results", fiber.StatusConflict},
		{"no feedback", service.ErrNoFeedback, http.MethodGet, "/simulation/feedback", fiber.StatusNotFound},
		{"cancelled", context.Canceled, http.MethodPost, "/simulation/skip", fiber.StatusServiceUnavailable},
		{"unexpected", io.ErrUnexpectedEOF, http.MethodPost, "/simulation/restart", fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubSimulationService{err: tc.err}
			resp, err := simulationApp(svc).Test(httptest.NewRequest(tc.method, tc.path, nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestSimulationHandlerResultsAfterReset(t *testing.T) {
	view := dto.SimulationView{Stage: string(simulation.StagePhase1), Phase: 1, CurrentPredefinedIndex: 1, Reset: true}
	svc := &stubSimulationService{results: dto.SimulationResultsResponse{SimulationID: "fresh", Reset: true, State: &view}}

	resp, err := simulationApp(svc).Test(httptest.NewRequest(http.MethodGet, "/simulation/results", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Message string                        `json:"message"`
		Data    dto.SimulationResultsResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "simulation state was reset", body.Message)
	require.True(t, body.Data.Reset)
	require.NotNil(t, body.Data.State)
	require.Equal(t, "phase_1_active", body.Data.State.Stage)
}

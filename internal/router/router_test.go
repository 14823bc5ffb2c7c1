package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/config"
	"github.com/ashuthecoder/cybervantage-api/internal/database"
	"github.com/ashuthecoder/cybervantage-api/internal/handler"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
	"github.com/ashuthecoder/cybervantage-api/internal/router"
	"github.com/ashuthecoder/cybervantage-api/internal/service"
	"github.com/ashuthecoder/cybervantage-api/internal/utils"
)

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	require.NoError(t, database.Migrate(db, logger))

	cfg := config.Config{AppName: "CyberVantage API", AppEnv: "test", JWTSecret: "router-secret", AuthRateLimit: 50}
	users := repository.NewUserRepository(db)
	auth := service.NewAuthService(users, utils.NewValidator(), cfg.JWTSecret, time.Hour, true, logger)
	governor := service.NewGovernor(time.Minute, logger)
	monitor := service.NewAPIMonitorService(repository.NewAPIRequestLogRepository(db), governor, 8, logger)

	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:  handler.NewAuthHandler(auth, nil, logger),
		AdminHandler: handler.NewAdminHandler(monitor, nil, service.NewSchemaService(db, logger), time.Second, logger),
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]interface{}{}
	if raw, _ := io.ReadAll(resp.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func TestRegisterLoginAndProfile(t *testing.T) {
	app := setupApp(t)

	resp, body := call(t, app, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":             "Ana Trainee",
		"email":            "ana@example.com",
		"password":         "correct-horse",
		"confirm_password": "correct-horse",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, true, body["success"])

	resp, _ = call(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ana@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body = call(t, app, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ana@example.com",
		"password": "correct-horse",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	token := data["access_token"].(string)
	require.NotEmpty(t, token)

	resp, body = call(t, app, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	profile := body["data"].(map[string]interface{})
	require.Equal(t, "ana@example.com", profile["email"])
	require.Equal(t, "user", profile["role"])

	resp, _ = call(t, app, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/admin/api-monitor", token, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := setupApp(t)

	resp, _ := call(t, app, http.MethodGet, "/api/v1/auth/me", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/admin/api-monitor", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app := setupApp(t)

	resp, body := call(t, app, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "CyberVantage API", resp.Header.Get("X-Application"))
	require.Equal(t, true, body["success"])
}

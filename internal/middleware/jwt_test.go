package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func jwtApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"id":    c.Locals(middleware.LocalUserID),
			"role":  c.Locals(middleware.LocalUserRole),
			"email": c.Locals(middleware.LocalUserEmail),
		})
	})
	return app
}

func TestJWTProtectedAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":   "7",
		"role":  "Admin",
		"email": "ana@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := jwtApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, decodeJSON(resp, &body))
	require.Equal(t, float64(7), body["id"])
	require.Equal(t, "admin", body["role"])
	require.Equal(t, "ana@example.com", body["email"])
}

func TestJWTProtectedAcceptsQueryToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": float64(3)})

	resp, err := jwtApp().Test(httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejections(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "7",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "7"})
	noSubject := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "user"})
	wrongAlg := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "7"})

	cases := map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"expired":    "Bearer " + expired,
		"wrong key":  "Bearer " + wrongKey,
		"no subject": "Bearer " + noSubject,
		"wrong alg":  "Bearer " + wrongAlg,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := jwtApp().Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

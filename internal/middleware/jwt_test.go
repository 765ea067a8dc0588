package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const jwtTestSecret = "unit-test-secret"

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtTestSecret))
	require.NoError(t, err)
	return signed
}

func newProtectedApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(jwtTestSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":   c.Locals("user_id"),
			"tenant_id": c.Locals("tenant_id"),
			"role":      c.Locals("user_role"),
		})
	})
	return app
}

func TestJWTProtectedRejectsMissingOrBadToken(t *testing.T) {
	app := newProtectedApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedExposesIdentityLocals(t *testing.T) {
	app := newProtectedApp()

	token := signTestToken(t, jwt.MapClaims{
		"sub":       "42",
		"tenant_id": 3,
		"role":      " Teacher ",
	})

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var identity struct {
		UserID   uint   `json:"user_id"`
		TenantID uint   `json:"tenant_id"`
		Role     string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&identity))
	require.Equal(t, uint(42), identity.UserID)
	require.Equal(t, uint(3), identity.TenantID)
	require.Equal(t, "teacher", identity.Role)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedApp(key string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminAPIKeyMiddleware(key), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func statusFor(t *testing.T, app *fiber.App, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestAdminAPIKeyMiddleware(t *testing.T) {
	app := newGuardedApp("s3cret")

	assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, nil))
	assert.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, map[string]string{"X-API-Key": "wrong"}))
	assert.Equal(t, fiber.StatusNoContent, statusFor(t, app, map[string]string{"X-API-Key": "s3cret"}))
	assert.Equal(t, fiber.StatusNoContent, statusFor(t, app, map[string]string{"Authorization": "Bearer s3cret"}))
}

func TestAdminAPIKeyMiddleware_DisabledWithoutKey(t *testing.T) {
	app := newGuardedApp("  ")
	assert.Equal(t, fiber.StatusServiceUnavailable, statusFor(t, app, map[string]string{"X-API-Key": "anything"}))
}

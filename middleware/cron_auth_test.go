package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"stayflow/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCronApp(secret string) *fiber.App {
	config.AppConfig.CronSecret = secret

	app := fiber.New()
	app.Post("/cron/dispatch", CronProtected(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func TestCronProtected(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		authHeader string
		wantStatus int
	}{
		{"valid token", "topsecret", "Bearer topsecret", http.StatusOK},
		{"missing header", "topsecret", "", http.StatusUnauthorized},
		{"wrong token", "topsecret", "Bearer nope", http.StatusUnauthorized},
		{"malformed header", "topsecret", "topsecret", http.StatusUnauthorized},
		{"wrong scheme", "topsecret", "Basic topsecret", http.StatusUnauthorized},
		{"empty configured secret", "", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newCronApp(tt.secret)

			req := httptest.NewRequest(http.MethodPost, "/cron/dispatch", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

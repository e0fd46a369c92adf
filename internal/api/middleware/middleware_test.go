package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func newApp() *fiber.App {
	cfg := &config.Config{SecretKey: secret, CookieName: "token"}
	app := fiber.New()
	app.Use(Metrics(metrics.NewMetrics()))
	app.Get("/me", NewAuthMiddleware(cfg).AuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp()
	token, err := utils.GenerateToken(secret, "user-7", time.Hour)
	require.NoError(t, err)
	expired, err := utils.GenerateToken(secret, "user-7", -time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"none", "", "", fiber.StatusUnauthorized},
		{"bearer", "Bearer " + token, "", fiber.StatusOK},
		{"cookie", "", token, fiber.StatusOK},
		{"expired cookie", "", expired, fiber.StatusUnauthorized},
		{"garbage", "Bearer nope", "", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tc.cookie})
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestMetricsCountsByRoute(t *testing.T) {
	app := newApp()
	counter := metrics.NewMetrics().HTTPRequestTotal.WithLabelValues(http.MethodGet, "/me", "401")
	before := testutil.ToFloat64(counter)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

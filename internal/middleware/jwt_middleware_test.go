package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
)

type stubValidator map[string]services.Claims

func (s stubValidator) ValidateToken(token string) (services.Claims, error) {
	claims, ok := s[token]
	if !ok {
		return services.Claims{}, errors.New("unknown token")
	}
	return claims, nil
}

func newApp() *fiber.App {
	tokens := stubValidator{
		"customer": {UserID: "u1", Username: "alice", Role: models.RoleCustomer},
		"admin":    {UserID: "u2", Username: "root", Role: models.RoleAdmin},
	}
	app := fiber.New()
	protected := app.Group("/", middleware.AuthRequired(tokens, nil))
	protected.Get("/me", func(c *fiber.Ctx) error {
		claims, _ := middleware.ClaimsFrom(c)
		return c.SendString(claims.UserID + ":" + c.Locals("role").(string))
	})
	protected.Get("/admin", middleware.AdminOnly(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	app := newApp()

	tests := []struct {
		name       string
		header     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", "/me", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", "/me", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", "/me", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", "/me", http.StatusUnauthorized, ""},
		{"customer", "Bearer customer", "/me", http.StatusOK, "u1:CUSTOMER"},
		{"customer on admin route", "Bearer customer", "/admin", http.StatusForbidden, ""},
		{"admin on admin route", "Bearer admin", "/admin", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.wantBody, string(body))
			}
		})
	}
}

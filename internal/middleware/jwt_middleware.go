package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/services"
)

const claimsKey = "claims"

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	ValidateToken(token string) (services.Claims, error)
}

func deny(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"code": code, "message": message},
	})
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return deny(c, fiber.StatusUnauthorized, apperror.CodeUnauthorized, "Authorization header is required")
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return deny(c, fiber.StatusUnauthorized, apperror.CodeUnauthorized, "Authorization header format must be 'Bearer <token>'")
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			logger.Debug("jwt validation failed", zap.String("path", c.Path()), zap.Error(err))
			return deny(c, fiber.StatusUnauthorized, apperror.CodeUnauthorized, "Invalid or expired token")
		}

		c.Locals(claimsKey, claims)
		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("role", string(claims.Role))
		return c.Next()
	}
}

// AdminOnly rejects callers without the admin role. It must run after AuthRequired.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return deny(c, fiber.StatusUnauthorized, apperror.CodeUnauthorized, "Authentication required")
		}
		if !claims.Admin() {
			return deny(c, fiber.StatusForbidden, apperror.CodeForbidden, "Admin access required")
		}
		return c.Next()
	}
}

// ClaimsFrom returns the claims stored by AuthRequired.
func ClaimsFrom(c *fiber.Ctx) (services.Claims, bool) {
	claims, ok := c.Locals(claimsKey).(services.Claims)
	return claims, ok
}

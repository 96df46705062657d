package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/middleware"
	"storefront/internal/services"
)

// statusOf maps an error kind onto an HTTP status.
func statusOf(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation, apperror.KindRejected:
		return fiber.StatusBadRequest
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindConflict:
		return fiber.StatusConflict
	case apperror.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperror.KindForbidden:
		return fiber.StatusForbidden
	case apperror.KindTransient:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondError writes err as {"error": {"code", "message", "details"}}.
// Unclassified errors are logged and reported without their text.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.New(apperror.KindInternal, apperror.CodeInternal, "internal server error")
	}
	status := statusOf(appErr.Kind)
	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}

	body := fiber.Map{"code": appErr.Code, "message": appErr.Message}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}

func badBody(err error) error {
	return apperror.New(apperror.KindValidation, apperror.CodeValidation, "Invalid request body").
		WithDetails(map[string]any{"body": err.Error()})
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func viewerOf(c *fiber.Ctx) services.Viewer {
	claims, _ := middleware.ClaimsFrom(c)
	return claims.Viewer()
}

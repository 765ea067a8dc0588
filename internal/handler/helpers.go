package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/degun-osint/brainnotfound-go-api/internal/dispatch"
	"github.com/degun-osint/brainnotfound-go-api/internal/middleware"
	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/internal/utils"
)

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	return uintLocal(c, "user_id")
}

func tenantIDFromContext(c *fiber.Ctx) uint {
	return uintLocal(c, "tenant_id")
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func uintLocal(c *fiber.Ctx, key string) uint {
	if v := c.Locals(key); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// sendServiceError maps domain errors onto HTTP statuses.
func sendServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrQuotaExceeded):
		return utils.SendError(c, fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrSubscriptionInactive):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, dispatch.ErrAlreadyProcessing):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrQueueFull):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrTerminalState),
		errors.Is(err, service.ErrRegradeNotAllowed),
		errors.Is(err, service.ErrSessionClosed):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrStudentEndNotAllowed),
		errors.Is(err, service.ErrInterviewInactive):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}
}

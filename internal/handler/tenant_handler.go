package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/internal/utils"
)

// TenantHandler exposes tenant usage endpoints.
type TenantHandler struct {
	quota  service.QuotaService
	logger zerolog.Logger
}

// NewTenantHandler constructs a handler instance.
func NewTenantHandler(quota service.QuotaService, logger zerolog.Logger) *TenantHandler {
	return &TenantHandler{
		quota:  quota,
		logger: logger.With().Str("component", "tenant_handler").Logger(),
	}
}

// Register binds the tenant routes.
func (h *TenantHandler) Register(router fiber.Router) {
	router.Get("/:id/usage", h.usage)
}

func (h *TenantHandler) usage(c *fiber.Ctx) error {
	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid tenant id")
	}

	// Callers scoped to a tenant only see their own counters.
	if caller := tenantIDFromContext(c); caller != 0 && caller != tenantID && userRoleFromContext(c) != "admin" {
		return utils.SendError(c, fiber.StatusForbidden, "tenant mismatch")
	}

	stats, err := h.quota.UsageStats(requestContext(c), tenantID)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccess(c, "usage statistics", stats)
}

package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/degun-osint/brainnotfound-go-api/internal/config"
	"github.com/degun-osint/brainnotfound-go-api/internal/handler"
	"github.com/degun-osint/brainnotfound-go-api/internal/middleware"
	"github.com/degun-osint/brainnotfound-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler   *handler.GradingHandler
	InterviewHandler *handler.InterviewHandler
	AnomalyHandler   *handler.AnomalyHandler
	TenantHandler    *handler.TenantHandler
	EventHandler     *handler.EventHandler
	JWTMiddleware    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.GradingHandler != nil {
		responses := app.Group("/api/v1/responses", jwtMiddleware,
			middleware.RateLimit("grading", 30, time.Minute))
		deps.GradingHandler.Register(responses)
	}

	if deps.InterviewHandler != nil {
		interviews := app.Group("/api/v1/interviews", jwtMiddleware,
			middleware.RateLimit("interview", 60, time.Minute))
		deps.InterviewHandler.Register(interviews)
	}

	if deps.AnomalyHandler != nil {
		anomaly := app.Group("/api/v1/anomaly", jwtMiddleware,
			middleware.RateLimit("anomaly", 10, time.Minute))
		deps.AnomalyHandler.Register(anomaly)
	}

	if deps.TenantHandler != nil {
		tenants := app.Group("/api/v1/tenants", jwtMiddleware)
		deps.TenantHandler.Register(tenants)
	}

	if deps.EventHandler != nil {
		events := app.Group("/api/v1/events", jwtMiddleware)
		deps.EventHandler.Register(events)
	}
}

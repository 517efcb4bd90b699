package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/evidia-go-api/internal/config"
	"github.com/noah-isme/evidia-go-api/internal/handler"
	"github.com/noah-isme/evidia-go-api/internal/middleware"
	"github.com/noah-isme/evidia-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvidenceHandler *handler.EvidenceHandler
	GradingHandler  *handler.GradingHandler
	ActivityHandler *handler.ActivityHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.EvidenceHandler != nil {
		evidences := app.Group("/evidencias")
		evidences.Use("/", middleware.RateLimit("evidencias", 30, time.Minute))
		deps.EvidenceHandler.Register(evidences)
	}

	if deps.GradingHandler != nil {
		evaluator := app.Group("/evaluador", jwtMiddleware, middleware.RequireRole("evaluator", "admin"))
		deps.GradingHandler.Register(evaluator)
	}

	if deps.ActivityHandler != nil {
		activity := app.Group("/bitacora", jwtMiddleware, middleware.RequireRole("admin", "evaluator"))
		deps.ActivityHandler.Register(activity)
	}
}

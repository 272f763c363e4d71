package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-pipeline/internal/api/http/handlers"
	"github.com/spec-kit/intake-pipeline/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Intake         *handlers.IntakeHandler
	Gateway        *handlers.GatewayHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	api.Post("/intake", auth.RequireRole(auth.RoleOperator), cfg.Intake.Create)
	api.Get("/alerts", auth.RequireRole(auth.RoleViewer), cfg.Gateway.RecentAlerts)
	api.Get("/gateway/status", auth.RequireRole(auth.RoleViewer), cfg.Gateway.Status)
	api.Post("/gateway/pairing-code", auth.RequireRole(auth.RoleAdmin), cfg.Gateway.RequestPairingCode)
}

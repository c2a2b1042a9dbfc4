package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/token-manager/internal/api/http/handlers"
	"github.com/spec-kit/token-manager/internal/auth"
	"github.com/spec-kit/token-manager/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tokens         *handlers.TokensHandler
	Editors        *handlers.EditorHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	api.Post("/auth/login", cfg.Auth.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Post("/auth/logout", cfg.Auth.Logout)
	protected.Post("/users", auth.RequireSuperuser(), cfg.Auth.CreateUser)

	tokens := protected.Group("/tokens")
	tokens.Get("/", cfg.Tokens.List)
	tokens.Post("/", cfg.Tokens.Create)
	// static paths before /:id
	tokens.Get("/statistics", cfg.Tokens.Statistics)
	tokens.Post("/import", cfg.Tokens.Import)
	tokens.Post("/export", cfg.Tokens.Export)
	tokens.Post("/batch-delete", cfg.Tokens.BatchDelete)
	tokens.Post("/batch-validate", cfg.Tokens.BatchValidate)
	tokens.Post("/batch-refresh", cfg.Tokens.BatchRefresh)
	tokens.Get("/:id", cfg.Tokens.Get)
	tokens.Put("/:id", cfg.Tokens.Update)
	tokens.Delete("/:id", cfg.Tokens.Delete)
	tokens.Post("/:id/validate", cfg.Tokens.Validate)
	tokens.Post("/:id/refresh", cfg.Tokens.Refresh)
	tokens.Post("/:id/usage", cfg.Tokens.RecordUsage)

	ide := protected.Group("/ide")
	ide.Get("/supported-editors", cfg.Editors.SupportedEditors)
	ide.Post("/open-editor", cfg.Editors.OpenEditor)
}

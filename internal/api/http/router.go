package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Operators      *handlers.OperatorsHandler
	Inbound        *handlers.InboundHandler
	Audit          *handlers.AuditHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// Provider webhook authenticates with its HMAC signature, not a token.
	app.Post("/api/inbound/email", cfg.Inbound.Receive)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireOperator())

	tickets := api.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.ChangePriority)
	tickets.Post("/:id/take", cfg.Tickets.Take)
	tickets.Post("/:id/reassign", cfg.Tickets.Reassign)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)

	api.Get("/audit", cfg.Audit.List)

	admin := api.Group("", auth.RequireGlobalRole(domain.RoleAdmin))
	admin.Post("/operators", cfg.Operators.Create)
}

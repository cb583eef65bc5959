package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole())

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/transitions", cfg.Tickets.Transition)
	tickets.Post("/:id/escalations/area", cfg.Tickets.EscalateToArea)
	tickets.Post("/:id/escalations/manager",
		auth.RequireRole(domain.RoleOperator, domain.RoleProducer, domain.RoleManager, domain.RoleAdministrator),
		cfg.Tickets.EscalateToManager)
	tickets.Post("/:id/links", cfg.Tickets.LinkTicket)
	tickets.Get("/:id/links", cfg.Tickets.ListLinks)
	tickets.Post("/:id/messages", cfg.Tickets.PostMessage)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)

	notifications := api.Group("/notifications")
	notifications.Get("/", cfg.Notifications.List)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Get("/stream", cfg.Notifications.Stream)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
	notifications.Post("/:id/unread", cfg.Notifications.MarkUnread)
}

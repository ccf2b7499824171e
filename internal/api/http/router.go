package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk-io/servicedesk/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Ops     *handlers.OpsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")
	api.Get("/tickets", cfg.Tickets.ListTickets)
	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Post("/tickets/:id/resolve", cfg.Tickets.ResolveTicket)
	api.Get("/stats", cfg.Tickets.GetStats)

	api.Post("/ingest/run", cfg.Ops.RunIngest)
	api.Post("/sla/sweep", cfg.Ops.RunSweep)
	api.Get("/sla/summary", cfg.Ops.GetSlaSummary)
	api.Get("/teams", cfg.Ops.ListTeams)
	api.Get("/status", cfg.Ops.GetStatus)
}

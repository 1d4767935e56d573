package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qline/queue-service/internal/api/http/handlers"
	"github.com/qline/queue-service/internal/auth"
	"github.com/qline/queue-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queues         *handlers.QueuesHandler
	Staff          *handlers.StaffHandler
	StaffQueues    *handlers.StaffQueuesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// anonymous customer surface: slug link to join, token link to watch
	app.Get("/queues/:slug", cfg.Queues.GetQueue)
	app.Post("/queues/:slug/join", cfg.Queues.Join)
	app.Get("/my/:token", cfg.Queues.MyStatus)
	app.Post("/my/:token/push", cfg.Queues.RegisterPush)

	staffGroup := app.Group("/staff")
	staffGroup.Post("/login", cfg.Staff.Login)

	protected := staffGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole())
	protected.Post("/password/change", cfg.Staff.ChangePassword)

	protected.Post("/queues", auth.RequireRole(domain.StaffRoleAdmin), cfg.StaffQueues.CreateQueue)
	protected.Get("/queues/:id", cfg.StaffQueues.Dashboard)
	protected.Patch("/queues/:id", cfg.StaffQueues.UpdateQueue)
	protected.Patch("/queues/:id/settings", cfg.StaffQueues.UpdateSettings)
	protected.Post("/queues/:id/call-next", cfg.StaffQueues.CallNext)
	protected.Post("/queues/:id/pause", cfg.StaffQueues.Pause)
	protected.Post("/queues/:id/resume", cfg.StaffQueues.Resume)
	protected.Post("/queues/:id/activate", cfg.StaffQueues.Activate)
	protected.Post("/queues/:id/deactivate", cfg.StaffQueues.Deactivate)
	protected.Post("/queues/:id/customers/:customerId/served", cfg.StaffQueues.MarkServed)
	protected.Post("/queues/:id/customers/:customerId/no-show", cfg.StaffQueues.MarkNoShow)
	protected.Delete("/queues/:id/customers/:customerId", cfg.StaffQueues.RemoveCustomer)
}

package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Complaints     *handlers.ComplaintsHandler
	Stats          *handlers.StatsHandler
	History        *handlers.HistoryHandler
	Media          *handlers.MediaHandler
	AuthMiddleware *auth.AuthMiddleware
	Gate           *auth.Gate
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	if cfg.Media != nil {
		app.Get("/media/*", cfg.Media.Serve)
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Put("/password", cfg.AuthMiddleware.Handle, cfg.Users.ChangePassword)

	gate := cfg.Gate
	complaints := api.Group("/complaints", cfg.AuthMiddleware.Handle)
	complaints.Post("/", gate.Require(auth.PermComplaintCreate), cfg.Complaints.Create)
	complaints.Get("/", gate.Require(auth.PermComplaintList), cfg.Complaints.List)
	complaints.Get("/mycomplaints", gate.Require(auth.PermComplaintListOwn), cfg.Complaints.ListMine)
	complaints.Post("/sendProof", gate.Require(auth.PermComplaintSendProof), cfg.Complaints.SendProof)
	complaints.Get("/:id", gate.Require(auth.PermComplaintRead), cfg.Complaints.Get)
	complaints.Put("/:id/status", gate.Require(auth.PermComplaintSetStatus), cfg.Complaints.UpdateStatus)
	complaints.Put("/:id/priority", gate.Require(auth.PermComplaintSetPriority), cfg.Complaints.UpdatePriority)
	complaints.Post("/:id/feedback", gate.Require(auth.PermComplaintFeedback), cfg.Complaints.Feedback)
	complaints.Put("/:id/close", gate.Require(auth.PermComplaintClose), cfg.Complaints.Close)
	complaints.Put("/:id/forward", gate.Require(auth.PermComplaintForward), cfg.Complaints.Forward)
	complaints.Put("/:id/reject", gate.Require(auth.PermComplaintReject), cfg.Complaints.Reject)
	if cfg.History != nil {
		complaints.Get("/:id/history", gate.Require(auth.PermComplaintRead), cfg.History.List)
	}

	users := api.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("/", gate.Require(auth.PermUserList), cfg.Users.List)
	users.Put("/:id", gate.Require(auth.PermUserUpdate), cfg.Users.Update)

	stats := api.Group("/stats", cfg.AuthMiddleware.Handle)
	stats.Get("/summary", gate.Require(auth.PermStatsRead), cfg.Stats.Summary)
}

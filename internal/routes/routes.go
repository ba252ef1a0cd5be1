package routes

import (
	"go-tablelogger/internal/bootstrap"
	"go-tablelogger/internal/config"
	mw "go-tablelogger/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupRoutes configures the application routes.
func SetupRoutes(app *fiber.App, cfg *config.Config, logger *zap.Logger, components *bootstrap.AppComponents) {
	logger.Info("Setting up application routes...")

	// --- Public Routes ---
	app.Get("/health", components.LogHandler.Health)

	// --- API v1 Routes ---
	api := app.Group("/api/v1")

	// Authentication Routes (Public within API group)
	components.AuthHandler.SetupAuthRoutes(api) // POST /api/v1/auth/login

	// Protected Routes (Requires JWT Authentication)
	logs := api.Group("/logs", mw.Protected(cfg.JWTSecret))

	// GET /api/v1/logs, /api/v1/logs/search, GET|DELETE /api/v1/logs/:partition/:row
	components.LogHandler.SetupLogRoutes(logs)
}

package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/service"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, dash *service.Dashboard, log *logrus.Entry) {
	handler := NewHandler(dash, log)

	// Health check
	app.Get("/health", handler.HealthCheck)

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/dashboard", handler.GetDashboard)

		// Traffic density
		api.Get("/density", handler.GetDensity)
		api.Get("/density/geojson", handler.GetDensityGeoJSON)
		api.Post("/density/refresh", handler.RefreshDensity)

		// Lane closures
		api.Get("/closures", handler.GetClosures)
		api.Get("/closures/geojson", handler.GetClosuresGeoJSON)
		api.Post("/closures/refresh", handler.RefreshClosures)

		// Incident alerts
		api.Get("/alerts", handler.GetAlerts)
		api.Post("/alerts/read-all", handler.MarkAllAlertsRead)
		api.Post("/alerts/:id/ack", handler.AcknowledgeAlert)
		api.Delete("/alerts", handler.ClearAlerts)

		// Map viewport
		api.Get("/viewport", handler.GetViewport)
		api.Put("/viewport", handler.SetViewport)
		api.Delete("/viewport", handler.ClearViewport)

		// Live updates
		api.Get("/stream", handler.Stream)
	}
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/trafficops/internal/domain"
	"github.com/smartcity/trafficops/internal/service"
)

// refreshTimeout bounds an explicitly triggered fetch
const refreshTimeout = 30 * time.Second

// Handler contains all HTTP handlers
type Handler struct {
	dash      *service.Dashboard
	log       *logrus.Entry
	keepAlive time.Duration
}

// NewHandler creates a new handler
func NewHandler(dash *service.Dashboard, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		dash:      dash,
		log:       log.WithField("component", "http"),
		keepAlive: 15 * time.Second,
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	database := "ok"
	if err := h.dash.Health(c.UserContext()); err != nil {
		h.log.WithError(err).Warn("Camera registry health check failed")
		status, code, database = "degraded", fiber.StatusServiceUnavailable, "unavailable"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":           status,
		"service":          "trafficops",
		"version":          "1.0.0",
		"database":         database,
		"alerts_connected": h.dash.Alerts.Connected(),
	})
}

// GetDashboard returns aggregated live data
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.GetDashboardData(),
	})
}

// GetDensity returns the current density snapshot
func (h *Handler) GetDensity(c *fiber.Ctx) error {
	snap, ok := h.dash.Density.Snapshot()
	if !ok {
		return fiber.NewError(fiber.StatusServiceUnavailable, "No traffic density published yet")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snap,
		"stale":   h.dash.Density.Stale(),
		"state":   h.dash.Density.State(),
	})
}

// RefreshDensity triggers an immediate density fetch
func (h *Handler) RefreshDensity(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), refreshTimeout)
	defer cancel()

	if err := h.dash.Density.Refresh(ctx); err != nil {
		return fetchError(err, "traffic density")
	}
	snap, _ := h.dash.Density.Snapshot()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snap,
	})
}

// GetClosures returns lane closures, optionally filtered by status and severity
func (h *Handler) GetClosures(c *fiber.Ctx) error {
	var q service.ClosureQuery
	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParseClosureStatus(raw)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid status filter")
		}
		q.Status = status
	}
	if raw := c.Query("severity"); raw != "" {
		severity, ok := domain.ParseClosureSeverity(raw)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid severity filter")
		}
		q.Severity = severity
	}

	view := h.dash.Closures.Query(q)
	return c.JSON(fiber.Map{
		"success":   true,
		"data":      view.Closures,
		"count":     len(view.Closures),
		"analysis":  view.Analysis,
		"timestamp": view.Timestamp,
		"stale":     view.Stale,
	})
}

// RefreshClosures triggers an immediate lane closure fetch
func (h *Handler) RefreshClosures(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), refreshTimeout)
	defer cancel()

	if err := h.dash.Closures.Refresh(ctx); err != nil {
		return fetchError(err, "lane closures")
	}
	snap, _ := h.dash.Closures.Snapshot()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snap,
	})
}

// GetAlerts returns the alert list and unread count
func (h *Handler) GetAlerts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.Alerts.State(),
	})
}

// AcknowledgeAlert marks one alert as read
func (h *Handler) AcknowledgeAlert(c *fiber.Ctx) error {
	if !h.dash.Alerts.Acknowledge(c.Params("id")) {
		return fiber.NewError(fiber.StatusNotFound, "Alert not found")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.Alerts.State(),
	})
}

// MarkAllAlertsRead acknowledges every alert
func (h *Handler) MarkAllAlertsRead(c *fiber.Ctx) error {
	h.dash.Alerts.MarkAllAsRead()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.Alerts.State(),
	})
}

// ClearAlerts drops every alert
func (h *Handler) ClearAlerts(c *fiber.Ctx) error {
	h.dash.Alerts.ClearAll()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.Alerts.State(),
	})
}

// GetViewport returns the current viewport summary with per-camera matches
func (h *Handler) GetViewport(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.Viewport.Summary(),
		"matches": h.dash.Viewport.Matches(),
	})
}

// SetViewport replaces the viewport bounds
func (h *Handler) SetViewport(c *fiber.Ctx) error {
	var bounds domain.ViewportBounds
	if err := c.BodyParser(&bounds); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	summary, err := h.dash.Viewport.SetBounds(bounds)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid viewport bounds")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

// ClearViewport removes the viewport bounds
func (h *Handler) ClearViewport(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.dash.Viewport.ClearBounds(),
	})
}

// fetchError maps a failed backend fetch onto an HTTP error
func fetchError(err error, what string) error {
	if service.IsAuthError(err) {
		return fiber.NewError(fiber.StatusUnauthorized, "Backend rejected the request for "+what)
	}
	return fiber.NewError(fiber.StatusBadGateway, "Failed to fetch "+what)
}

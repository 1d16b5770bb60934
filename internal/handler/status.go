// Package handler serves the live status endpoint of a running experiment.
package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/experiment"
)

// StatusSource reports experiment progress
type StatusSource interface {
	Status() experiment.Status
}

// StatusHandler handles the health, status and metrics endpoints
type StatusHandler struct {
	source    StatusSource
	version   string
	startTime time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource, version string) *StatusHandler {
	return &StatusHandler{
		source:    source,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthStatus represents health check status
type HealthStatus struct {
	Status    string           `json:"status"`
	State     experiment.State `json:"state"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
}

// Health handles GET /health. A failed run reports unhealthy.
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	st := h.source.Status()
	status := HealthStatus{
		Status:    "healthy",
		State:     st.State,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := fiber.StatusOK
	if st.State == experiment.StateFailed {
		status.Status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(status)
}

// Liveness handles GET /livez
func (h *StatusHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// Status handles GET /status
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.source.Status())
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/healthz", h.Health)
	app.Get("/livez", h.Liveness)
	app.Get("/status", h.Status)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// NewApp creates a fiber app serving the status routes
func NewApp(h *StatusHandler, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "fastcoref",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(RequestLogger(logger))
	h.RegisterRoutes(app)
	return app
}

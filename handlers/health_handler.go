package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/isir-tracker/isir-backend/database"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthHandler struct {
	Metrics  []*shared.ServiceMetrics
	gatherer prometheus.Gatherer
}

func NewHealthHandler(gatherer prometheus.Gatherer, metrics ...*shared.ServiceMetrics) *HealthHandler {
	return &HealthHandler{Metrics: metrics, gatherer: gatherer}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	response := fiber.Map{
		"status":    "ok",
		"database":  "disabled",
		"timestamp": time.Now().Unix(),
	}
	if database.DB != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		response["database"] = "ok"
		if err := database.HealthCheck(ctx); err != nil {
			response["database"] = "unavailable"
		} else {
			stats := database.GetConnectionStats()
			response["db_open_connections"] = stats.OpenConnections
			response["db_in_use"] = stats.InUse
		}
	}

	return c.JSON(response)
}

// Stats returns the in-process service counters.
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	stats := make([]map[string]interface{}, 0, len(h.Metrics))
	for _, m := range h.Metrics {
		stats = append(stats, m.Snapshot())
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// PrometheusHandler serves the registered collectors in the exposition format.
func (h *HealthHandler) PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

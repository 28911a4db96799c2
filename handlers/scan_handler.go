package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/jobs"
	"github.com/isir-tracker/isir-backend/models"
)

type ScanHandler struct {
	Jobs *jobs.ScanJobManager
	now  func() time.Time
}

func NewScanHandler(manager *jobs.ScanJobManager) *ScanHandler {
	return &ScanHandler{Jobs: manager, now: time.Now}
}

type startScanRequest struct {
	Period string `json:"period"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// StartScan accepts {"period": "today|last7|last30"} or {"from": "2024-01-01", "to": "2024-01-02"}.
func (h *ScanHandler) StartScan(c *fiber.Ctx) error {
	var req startScanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid request body",
			})
		}
	}

	window, err := parseWindow(req, h.now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	id, err := h.Jobs.Start(window)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":     id,
			"window": window,
		},
	})
}

func parseWindow(req startScanRequest, now time.Time) (models.ScanWindow, error) {
	if req.From == "" && req.To == "" {
		return models.PresetWindow(req.Period, now, time.Time{}, time.Time{})
	}
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		return models.ScanWindow{}, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		return models.ScanWindow{}, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
	}
	return models.PresetWindow(models.PeriodCustom, now, from, to)
}

func (h *ScanHandler) GetScan(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid scan ID",
		})
	}

	job, ok := h.Jobs.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Scan not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    job,
	})
}

func (h *ScanHandler) ListScans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Jobs.List(),
	})
}

func (h *ScanHandler) CancelScan(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid scan ID",
		})
	}

	if !h.Jobs.Cancel(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Scan not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Scan cancellation requested",
	})
}

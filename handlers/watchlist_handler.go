package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/isir-tracker/isir-backend/database"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/services"
)

type WatchlistHandler struct {
	Service *services.WatchlistService
}

func NewWatchlistHandler(service *services.WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{Service: service}
}

type addWatchlistRequest struct {
	Event models.AuctionEvent `json:"event"`
	Note  string              `json:"note"`
}

func (h *WatchlistHandler) AddItem(c *fiber.Ctx) error {
	var req addWatchlistRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	item, err := h.Service.Add(c.UserContext(), req.Event, req.Note)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    item,
	})
}

func (h *WatchlistHandler) GetItems(c *fiber.Ctx) error {
	items, err := h.Service.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
		"count":   len(items),
	})
}

func (h *WatchlistHandler) GetItem(c *fiber.Ctx) error {
	docID, err := parseDocID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	item, err := h.Service.Get(c.UserContext(), docID)
	if errors.Is(err, database.ErrWatchlistItemNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Watchlist item not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    item,
	})
}

func (h *WatchlistHandler) DeleteItem(c *fiber.Ctx) error {
	docID, err := parseDocID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	err = h.Service.Remove(c.UserContext(), docID)
	if errors.Is(err, database.ErrWatchlistItemNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Watchlist item not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Removed from watchlist",
	})
}

func (h *WatchlistHandler) GetReport(c *fiber.Ctx) error {
	pdf, err := h.Service.ReportPDF(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "PDF export failed",
		})
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="watchlist.pdf"`)
	c.Type("pdf")
	return c.Send(pdf)
}

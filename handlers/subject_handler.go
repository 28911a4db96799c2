package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/isir-tracker/isir-backend/services"
	"github.com/isir-tracker/isir-backend/shared"
)

type SubjectHandler struct {
	Service *services.SubjectLookupService
}

func NewSubjectHandler(service *services.SubjectLookupService) *SubjectHandler {
	return &SubjectHandler{Service: service}
}

// GetSubjects looks up ?case=INS 12925/2022 or ?ic=12345678.
func (h *SubjectHandler) GetSubjects(c *fiber.Ctx) error {
	query := c.Query("case")
	if query == "" {
		query = c.Query("ic")
	}
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "case or ic query parameter is required",
		})
	}

	subjects, err := h.Service.Lookup(c.UserContext(), query)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{
			"success": true,
			"data":    subjects,
		})
	case shared.IsFormatError(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	case errors.Is(err, services.ErrSubjectNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "No subject found",
		})
	case shared.IsUpstreamError(err):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "Registry unavailable",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
}

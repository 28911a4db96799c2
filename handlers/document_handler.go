package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/services"
)

type DocumentHandler struct {
	Fetcher     *services.DocumentFetcher
	Summaries   *services.SummaryService
	Reports     *services.ReportService
	Watchlist   *services.WatchlistService
	DocumentDir string
	BaseURL     string
}

func NewDocumentHandler(fetcher *services.DocumentFetcher, summaries *services.SummaryService, reports *services.ReportService,
	watchlist *services.WatchlistService, documentDir, baseURL string) *DocumentHandler {
	return &DocumentHandler{
		Fetcher:     fetcher,
		Summaries:   summaries,
		Reports:     reports,
		Watchlist:   watchlist,
		DocumentDir: documentDir,
		BaseURL:     baseURL,
	}
}

func parseDocID(c *fiber.Ctx) (models.SequenceID, error) {
	raw, err := strconv.ParseUint(c.Params("docId"), 10, 64)
	if err != nil || raw == 0 {
		return 0, fmt.Errorf("invalid document ID")
	}
	return models.SequenceID(raw), nil
}

// documentURL only accepts links on the registry document endpoint.
func (h *DocumentHandler) documentURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, h.BaseURL+"?") {
		return "", false
	}
	return raw, true
}

// GetPDF streams a preview of the registry document.
func (h *DocumentHandler) GetPDF(c *fiber.Ctx) error {
	docID, err := parseDocID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	url, ok := h.documentURL(c.Query("url"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url must point to the registry document endpoint",
		})
	}

	// One file per request, removed once sent.
	idDokument := services.DocumentIDFromURL(url)
	if idDokument == "" {
		idDokument = "0"
	}
	path := filepath.Join(h.DocumentDir, fmt.Sprintf("view_%d_%s_%s.pdf", docID, idDokument, uuid.NewString()))
	defer os.Remove(path)

	if err := h.Fetcher.Download(c.UserContext(), url, path); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "Preview unavailable: " + services.FailureReason(err),
		})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Preview unavailable",
		})
	}

	c.Type("pdf")
	return c.Send(data)
}

type summaryRequest struct {
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

// CreateSummary downloads the document and returns its AI summary.
func (h *DocumentHandler) CreateSummary(c *fiber.Ctx) error {
	docID, err := parseDocID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	var req summaryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	url, ok := h.documentURL(req.URL)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url must point to the registry document endpoint",
		})
	}

	// A tracked document may only be summarized from its own registry link.
	if item, err := h.Watchlist.Get(c.UserContext(), docID); err == nil && item.Event.PDFURL != nil &&
		services.DocumentIDFromURL(*item.Event.PDFURL) != services.DocumentIDFromURL(url) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "url does not match the watched document",
		})
	}

	summary, err := h.Summaries.SummarizeURL(c.UserContext(), docID, url, req.Lang)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, services.ErrSummaryUnavailable) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	h.Watchlist.AttachSummary(c.UserContext(), docID, summary)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"doc_id":  docID,
			"summary": summary,
		},
	})
}

// cachedSummary writes the error response itself when ok is false.
func (h *DocumentHandler) cachedSummary(c *fiber.Ctx) (docID models.SequenceID, summary string, ok bool, err error) {
	docID, err = parseDocID(c)
	if err != nil {
		return 0, "", false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	summary, ok = h.Summaries.Cached(docID, c.Query("lang", "cs"))
	if !ok {
		return 0, "", false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "No summary for this document"})
	}
	return docID, summary, true, nil
}

// GetSummary returns a cached summary.
func (h *DocumentHandler) GetSummary(c *fiber.Ctx) error {
	docID, summary, ok, err := h.cachedSummary(c)
	if !ok {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"doc_id":  docID,
			"summary": summary,
		},
	})
}

// DeleteSummary drops the cached summaries of a document.
func (h *DocumentHandler) DeleteSummary(c *fiber.Ctx) error {
	docID, err := parseDocID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	h.Summaries.Forget(docID)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Summary cache cleared",
	})
}

// GetSummaryText exports the cached summary as plain ASCII text.
func (h *DocumentHandler) GetSummaryText(c *fiber.Ctx) error {
	docID, summary, ok, err := h.cachedSummary(c)
	if !ok {
		return err
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="ai_%d.txt"`, docID))
	c.Type("txt", "utf-8")
	return c.SendString(services.CleanText(summary))
}

// GetSummaryPDF prints the cached summary with the watchlist entry's details when available.
func (h *DocumentHandler) GetSummaryPDF(c *fiber.Ctx) error {
	docID, summary, ok, err := h.cachedSummary(c)
	if !ok {
		return err
	}

	event := models.AuctionEvent{Name: fmt.Sprintf("Dokument %d", docID), DocID: docID}
	if item, err := h.Watchlist.Get(c.UserContext(), docID); err == nil {
		event = item.Event
	}

	pdf, err := h.Reports.SummaryPDF(c.UserContext(), event, summary)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "PDF export failed"})
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="ai_%d.pdf"`, docID))
	c.Type("pdf")
	return c.Send(pdf)
}

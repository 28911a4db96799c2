package handlers

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Router groups the handlers served under /api/v1.
type Router struct {
	Health     *HealthHandler
	Scans      *ScanHandler
	Subjects   *SubjectHandler
	Documents  *DocumentHandler
	Watchlist  *WatchlistHandler
	AdminToken string
}

// RequireAdminToken guards mutating routes with a bearer token. An empty token disables the check.
func RequireAdminToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		got := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized",
			})
		}
		return c.Next()
	}
}

func (r *Router) Register(app *fiber.App) {
	app.Get("/health", r.Health.Health)
	app.Get("/metrics", r.Health.PrometheusHandler())

	api := app.Group("/api/v1")
	admin := RequireAdminToken(r.AdminToken)

	api.Get("/stats", r.Health.Stats)

	// Scan Routes
	api.Post("/scans", admin, r.Scans.StartScan)
	api.Get("/scans", r.Scans.ListScans)
	api.Get("/scans/:id", r.Scans.GetScan)
	api.Delete("/scans/:id", admin, r.Scans.CancelScan)

	// Subject Routes
	api.Get("/subjects", r.Subjects.GetSubjects)

	// Document Routes
	api.Get("/documents/:docId/pdf", r.Documents.GetPDF)
	api.Post("/documents/:docId/summary", admin, r.Documents.CreateSummary)
	api.Get("/documents/:docId/summary", r.Documents.GetSummary)
	api.Delete("/documents/:docId/summary", admin, r.Documents.DeleteSummary)
	api.Get("/documents/:docId/summary.txt", r.Documents.GetSummaryText)
	api.Get("/documents/:docId/summary.pdf", r.Documents.GetSummaryPDF)

	// Watchlist Routes
	api.Get("/watchlist", r.Watchlist.GetItems)
	api.Post("/watchlist", admin, r.Watchlist.AddItem)
	api.Get("/watchlist/report.pdf", r.Watchlist.GetReport)
	api.Get("/watchlist/:docId", r.Watchlist.GetItem)
	api.Delete("/watchlist/:docId", admin, r.Watchlist.DeleteItem)
}

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/isir-tracker/isir-backend/database"
	"github.com/isir-tracker/isir-backend/jobs"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/services"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminToken = "secret"
	testDocBaseURL = "https://isir.justice.cz/isir/doc/dokument.PDF"
)

type stubRegistry struct {
	subjects map[string][]models.SubjectRecord
	err      error
}

func (s *stubRegistry) LatestSequenceID(ctx context.Context) (models.SequenceID, error) {
	return 0, s.err
}

func (s *stubRegistry) BatchAt(ctx context.Context, id models.SequenceID) ([]models.RegistryRecord, error) {
	return nil, s.err
}

func (s *stubRegistry) SubjectByCaseKey(ctx context.Context, key models.CaseKey) ([]models.SubjectRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.subjects[key.String()], nil
}

type instantScanner struct{}

func (instantScanner) Scan(ctx context.Context, window models.ScanWindow, progress services.ProgressFunc) (*models.ScanResult, error) {
	return &models.ScanResult{Window: window}, nil
}

func newTestApp(t *testing.T, registry *stubRegistry) *fiber.App {
	t.Helper()
	return newTestAppWithDocuments(t, registry, t.TempDir(), testDocBaseURL)
}

func newTestAppWithDocuments(t *testing.T, registry *stubRegistry, dir, docBaseURL string) *fiber.App {
	t.Helper()

	fetcher := services.NewDocumentFetcher(shared.DocumentConfig{Timeout: 5 * time.Second}, nil)
	cache := services.NewSummaryCache(services.NewCacheServiceWithConfig(time.Hour, 10))
	summaries := services.NewSummaryService(shared.SummaryConfig{Model: "gemini-test"}, dir, fetcher, cache)
	reports := services.NewReportService(shared.ReportConfig{})
	watchlist := services.NewWatchlistService(database.NewMemoryWatchlistStore(), reports)
	scanJobs := jobs.NewScanJobManager(instantScanner{}, time.Hour)
	t.Cleanup(scanJobs.Shutdown)

	router := &Router{
		Health:     NewHealthHandler(prometheus.NewRegistry(), fetcher.Metrics()),
		Scans:      NewScanHandler(scanJobs),
		Subjects:   NewSubjectHandler(services.NewSubjectLookupService(registry)),
		Documents:  NewDocumentHandler(fetcher, summaries, reports, watchlist, dir, docBaseURL),
		Watchlist:  NewWatchlistHandler(watchlist),
		AdminToken: testAdminToken,
	}

	app := fiber.New()
	router.Register(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string, admin bool) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if admin {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+testAdminToken)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func TestHealthAndStats(t *testing.T) {
	app := newTestApp(t, &stubRegistry{})

	status, body := doRequest(t, app, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["database"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/stats", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = doRequest(t, app, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, status)
}

func TestSubjects(t *testing.T) {
	registry := &stubRegistry{subjects: map[string][]models.SubjectRecord{
		"INS 12925/2022": {{CaseReference: "INS 12925/2022", Name: "Novak Jan", Status: "KONKURS"}},
	}}
	app := newTestApp(t, registry)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/subjects?case=INS%2012925/2022", "", false)
	assert.Equal(t, http.StatusOK, status)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "Novak Jan", data[0].(map[string]interface{})["name"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/subjects", "", false)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/subjects?case=INS%2012925", "", false)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/subjects?case=INS%201/2024", "", false)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestSubjects_RegistryUnavailable(t *testing.T) {
	registry := &stubRegistry{err: shared.NewUpstreamError("getIsirWsCuzkData", 5, io.ErrUnexpectedEOF)}
	app := newTestApp(t, registry)

	status, body := doRequest(t, app, http.MethodGet, "/api/v1/subjects?case=INS%201/2024", "", false)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Registry unavailable", body["error"])
}

func TestScans(t *testing.T) {
	app := newTestApp(t, &stubRegistry{})

	status, _ := doRequest(t, app, http.MethodPost, "/api/v1/scans", `{"period":"last7"}`, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/scans", `{"from":"2024-01-01","to":"2024-01-02"}`, true)
	require.Equal(t, http.StatusAccepted, status)
	id := body["data"].(map[string]interface{})["id"].(string)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/scans/"+id, "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["data"].(map[string]interface{})["id"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/scans", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/v1/scans/"+id, "", true)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/scans/not-a-uuid", "", false)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/scans/6f1c1f0e-8d4b-4a1e-9c3e-1b2a3c4d5e6f", "", false)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestScans_InvalidWindow(t *testing.T) {
	app := newTestApp(t, &stubRegistry{})

	status, _ := doRequest(t, app, http.MethodPost, "/api/v1/scans", `{"period":"forever"}`, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/scans", `{"from":"2024-01-05","to":"2024-01-01"}`, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/scans", `{"from":"01.01.2024","to":"2024-01-02"}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWatchlistCRUD(t *testing.T) {
	app := newTestApp(t, &stubRegistry{})
	item := `{"event":{"name":"INS 100/2023","event":"Dražební vyhláška","date":"2024-03-14T09:05:00Z","doc_id":555},"note":"prohlidka"}`

	status, _ := doRequest(t, app, http.MethodPost, "/api/v1/watchlist", item, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/watchlist", item, true)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "prohlidka", body["data"].(map[string]interface{})["note"])

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/watchlist", `{"event":{"name":"INS 1/2023"}}`, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/watchlist", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = doRequest(t, app, http.MethodGet, "/api/v1/watchlist/555", "", false)
	assert.Equal(t, http.StatusOK, status)
	event := body["data"].(map[string]interface{})["event"].(map[string]interface{})
	assert.Equal(t, "INS 100/2023", event["name"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/watchlist/abc", "", false)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/v1/watchlist/555", "", true)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/watchlist/555", "", false)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/v1/watchlist/555", "", true)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDocumentSummaries(t *testing.T) {
	app := newTestApp(t, &stubRegistry{})
	validURL := `{"url":"` + testDocBaseURL + `?idDokument=555","lang":"en"}`

	status, _ := doRequest(t, app, http.MethodGet, "/api/v1/documents/555/summary", "", false)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/documents/555/summary", validURL, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/documents/555/summary", `{"url":"https://example.com/evil.pdf"}`, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/documents/555/summary", validURL, true)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body["error"], "summary unavailable")

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/documents/0/summary", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/v1/documents/555/summary", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = doRequest(t, app, http.MethodDelete, "/api/v1/documents/555/summary", "", true)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Summary cache cleared", body["message"])

	status, _ = doRequest(t, app, http.MethodGet, "/api/v1/documents/555/pdf?url=https://example.com/x.pdf", "", false)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateSummary_RejectsLinkOfAnotherDocument(t *testing.T) {
	app := newTestApp(t, &stubRegistry{})
	item := `{"event":{"name":"INS 100/2023","event":"Dražební vyhláška","date":"2024-03-14T09:05:00Z","doc_id":555,` +
		`"pdf_url":"` + testDocBaseURL + `?idDokument=555"}}`
	status, _ := doRequest(t, app, http.MethodPost, "/api/v1/watchlist", item, true)
	require.Equal(t, http.StatusCreated, status)

	status, body := doRequest(t, app, http.MethodPost, "/api/v1/documents/555/summary",
		`{"url":"`+testDocBaseURL+`?idDokument=777"}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "url does not match the watched document", body["error"])

	status, _ = doRequest(t, app, http.MethodPost, "/api/v1/documents/555/summary",
		`{"url":"`+testDocBaseURL+`?idDokument=555"}`, true)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestGetPDF_ServesEachDocumentVersion(t *testing.T) {
	bodies := map[string]string{
		"1": "%PDF-1.4 first version body..",
		"2": "%PDF-short",
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("idDokument")
		if id == "3" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><title>Dokument nenalezen</title></head></html>`))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(bodies[id]))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	app := newTestAppWithDocuments(t, &stubRegistry{}, dir, upstream.URL)

	get := func(id string) (int, []byte) {
		target := "/api/v1/documents/555/pdf?url=" + url.QueryEscape(upstream.URL+"?idDokument="+id)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, raw
	}

	for _, id := range []string{"1", "2", "1"} {
		status, raw := get(id)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, bodies[id], string(raw))
	}

	status, raw := get("3")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, string(raw), "Preview unavailable: registry served an HTML page: Dokument nenalezen")

	leftovers, err := filepath.Glob(filepath.Join(dir, "view_*.pdf"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRequireAdminToken_EmptyTokenDisablesCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/", RequireAdminToken(""), func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

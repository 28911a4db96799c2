package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/isir-tracker/isir-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePDF = []byte("%PDF-1.4\n" + strings.Repeat("0123456789", 2000) + "\n%%EOF\n")

func newTestFetcher() *DocumentFetcher {
	return NewDocumentFetcher(shared.DocumentConfig{ChunkSize: 1024, Timeout: 5 * time.Second}, nil)
}

func TestDocumentFetcher_DownloadsPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "555", r.URL.Query().Get("idDokument"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(samplePDF)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "doc_555.pdf")
	fetcher := newTestFetcher()

	require.True(t, fetcher.Fetch(context.Background(), srv.URL+"?idDokument=555", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, got)

	snapshot := fetcher.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot["successful_requests"])
}

func TestDocumentFetcher_ReplacesExistingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-new"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(dest, []byte("old content that is longer"), 0o644))

	require.True(t, newTestFetcher().Fetch(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-new", string(got))
}

func TestDocumentFetcher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	fetcher := newTestFetcher()

	assert.False(t, fetcher.Fetch(context.Background(), srv.URL, dest))
	assert.NoFileExists(t, dest)
	assert.Equal(t, int64(1), fetcher.Metrics().Snapshot()["failed_requests"])
}

func TestDocumentFetcher_HTMLErrorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Dokument nenalezen</title></head><body><h1>Chyba</h1></body></html>`))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	fetcher := newTestFetcher()

	err := fetcher.Download(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentUnavailable)
	assert.Contains(t, err.Error(), "Dokument nenalezen")
	assert.NoFileExists(t, dest)
	custom := fetcher.Metrics().Snapshot()["custom_metrics"].(map[string]interface{})
	assert.Equal(t, int64(1), custom["html_error_pages"])
}

func TestDocumentFetcher_SniffsUnlabelledHTML(t *testing.T) {
	cases := map[string][]string{
		"missing header": nil,
		"octet-stream":   {"application/octet-stream"},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header()["Content-Type"] = header
				_, _ = w.Write([]byte(`<!DOCTYPE html><html><body><h1>Session expired</h1></body></html>`))
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "doc.pdf")
			err := newTestFetcher().Download(context.Background(), srv.URL, dest)

			require.Error(t, err)
			assert.Contains(t, err.Error(), "Session expired")
			assert.NoFileExists(t, dest)
		})
	}
}

func TestDocumentFetcher_UnlabelledPDFIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(samplePDF)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, newTestFetcher().Download(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, got)
}

func TestHTMLErrorReason(t *testing.T) {
	assert.Equal(t, "Chyba serveru", htmlErrorReason(strings.NewReader(`<html><head><title> Chyba
		serveru </title></head></html>`)))
	assert.Equal(t, "Not found", htmlErrorReason(strings.NewReader(`<html><body><h1>Not found</h1></body></html>`)))
	assert.Equal(t, "empty HTML page", htmlErrorReason(strings.NewReader(`<html></html>`)))

	long := htmlErrorReason(strings.NewReader("<p>" + strings.Repeat("x", 300) + "</p>"))
	assert.Len(t, []rune(long), 123)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestDocumentFetcher_EmptyURL(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "doc.pdf")
	fetcher := newTestFetcher()

	assert.False(t, fetcher.Fetch(context.Background(), "   ", dest))
	assert.NoFileExists(t, dest)
	assert.Equal(t, int64(0), fetcher.Metrics().Snapshot()["total_requests"])
}

func TestDocumentFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	assert.False(t, newTestFetcher().Fetch(context.Background(), url, filepath.Join(t.TempDir(), "doc.pdf")))
}

func TestIsHTMLContent(t *testing.T) {
	assert.True(t, isHTMLContent("text/html"))
	assert.True(t, isHTMLContent("TEXT/HTML; charset=windows-1250"))
	assert.True(t, isHTMLContent("application/xhtml+xml"))
	assert.False(t, isHTMLContent("application/pdf"))
	assert.False(t, isHTMLContent(""))
}

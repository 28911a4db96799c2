package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

// ErrDocumentUnavailable is wrapped by every Download failure.
var ErrDocumentUnavailable = errors.New("document unavailable")

// DocumentFetcher downloads registry documents to local files. Failures are never retried
// here.
type DocumentFetcher struct {
	httpFactory *shared.HTTPClientFactory
	timeout     time.Duration
	chunkSize   int
	metrics     *shared.ServiceMetrics
	logger      *logrus.Entry
}

// NewDocumentFetcher creates a fetcher. A nil factory builds one from the registry TLS setting.
func NewDocumentFetcher(config shared.DocumentConfig, httpFactory *shared.HTTPClientFactory) *DocumentFetcher {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 8192
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if httpFactory == nil {
		httpFactory = shared.NewHTTPClientFactory(config.Timeout, true)
	}
	return &DocumentFetcher{
		httpFactory: httpFactory,
		timeout:     config.Timeout,
		chunkSize:   config.ChunkSize,
		metrics:     shared.NewServiceMetrics("document_fetcher"),
		logger:      logrus.WithField("component", "DocumentFetcher"),
	}
}

func (f *DocumentFetcher) Metrics() *shared.ServiceMetrics {
	return f.metrics
}

// Fetch streams url into destination, replacing any existing file. It returns false for an
// empty url, a transport error, a non-2xx status or an HTML error page served in place of
// the document.
func (f *DocumentFetcher) Fetch(ctx context.Context, url string, destination string) bool {
	return f.Download(ctx, url, destination) == nil
}

// Download is Fetch with the failure reason. Every error wraps ErrDocumentUnavailable.
func (f *DocumentFetcher) Download(ctx context.Context, url string, destination string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: empty document URL", ErrDocumentUnavailable)
	}
	start := time.Now()
	err := f.fetch(ctx, url, destination)
	f.metrics.RecordRequest(err == nil, time.Since(start))
	if err == nil {
		shared.RecordDocumentFetch("success")
		return nil
	}
	shared.RecordDocumentFetch("failure")
	return fmt.Errorf("%w: %s", ErrDocumentUnavailable, err.Error())
}

// FailureReason strips the ErrDocumentUnavailable prefix from a Download error.
func FailureReason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrDocumentUnavailable.Error()+": ")
}

func (f *DocumentFetcher) fetch(ctx context.Context, url, destination string) error {
	logger := f.logger.WithFields(logrus.Fields{"url": url, "destination": destination})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.WithError(err).Warn("Invalid document URL")
		return errors.New("invalid document URL")
	}
	shared.SetBrowserLikeHeaders(req, "application/pdf,*/*")

	resp, err := f.httpFactory.CreateOptimizedHTTPClient(f.timeout).Do(req)
	if err != nil {
		logger.WithError(err).Warn("Document download failed")
		return errors.New("registry did not respond")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WithField("status", resp.StatusCode).Warn("Document download returned non-2xx status")
		return fmt.Errorf("registry returned HTTP %d", resp.StatusCode)
	}

	body := bufio.NewReaderSize(resp.Body, sniffLen)
	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		reason := htmlErrorReason(body)
		f.metrics.AddCustomCounter("html_error_pages", 1)
		logger.WithField("page_title", reason).Warn("Registry served an HTML page instead of the document")
		return fmt.Errorf("registry served an HTML page: %s", reason)
	}

	if dir := filepath.Dir(destination); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.WithError(err).Warn("Could not create document directory")
			return errors.New("document directory is not writable")
		}
	}

	file, err := os.Create(destination)
	if err != nil {
		logger.WithError(err).Warn("Could not open destination file")
		return errors.New("document file is not writable")
	}

	written, err := copyChunks(file, body, f.chunkSize)
	closeErr := file.Close()
	if err != nil || closeErr != nil {
		if err == nil {
			err = closeErr
		}
		logger.WithError(err).Warn("Document download interrupted")
		_ = os.Remove(destination)
		return errors.New("document download interrupted")
	}

	logger.WithField("bytes", written).Debug("Document downloaded")
	return nil
}

func copyChunks(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

const sniffLen = 512

// looksLikeHTML trusts an HTML Content-Type, and sniffs the body when the header is missing
// or generic.
func looksLikeHTML(contentType string, body *bufio.Reader) bool {
	if isHTMLContent(contentType) {
		return true
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "", "application/octet-stream", "text/plain", "binary/octet-stream":
	default:
		return false
	}
	head, _ := body.Peek(sniffLen)
	return strings.HasPrefix(http.DetectContentType(head), "text/html")
}

func isHTMLContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// htmlErrorReason extracts a short description of an HTML error page: its title, first
// heading or the start of its text.
func htmlErrorReason(body io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, 64*1024))
	if err != nil {
		return "unreadable HTML page"
	}
	for _, selector := range []string{"title", "h1", "h2", "body"} {
		text := strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > 120 {
			text = string(runes[:120]) + "..."
		}
		return text
	}
	return "empty HTML page"
}

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// ErrSummaryUnavailable is returned when no summary can be produced for a document.
var ErrSummaryUnavailable = errors.New("summary unavailable")

var summaryPrompts = map[string]string{
	"cs": "Stručná rešerše: Předmět dražby, Cena, Datum, Rizika. V bodech česky.",
	"en": "Deep analysis: Item, Price, Date, Risks. English.",
}

// SummaryService produces AI summaries of auction documents with the Gemini API.
type SummaryService struct {
	config      shared.SummaryConfig
	fetcher     *DocumentFetcher
	documentDir string
	httpFactory *shared.HTTPClientFactory
	clientMu    sync.Mutex
	client      *genai.Client
	cache       *SummaryCache
	breaker     *shared.ErrorIsolationHandler
	logger      *logrus.Entry
}

func NewSummaryService(config shared.SummaryConfig, documentDir string, fetcher *DocumentFetcher, cache *SummaryCache) *SummaryService {
	return &SummaryService{
		config:      config,
		fetcher:     fetcher,
		documentDir: documentDir,
		httpFactory: shared.NewHTTPClientFactory(config.Timeout, false),
		cache:       cache,
		breaker:     shared.NewErrorIsolationHandler("gemini", 0.5).WithMinSamples(5),
		logger:      logrus.WithField("component", "SummaryService"),
	}
}

// Enabled reports whether an API key is configured.
func (s *SummaryService) Enabled() bool {
	return s.config.APIKey != ""
}

// Cached returns a previously generated summary without calling the API.
func (s *SummaryService) Cached(docID models.SequenceID, lang string) (string, bool) {
	return s.cache.Get(docID, normalizeLanguage(lang))
}

// Forget drops the cached summaries of docID so the next request regenerates them.
func (s *SummaryService) Forget(docID models.SequenceID) {
	s.cache.Forget(docID)
}

// SummarizeURL downloads the document at pdfURL and summarizes it. Results are cached per
// document id and language.
func (s *SummaryService) SummarizeURL(ctx context.Context, docID models.SequenceID, pdfURL, lang string) (string, error) {
	lang = normalizeLanguage(lang)
	if summary, ok := s.cache.Get(docID, lang); ok {
		return summary, nil
	}
	if !s.Enabled() {
		return "", fmt.Errorf("%w: GOOGLE_API_KEY is not configured", ErrSummaryUnavailable)
	}

	path := filepath.Join(s.documentDir, fmt.Sprintf("ai_%d.pdf", docID))
	if !s.fetcher.Fetch(ctx, pdfURL, path) {
		return "", fmt.Errorf("%w: document %d could not be downloaded", ErrSummaryUnavailable, docID)
	}
	return s.Summarize(ctx, docID, path, lang)
}

// Summarize sends the PDF at pdfPath to the model and caches the answer.
func (s *SummaryService) Summarize(ctx context.Context, docID models.SequenceID, pdfPath, lang string) (string, error) {
	lang = normalizeLanguage(lang)
	if summary, ok := s.cache.Get(docID, lang); ok {
		return summary, nil
	}
	if !s.Enabled() {
		return "", fmt.Errorf("%w: GOOGLE_API_KEY is not configured", ErrSummaryUnavailable)
	}

	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}

	var summary string
	err = s.breaker.Execute("generateContent", func() error {
		var callErr error
		summary, callErr = s.generate(ctx, pdf, summaryPrompts[lang])
		return callErr
	})
	if err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("AI summary failed")
		return "", fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}

	s.cache.Set(docID, lang, summary)
	return summary, nil
}

// modelClient returns the Gemini client, creating it on first use.
func (s *SummaryService) modelClient(ctx context.Context) (*genai.Client, error) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     s.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpFactory.CreateOptimizedHTTPClient(s.config.Timeout),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    s.config.Endpoint,
			APIVersion: s.config.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *SummaryService) generate(ctx context.Context, pdf []byte, prompt string) (string, error) {
	start := time.Now()
	client, err := s.modelClient(ctx)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(pdf, "application/pdf"),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, s.config.Model, contents, nil)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 {
			break
		}
	}
	if text.Len() == 0 {
		return "", errors.New("model returned no text")
	}

	s.logger.WithFields(logrus.Fields{
		"model":    s.config.Model,
		"duration": time.Since(start),
		"chars":    text.Len(),
	}).Debug("AI summary generated")
	return strings.TrimSpace(text.String()), nil
}

func normalizeLanguage(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), "en") {
		return "en"
	}
	return "cs"
}

package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

var textReplacer = strings.NewReplacer(
	"–", "-", "—", "-", "“", `"`, "”", `"`, "„", `"`,
	"‘", "'", "’", "'", "•", "*", "…", "...",
	"²", "2", "³", "3", "\u00a0", " ",
)

// CleanText maps typographic punctuation to ASCII and strips diacritics, for plain text
// exports and PDF output that must not depend on font coverage.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	return StripDiacritics(textReplacer.Replace(text))
}

const reportStyles = `
body { font-family: Helvetica, Arial, sans-serif; font-size: 11pt; color: #212529; margin: 24px; }
h1 { font-size: 16pt; margin: 0 0 4px 0; }
.generated { color: #666; font-size: 9pt; margin-bottom: 16px; }
.item { border-left: 6px solid #dc3545; padding: 8px 12px; margin-bottom: 12px; background: #f8f9fa; }
.item h2 { font-size: 12pt; margin: 0; }
.meta { color: #666; font-size: 9pt; }
.summary { white-space: pre-wrap; margin-top: 6px; }
`

var watchlistTemplate = template.Must(template.New("watchlist").Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html lang="cs">
<head><meta charset="utf-8"><title>{{clean .Title}}</title><style>{{.Styles}}</style></head>
<body>
<h1>{{clean .Title}}</h1>
<div class="generated">Vygenerovano: {{date .GeneratedAt}} | Polozek: {{len .Items}}</div>
{{- range .Items}}
<div class="item">
<h2>{{clean .Event.Name}}</h2>
<div>{{clean .Event.Event}}</div>
<div class="meta">Zverejneno: {{date .Event.Date}} | ID: {{.Event.DocID}}{{if .Event.PDFURL}} | <a href="{{deref .Event.PDFURL}}">dokument</a>{{end}}</div>
{{- if .Note}}
<div class="meta">Poznamka: {{clean (deref .Note)}}</div>
{{- end}}
{{- if .Summary}}
<div class="summary">{{clean (deref .Summary)}}</div>
{{- end}}
</div>
{{- else}}
<p>Seznam sledovanych drazeb je prazdny.</p>
{{- end}}
</body>
</html>
`))

var summaryTemplate = template.Must(template.New("summary").Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html lang="cs">
<head><meta charset="utf-8"><title>AI Analyza - {{clean .Event.Name}}</title><style>{{.Styles}}</style></head>
<body>
<h1>AI Analyza - {{clean .Event.Name}}</h1>
<div class="generated">Vygenerovano: {{date .GeneratedAt}}</div>
<div class="item">
<div>{{clean .Event.Event}}</div>
<div class="meta">Zverejneno: {{date .Event.Date}} | ID: {{.Event.DocID}}</div>
<div class="summary">{{clean .Summary}}</div>
</div>
</body>
</html>
`))

var reportFuncs = template.FuncMap{
	"clean": CleanText,
	"date": func(t time.Time) string {
		return t.Format(models.DisplayTimeLayout)
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

// ReportService renders watchlist and summary reports to HTML and prints them to PDF
// with headless Chrome.
type ReportService struct {
	config shared.ReportConfig
	now    func() time.Time
	logger *logrus.Entry
}

func NewReportService(config shared.ReportConfig) *ReportService {
	if config.Timeout <= 0 {
		config.Timeout = 45 * time.Second
	}
	return &ReportService{
		config: config,
		now:    time.Now,
		logger: logrus.WithField("component", "ReportService"),
	}
}

// RenderWatchlistHTML renders the watchlist report.
func (s *ReportService) RenderWatchlistHTML(title string, items []models.WatchlistItem) ([]byte, error) {
	var buf bytes.Buffer
	err := watchlistTemplate.Execute(&buf, struct {
		Title       string
		Styles      template.CSS
		GeneratedAt time.Time
		Items       []models.WatchlistItem
	}{title, template.CSS(reportStyles), s.now(), items})
	if err != nil {
		return nil, fmt.Errorf("render watchlist report: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSummaryHTML renders a single document's AI summary.
func (s *ReportService) RenderSummaryHTML(event models.AuctionEvent, summary string) ([]byte, error) {
	var buf bytes.Buffer
	err := summaryTemplate.Execute(&buf, struct {
		Styles      template.CSS
		GeneratedAt time.Time
		Event       models.AuctionEvent
		Summary     string
	}{template.CSS(reportStyles), s.now(), event, summary})
	if err != nil {
		return nil, fmt.Errorf("render summary report: %w", err)
	}
	return buf.Bytes(), nil
}

// WatchlistPDF renders and prints the watchlist report.
func (s *ReportService) WatchlistPDF(ctx context.Context, title string, items []models.WatchlistItem) ([]byte, error) {
	html, err := s.RenderWatchlistHTML(title, items)
	if err != nil {
		return nil, err
	}
	return s.PrintPDF(ctx, html)
}

// SummaryPDF renders and prints a document summary.
func (s *ReportService) SummaryPDF(ctx context.Context, event models.AuctionEvent, summary string) ([]byte, error) {
	html, err := s.RenderSummaryHTML(event, summary)
	if err != nil {
		return nil, err
	}
	return s.PrintPDF(ctx, html)
}

// PrintPDF loads html into a headless Chrome tab and prints it as an A4 PDF.
func (s *ReportService) PrintPDF(ctx context.Context, html []byte) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
	)
	if s.config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.config.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, s.config.Timeout)
	defer cancelTimeout()

	start := time.Now()
	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		s.logger.WithError(err).Error("PDF rendering failed")
		return nil, fmt.Errorf("print PDF: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"bytes":    len(pdf),
		"duration": time.Since(start),
	}).Debug("PDF rendered")
	return pdf, nil
}

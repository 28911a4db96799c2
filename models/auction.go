package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DisplayTimeLayout is the registry's local date format used in labels and reports.
const DisplayTimeLayout = "02.01.2006 15:04"

// AuctionEvent is a registry record classified as an auction notice inside the scan window.
type AuctionEvent struct {
	Name   string     `json:"name"`
	Event  string     `json:"event"`
	Date   time.Time  `json:"date"`
	DocID  SequenceID `json:"doc_id"`
	PDFURL *string    `json:"pdf_url,omitempty"`
}

// ScanWindow is the closed publication-time range [Start, End] to scan.
type ScanWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the window is well formed.
func (w ScanWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("scan window requires both start and end")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("scan window end %s is before start %s",
			w.End.Format(DisplayTimeLayout), w.Start.Format(DisplayTimeLayout))
	}
	return nil
}

// Contains reports whether t lies inside the closed window.
func (w ScanWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ScanProgress is emitted after every processed batch.
type ScanProgress struct {
	Ratio float64 `json:"ratio"`
	Label string  `json:"label"`
}

// ScanResult is the outcome of a completed scan.
type ScanResult struct {
	ScanID    uuid.UUID      `json:"scan_id"`
	Window    ScanWindow     `json:"window"`
	StartID   SequenceID     `json:"start_id"`
	LastID    SequenceID     `json:"last_id"`
	Processed int            `json:"processed"`
	Batches   int            `json:"batches"`
	Events    []AuctionEvent `json:"events"`
	Duration  time.Duration  `json:"duration"`
}

// Period presets offered to callers.
const (
	PeriodToday  = "today"
	PeriodLast7  = "last7"
	PeriodLast30 = "last30"
	PeriodCustom = "custom"
)

// PresetWindow builds a scan window for a named period relative to now.
// For PeriodCustom the from/to dates are used and the end is extended to the end of that day.
func PresetWindow(period string, now time.Time, from, to time.Time) (ScanWindow, error) {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	endOfDay := func(t time.Time) time.Time {
		return day(t).Add(24*time.Hour - time.Second)
	}
	now = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), 0, time.UTC)

	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodToday, "":
		return ScanWindow{Start: day(now), End: now}, nil
	case PeriodLast7:
		return ScanWindow{Start: day(now).AddDate(0, 0, -7), End: now}, nil
	case PeriodLast30:
		return ScanWindow{Start: day(now).AddDate(0, 0, -30), End: now}, nil
	case PeriodCustom:
		w := ScanWindow{Start: day(from), End: endOfDay(to)}
		if from.IsZero() || to.IsZero() {
			return ScanWindow{}, fmt.Errorf("custom period requires from and to dates")
		}
		return w, w.Validate()
	default:
		return ScanWindow{}, fmt.Errorf("unknown period %q", period)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

// ErrRegistryUnreachable is returned when the scan window could not be located.
var ErrRegistryUnreachable = errors.New("registry unreachable")

// ProgressFunc receives the scan progress after every batch. Ratios never decrease within a scan.
type ProgressFunc func(progress models.ScanProgress)

// RegistryScanner pages forward through the registry collecting auction notices for a window.
// It holds no per-scan state, so one scanner may serve concurrent scans.
type RegistryScanner struct {
	client     RegistryClient
	locator    *WindowLocator
	classifier *AuctionClassifier
	urls       *DocumentURLBuilder
	advance    string
	maxBatches int
	metrics    *shared.ServiceMetrics
	logger     *logrus.Entry
}

// NewRegistryScanner wires a scanner around client using the scanner and registry configuration.
func NewRegistryScanner(client RegistryClient, config *shared.UnifiedConfiguration) *RegistryScanner {
	return &RegistryScanner{
		client:     client,
		locator:    NewWindowLocator(client, config.Scanner),
		classifier: NewAuctionClassifier(config.Scanner.Keywords),
		urls:       NewDocumentURLBuilder(config.Registry.DocumentBaseURL),
		advance:    config.Scanner.CursorAdvance,
		maxBatches: config.Scanner.MaxBatches,
		metrics:    shared.NewServiceMetrics("registry_scanner"),
		logger:     logrus.WithField("component", "RegistryScanner"),
	}
}

// Metrics exposes the scanner's counters.
func (s *RegistryScanner) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Scan collects the auction notices published inside window. On any error the events gathered
// so far are discarded and only the error is returned.
func (s *RegistryScanner) Scan(ctx context.Context, window models.ScanWindow, progress ProgressFunc) (*models.ScanResult, error) {
	started := time.Now()
	window = models.ScanWindow{Start: NormalizeTimestamp(window.Start), End: NormalizeTimestamp(window.End)}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	result, err := s.scan(ctx, window, progress)
	duration := time.Since(started)

	outcome := "success"
	events := 0
	if err != nil {
		outcome = "error"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
	} else {
		result.Duration = duration
		events = len(result.Events)
	}
	shared.RecordScan(outcome, duration, events)
	s.metrics.RecordRequest(err == nil, duration)
	s.metrics.AddCustomCounter("auction_events", int64(events))

	if err != nil {
		s.logger.WithError(err).WithField("duration", duration).Warn("Registry scan aborted")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"scan_id":   result.ScanID,
		"start_id":  result.StartID,
		"last_id":   result.LastID,
		"batches":   result.Batches,
		"processed": result.Processed,
		"events":    len(result.Events),
		"duration":  duration,
	}).Info("Registry scan completed")
	return result, nil
}

func (s *RegistryScanner) scan(ctx context.Context, window models.ScanWindow, progress ProgressFunc) (*models.ScanResult, error) {
	located := s.locator.Locate(ctx, window.Start)
	if located.Failed() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnreachable, located.Cause)
	}

	result := &models.ScanResult{
		ScanID:  uuid.New(),
		Window:  window,
		StartID: located.StartID,
		LastID:  located.LastID,
		Events:  []models.AuctionEvent{},
	}
	s.logger.WithFields(logrus.Fields{
		"scan_id":  result.ScanID,
		"status":   located.Status.String(),
		"start_id": located.StartID,
		"last_id":  located.LastID,
		"probes":   located.Probes,
	}).Info("Scan window located")

	span := uint64(1)
	if located.LastID > located.StartID {
		span = uint64(located.LastID - located.StartID)
	}
	lastRatio := 0.0

	cursor := located.StartID
	for cursor < located.LastID {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.maxBatches > 0 && result.Batches >= s.maxBatches {
			s.logger.WithField("max_batches", s.maxBatches).Warn("Batch limit reached before the registry tip")
			break
		}

		batch, err := s.client.BatchAt(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		result.Batches++

		sort.SliceStable(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

		for _, record := range batch {
			ts := NormalizeTimestamp(record.PublishedAt)
			if ts.After(window.End) {
				return result, nil
			}
			result.Processed++

			if !ts.Before(window.Start) && s.classifier.IsAuctionNotice(record.Description) {
				result.Events = append(result.Events, models.AuctionEvent{
					Name:   record.CaseReference,
					Event:  record.Description,
					Date:   ts,
					DocID:  record.ID,
					PDFURL: s.urls.Derive(record.DocumentURL),
				})
			}
		}

		last := batch[len(batch)-1]
		cursor = s.nextCursor(cursor, last.ID)

		if progress != nil {
			ratio := math.Min(float64(result.Processed)/float64(span), 0.99)
			if ratio < lastRatio {
				ratio = lastRatio
			}
			lastRatio = ratio
			progress(models.ScanProgress{
				Ratio: ratio,
				Label: "scanned up to: " + NormalizeTimestamp(last.PublishedAt).Format(models.DisplayTimeLayout),
			})
		}
	}

	return result, nil
}

// nextCursor advances to the batch's last id ("last") or one past it ("next"). A cursor that
// would not move forward is bumped by one so the scan always terminates.
func (s *RegistryScanner) nextCursor(current, lastInBatch models.SequenceID) models.SequenceID {
	next := lastInBatch
	if s.advance == shared.CursorAdvanceNext {
		next = lastInBatch + 1
	}
	if next <= current {
		next = current + 1
	}
	return next
}

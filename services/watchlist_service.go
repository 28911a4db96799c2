package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/isir-tracker/isir-backend/database"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/sirupsen/logrus"
)

// WatchlistService manages saved auction notices and their reports.
type WatchlistService struct {
	store   database.WatchlistStore
	reports *ReportService
	logger  *logrus.Entry
}

func NewWatchlistService(store database.WatchlistStore, reports *ReportService) *WatchlistService {
	return &WatchlistService{
		store:   store,
		reports: reports,
		logger:  logrus.WithField("component", "WatchlistService"),
	}
}

// Add saves event to the watchlist, replacing an earlier entry for the same document.
func (s *WatchlistService) Add(ctx context.Context, event models.AuctionEvent, note string) (*models.WatchlistItem, error) {
	if event.DocID == 0 {
		return nil, fmt.Errorf("watchlist item requires a document id")
	}
	if strings.TrimSpace(event.Name) == "" {
		return nil, fmt.Errorf("watchlist item requires a case reference")
	}
	item := &models.WatchlistItem{Event: event}
	if note = strings.TrimSpace(note); note != "" {
		item.Note = &note
	}
	if err := s.store.Save(ctx, item); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"doc_id": event.DocID, "case": event.Name}).Info("Added to watchlist")
	return item, nil
}

func (s *WatchlistService) List(ctx context.Context) ([]models.WatchlistItem, error) {
	return s.store.List(ctx)
}

func (s *WatchlistService) Get(ctx context.Context, docID models.SequenceID) (*models.WatchlistItem, error) {
	return s.store.Get(ctx, docID)
}

func (s *WatchlistService) Remove(ctx context.Context, docID models.SequenceID) error {
	return s.store.Delete(ctx, docID)
}

// AttachSummary stores an AI summary on a watched item. Unwatched documents are ignored.
func (s *WatchlistService) AttachSummary(ctx context.Context, docID models.SequenceID, summary string) {
	if err := s.store.UpdateSummary(ctx, docID, summary); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Debug("Summary not attached to watchlist")
	}
}

// ReportPDF prints the whole watchlist.
func (s *WatchlistService) ReportPDF(ctx context.Context) ([]byte, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.reports.WatchlistPDF(ctx, "Sledovane drazby", items)
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/models"
)

var ErrWatchlistItemNotFound = errors.New("watchlist item not found")

// WatchlistStore persists watchlist items keyed by document id.
type WatchlistStore interface {
	Save(ctx context.Context, item *models.WatchlistItem) error
	List(ctx context.Context) ([]models.WatchlistItem, error)
	Get(ctx context.Context, docID models.SequenceID) (*models.WatchlistItem, error)
	Delete(ctx context.Context, docID models.SequenceID) error
	UpdateSummary(ctx context.Context, docID models.SequenceID, summary string) error
}

// PostgresWatchlistStore stores the watchlist in the watchlist_items table.
type PostgresWatchlistStore struct {
	db *sql.DB
}

func NewPostgresWatchlistStore(db *sql.DB) *PostgresWatchlistStore {
	return &PostgresWatchlistStore{db: db}
}

// Save inserts item or, when the document is already watched, updates it in place.
func (s *PostgresWatchlistStore) Save(ctx context.Context, item *models.WatchlistItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := `
		INSERT INTO watchlist_items (id, doc_id, case_reference, event, published_at, pdf_url, note, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (doc_id) DO UPDATE SET
			case_reference = EXCLUDED.case_reference,
			event = EXCLUDED.event,
			published_at = EXCLUDED.published_at,
			pdf_url = EXCLUDED.pdf_url,
			note = COALESCE(EXCLUDED.note, watchlist_items.note),
			summary = COALESCE(EXCLUDED.summary, watchlist_items.summary),
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		item.ID, int64(item.Event.DocID), item.Event.Name, item.Event.Event, item.Event.Date,
		item.Event.PDFURL, item.Note, item.Summary,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save watchlist item %d: %w", item.Event.DocID, err)
	}
	return nil
}

func (s *PostgresWatchlistStore) List(ctx context.Context) ([]models.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, case_reference, event, published_at, pdf_url, note, summary, created_at, updated_at
		FROM watchlist_items
		ORDER BY published_at DESC, doc_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	items := []models.WatchlistItem{}
	for rows.Next() {
		item, err := scanWatchlistItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *PostgresWatchlistStore) Get(ctx context.Context, docID models.SequenceID) (*models.WatchlistItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_id, case_reference, event, published_at, pdf_url, note, summary, created_at, updated_at
		FROM watchlist_items WHERE doc_id = $1`, int64(docID))
	item, err := scanWatchlistItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWatchlistItemNotFound
	}
	return item, err
}

func (s *PostgresWatchlistStore) Delete(ctx context.Context, docID models.SequenceID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchlist_items WHERE doc_id = $1`, int64(docID))
	if err != nil {
		return fmt.Errorf("failed to delete watchlist item %d: %w", docID, err)
	}
	return requireAffected(res)
}

func (s *PostgresWatchlistStore) UpdateSummary(ctx context.Context, docID models.SequenceID, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE watchlist_items SET summary = $2, updated_at = NOW() WHERE doc_id = $1`, int64(docID), summary)
	if err != nil {
		return fmt.Errorf("failed to update summary of %d: %w", docID, err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatchlistItem(row rowScanner) (*models.WatchlistItem, error) {
	var (
		item    models.WatchlistItem
		docID   int64
		pdfURL  sql.NullString
		note    sql.NullString
		summary sql.NullString
	)
	err := row.Scan(&item.ID, &docID, &item.Event.Name, &item.Event.Event, &item.Event.Date,
		&pdfURL, &note, &summary, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Event.DocID = models.SequenceID(docID)
	item.Event.Date = item.Event.Date.UTC()
	item.Event.PDFURL = nullableString(pdfURL)
	item.Note = nullableString(note)
	item.Summary = nullableString(summary)
	return &item, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWatchlistItemNotFound
	}
	return nil
}

// MemoryWatchlistStore keeps the watchlist in process memory when no database is configured.
type MemoryWatchlistStore struct {
	mu    sync.RWMutex
	items map[models.SequenceID]models.WatchlistItem
	now   func() time.Time
}

func NewMemoryWatchlistStore() *MemoryWatchlistStore {
	return &MemoryWatchlistStore{
		items: make(map[models.SequenceID]models.WatchlistItem),
		now:   time.Now,
	}
}

func (s *MemoryWatchlistStore) Save(_ context.Context, item *models.WatchlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.items[item.Event.DocID]; ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
		if item.Note == nil {
			item.Note = existing.Note
		}
		if item.Summary == nil {
			item.Summary = existing.Summary
		}
	} else {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.items[item.Event.DocID] = *item
	return nil
}

func (s *MemoryWatchlistStore) List(_ context.Context) ([]models.WatchlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.WatchlistItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Event.Date.Equal(items[j].Event.Date) {
			return items[i].Event.DocID > items[j].Event.DocID
		}
		return items[i].Event.Date.After(items[j].Event.Date)
	})
	return items, nil
}

func (s *MemoryWatchlistStore) Get(_ context.Context, docID models.SequenceID) (*models.WatchlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[docID]
	if !ok {
		return nil, ErrWatchlistItemNotFound
	}
	return &item, nil
}

func (s *MemoryWatchlistStore) Delete(_ context.Context, docID models.SequenceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[docID]; !ok {
		return ErrWatchlistItemNotFound
	}
	delete(s.items, docID)
	return nil
}

func (s *MemoryWatchlistStore) UpdateSummary(_ context.Context, docID models.SequenceID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[docID]
	if !ok {
		return ErrWatchlistItemNotFound
	}
	item.Summary = &summary
	item.UpdatedAt = s.now()
	s.items[docID] = item
	return nil
}

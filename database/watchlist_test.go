package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watchedEvent(docID models.SequenceID, published time.Time) models.AuctionEvent {
	url := "https://isir.justice.cz/isir/doc/dokument.PDF?idDokument=" + uuid.NewString()
	return models.AuctionEvent{
		Name:   "INS 100/2023",
		Event:  "Dražební vyhláška",
		Date:   published,
		DocID:  docID,
		PDFURL: &url,
	}
}

func TestMemoryWatchlistStore_SaveKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryWatchlistStore()
	clock := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	note := "prohlidka v pondeli"
	first := &models.WatchlistItem{Event: watchedEvent(555, clock), Note: &note}
	require.NoError(t, store.Save(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)

	clock = clock.Add(time.Hour)
	second := &models.WatchlistItem{Event: watchedEvent(555, clock)}
	require.NoError(t, store.Save(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, clock, second.UpdatedAt)
	require.NotNil(t, second.Note)
	assert.Equal(t, note, *second.Note)

	items, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMemoryWatchlistStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryWatchlistStore()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, &models.WatchlistItem{Event: watchedEvent(10, base)}))
	require.NoError(t, store.Save(ctx, &models.WatchlistItem{Event: watchedEvent(30, base.Add(48*time.Hour))}))
	require.NoError(t, store.Save(ctx, &models.WatchlistItem{Event: watchedEvent(20, base)}))

	items, err := store.List(ctx)
	require.NoError(t, err)

	var ids []models.SequenceID
	for _, item := range items {
		ids = append(ids, item.Event.DocID)
	}
	assert.Equal(t, []models.SequenceID{30, 20, 10}, ids)
}

func TestMemoryWatchlistStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryWatchlistStore()

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrWatchlistItemNotFound)
	assert.ErrorIs(t, store.Delete(ctx, 1), ErrWatchlistItemNotFound)
	assert.ErrorIs(t, store.UpdateSummary(ctx, 1, "x"), ErrWatchlistItemNotFound)
}

func TestMemoryWatchlistStore_UpdateSummaryAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryWatchlistStore()
	require.NoError(t, store.Save(ctx, &models.WatchlistItem{Event: watchedEvent(7, time.Now().UTC())}))

	require.NoError(t, store.UpdateSummary(ctx, 7, "Predmet: byt"))
	item, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, item.Summary)
	assert.Equal(t, "Predmet: byt", *item.Summary)

	require.NoError(t, store.Delete(ctx, 7))
	_, err = store.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrWatchlistItemNotFound)
}

func TestParseSQLStatements(t *testing.T) {
	statements := parseSQLStatements(schemaSQL)
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0], "CREATE TABLE IF NOT EXISTS watchlist_items")
	assert.NotContains(t, statements[0], "--")
	assert.Contains(t, statements[1], "CREATE INDEX IF NOT EXISTS idx_watchlist_items_published_at")

	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, parseSQLStatements("-- c\nSELECT 1;\n\nSELECT 2"))
}

func TestPostgresWatchlistStore(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping postgres watchlist tests - TEST_DATABASE_URL not set")
	}

	config := shared.NewDefaultUnifiedConfiguration().Database
	if err := ConnectWithConfig(dbURL, &config); err != nil {
		t.Skipf("Skipping postgres watchlist tests - database not available: %v", err)
	}
	defer Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, Migrate(ctx))
	require.NoError(t, HealthCheck(ctx))

	store := NewPostgresWatchlistStore(DB)
	docID := models.SequenceID(time.Now().UnixNano() % 1_000_000_000)
	defer func() { _ = store.Delete(context.Background(), docID) }()

	published := time.Date(2024, 3, 14, 9, 5, 0, 0, time.UTC)
	note := "prohlidka"
	item := &models.WatchlistItem{Event: watchedEvent(docID, published), Note: &note}
	require.NoError(t, store.Save(ctx, item))
	assert.NotEqual(t, uuid.Nil, item.ID)

	again := &models.WatchlistItem{Event: watchedEvent(docID, published)}
	require.NoError(t, store.Save(ctx, again))
	assert.Equal(t, item.ID, again.ID)

	require.NoError(t, store.UpdateSummary(ctx, docID, "Predmet: byt"))

	got, err := store.Get(ctx, docID)
	require.NoError(t, err)
	assert.True(t, got.Event.Date.Equal(published))
	require.NotNil(t, got.Note)
	assert.Equal(t, note, *got.Note)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "Predmet: byt", *got.Summary)

	require.NoError(t, store.Delete(ctx, docID))
	assert.ErrorIs(t, store.Delete(ctx, docID), ErrWatchlistItemNotFound)
	_, err = store.Get(ctx, docID)
	assert.ErrorIs(t, err, ErrWatchlistItemNotFound)
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/services"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	mu      sync.Mutex
	windows []models.ScanWindow
	scan    func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error)
}

func (f *fakeScanner) Scan(ctx context.Context, window models.ScanWindow, progress services.ProgressFunc) (*models.ScanResult, error) {
	f.mu.Lock()
	f.windows = append(f.windows, window)
	f.mu.Unlock()
	return f.scan(ctx, progress)
}

func testWindow() models.ScanWindow {
	return models.ScanWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC),
	}
}

func waitJob(t *testing.T, m *ScanJobManager, id uuid.UUID) ScanJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func TestScanJobManager_Completed(t *testing.T) {
	scanner := &fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		progress(models.ScanProgress{Ratio: 0.5, Label: "scanned up to: 01.01.2024 12:00"})
		return &models.ScanResult{Processed: 42, Events: []models.AuctionEvent{{Name: "INS 1/2024", DocID: 900}}}, nil
	}}
	m := NewScanJobManager(scanner, time.Hour)

	id, err := m.Start(testWindow())
	require.NoError(t, err)

	job := waitJob(t, m, id)
	assert.Equal(t, ScanStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 42, job.Result.Processed)
	assert.Equal(t, 1.0, job.Progress.Ratio)
	assert.NotNil(t, job.FinishedAt)
	assert.Empty(t, job.Error)
	assert.Len(t, m.List(), 1)
}

func TestScanJobManager_Failed(t *testing.T) {
	scanner := &fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		return nil, shared.NewUpstreamError("getIsirWsPublicPodnetId", 5, errors.New("connection reset"))
	}}
	m := NewScanJobManager(scanner, time.Hour)

	id, err := m.Start(testWindow())
	require.NoError(t, err)

	job := waitJob(t, m, id)
	assert.Equal(t, ScanStatusFailed, job.Status)
	assert.Nil(t, job.Result)
	assert.Contains(t, job.Error, "connection reset")
}

func TestScanJobManager_Cancel(t *testing.T) {
	started := make(chan struct{})
	scanner := &fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m := NewScanJobManager(scanner, time.Hour)

	id, err := m.Start(testWindow())
	require.NoError(t, err)
	<-started

	running, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, ScanStatusRunning, running.Status)

	assert.True(t, m.Cancel(id))
	assert.False(t, m.Cancel(uuid.New()))

	job := waitJob(t, m, id)
	assert.Equal(t, ScanStatusCancelled, job.Status)
}

func TestScanJobManager_RejectsInvalidWindow(t *testing.T) {
	m := NewScanJobManager(&fakeScanner{}, time.Hour)
	w := testWindow()
	w.Start, w.End = w.End, w.Start

	_, err := m.Start(w)
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestScanJobManager_Prune(t *testing.T) {
	scanner := &fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		return &models.ScanResult{}, nil
	}}
	m := NewScanJobManager(scanner, time.Hour)
	clock := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	id, err := m.Start(testWindow())
	require.NoError(t, err)
	waitJob(t, m, id)

	assert.Equal(t, 0, m.Prune())

	m.now = func() time.Time { return clock.Add(2 * time.Hour) }
	assert.Equal(t, 1, m.Prune())
	_, ok := m.Get(id)
	assert.False(t, ok)
}

func TestScanJobManager_WaitUnknown(t *testing.T) {
	m := NewScanJobManager(&fakeScanner{}, time.Hour)
	_, err := m.Wait(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestDailyAuctionScanJob_Window(t *testing.T) {
	job := NewDailyAuctionScanJob(&fakeScanner{})
	job.now = func() time.Time { return time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC) }

	w := job.Window()
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), w.End)
}

func TestDailyAuctionScanJob_Run(t *testing.T) {
	scanner := &fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return &models.ScanResult{Events: []models.AuctionEvent{{Name: "INS 1/2024", Event: "Dražební vyhláška"}}}, nil
	}}
	job := NewDailyAuctionScanJob(scanner)
	job.now = func() time.Time { return time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC) }

	job.Run()

	require.Len(t, scanner.windows, 1)
	assert.Equal(t, job.Window(), scanner.windows[0])

	failing := NewDailyAuctionScanJob(&fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		return nil, errors.New("registry down")
	}})
	assert.NotPanics(t, failing.Run)
}

func TestCacheCleanupJob_Run(t *testing.T) {
	cache := services.NewCacheServiceWithConfig(-time.Second, 10)
	cache.Set("stale", "a")
	cache.Set("older", "b")

	scanner := &fakeScanner{scan: func(ctx context.Context, progress services.ProgressFunc) (*models.ScanResult, error) {
		return &models.ScanResult{}, nil
	}}
	scanJobs := NewScanJobManager(scanner, 0)
	id, err := scanJobs.Start(testWindow())
	require.NoError(t, err)
	waitJob(t, scanJobs, id)
	scanJobs.now = func() time.Time { return time.Now().Add(time.Minute) }

	NewCacheCleanupJob(cache, scanJobs).Run()

	assert.Zero(t, cache.Size())
	assert.Empty(t, scanJobs.List())
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/services"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

// Scanner runs one registry scan.
type Scanner interface {
	Scan(ctx context.Context, window models.ScanWindow, progress services.ProgressFunc) (*models.ScanResult, error)
}

type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// ScanJob is a snapshot of one asynchronous scan.
type ScanJob struct {
	ID         uuid.UUID           `json:"id"`
	Window     models.ScanWindow   `json:"window"`
	Status     ScanStatus          `json:"status"`
	Progress   models.ScanProgress `json:"progress"`
	Result     *models.ScanResult  `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

type scanJobEntry struct {
	job    ScanJob
	cancel context.CancelFunc
	done   chan struct{}
}

// ScanJobManager runs scans in the background and tracks their progress.
type ScanJobManager struct {
	scanner Scanner
	ttl     time.Duration
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*scanJobEntry
	now     func() time.Time
}

func NewScanJobManager(scanner Scanner, ttl time.Duration) *ScanJobManager {
	return &ScanJobManager{
		scanner: scanner,
		ttl:     ttl,
		jobs:    make(map[uuid.UUID]*scanJobEntry),
		now:     time.Now,
	}
}

// Start launches a scan of window and returns its id immediately.
func (m *ScanJobManager) Start(window models.ScanWindow) (uuid.UUID, error) {
	if err := window.Validate(); err != nil {
		return uuid.Nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &scanJobEntry{
		job: ScanJob{
			ID:        uuid.New(),
			Window:    window,
			Status:    ScanStatusRunning,
			StartedAt: m.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[entry.job.ID] = entry
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"job_id": entry.job.ID,
		"start":  window.Start.Format(models.DisplayTimeLayout),
		"end":    window.End.Format(models.DisplayTimeLayout),
	}).Info("Starting background scan")

	go m.run(ctx, entry)
	return entry.job.ID, nil
}

func (m *ScanJobManager) run(ctx context.Context, entry *scanJobEntry) {
	defer close(entry.done)
	defer entry.cancel()

	result, err := m.scanner.Scan(ctx, entry.job.Window, func(p models.ScanProgress) {
		m.mu.Lock()
		entry.job.Progress = p
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	finished := m.now()
	entry.job.FinishedAt = &finished
	switch {
	case err == nil:
		entry.job.Status = ScanStatusCompleted
		entry.job.Result = result
		entry.job.Progress = models.ScanProgress{Ratio: 1, Label: "done"}
	case errors.Is(err, context.Canceled):
		entry.job.Status = ScanStatusCancelled
		entry.job.Error = "scan cancelled"
	default:
		entry.job.Status = ScanStatusFailed
		entry.job.Error = err.Error()
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) {
			serviceErr.LogError()
		}
	}

	logrus.WithFields(logrus.Fields{
		"job_id":   entry.job.ID,
		"status":   entry.job.Status,
		"duration": finished.Sub(entry.job.StartedAt),
	}).Info("Background scan finished")
}

// Get returns a snapshot of the job.
func (m *ScanJobManager) Get(id uuid.UUID) (ScanJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.jobs[id]
	if !ok {
		return ScanJob{}, false
	}
	return entry.job, true
}

// List returns snapshots of all tracked jobs.
func (m *ScanJobManager) List() []ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]ScanJob, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, entry.job)
	}
	return jobs
}

// Cancel stops a running job. It returns false for unknown ids.
func (m *ScanJobManager) Cancel(id uuid.UUID) bool {
	m.mu.RLock()
	entry, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	entry.cancel()
	return true
}

// Wait blocks until the job finishes or ctx is done.
func (m *ScanJobManager) Wait(ctx context.Context, id uuid.UUID) (ScanJob, error) {
	m.mu.RLock()
	entry, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ScanJob{}, errors.New("unknown scan job")
	}

	select {
	case <-entry.done:
		job, _ := m.Get(id)
		return job, nil
	case <-ctx.Done():
		return ScanJob{}, ctx.Err()
	}
}

// Prune removes finished jobs older than the TTL and returns how many were dropped.
func (m *ScanJobManager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, entry := range m.jobs {
		if entry.job.FinishedAt != nil && entry.job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Shutdown cancels every running job.
func (m *ScanJobManager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, entry := range m.jobs {
		entry.cancel()
	}
}

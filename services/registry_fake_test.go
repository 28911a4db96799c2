package services

import (
	"context"
	"sync"
	"time"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
)

// fakeRegistry serves scripted batches. Each id keeps a queue of responses; the last one
// repeats once the queue is drained.
type fakeRegistry struct {
	mu        sync.Mutex
	lastID    models.SequenceID
	lastErr   error
	batches   map[models.SequenceID][][]models.RegistryRecord
	batchErrs map[models.SequenceID]error
	panicAt   map[models.SequenceID]bool
	subjects  []models.SubjectRecord
	calls     []models.SequenceID
}

func newFakeRegistry(lastID models.SequenceID) *fakeRegistry {
	return &fakeRegistry{
		lastID:    lastID,
		batches:   make(map[models.SequenceID][][]models.RegistryRecord),
		batchErrs: make(map[models.SequenceID]error),
		panicAt:   make(map[models.SequenceID]bool),
	}
}

func (f *fakeRegistry) on(id models.SequenceID, records ...models.RegistryRecord) *fakeRegistry {
	f.batches[id] = append(f.batches[id], records)
	return f
}

func (f *fakeRegistry) LatestSequenceID(ctx context.Context) (models.SequenceID, error) {
	if f.lastErr != nil {
		return 0, f.lastErr
	}
	return f.lastID, nil
}

func (f *fakeRegistry) BatchAt(ctx context.Context, id models.SequenceID) ([]models.RegistryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)

	if f.panicAt[id] {
		panic("unexpected response shape")
	}
	if err := f.batchErrs[id]; err != nil {
		return nil, err
	}
	queue := f.batches[id]
	if len(queue) == 0 {
		return nil, nil
	}
	batch := queue[0]
	if len(queue) > 1 {
		f.batches[id] = queue[1:]
	}
	return append([]models.RegistryRecord(nil), batch...), nil
}

func (f *fakeRegistry) SubjectByCaseKey(ctx context.Context, key models.CaseKey) ([]models.SubjectRecord, error) {
	return f.subjects, nil
}

func (f *fakeRegistry) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func record(id models.SequenceID, published time.Time, description string) models.RegistryRecord {
	return models.RegistryRecord{
		ID:            id,
		PublishedAt:   published,
		Description:   description,
		CaseReference: "INS 100/2023",
	}
}

func day(year int, month time.Month, d, hour int) time.Time {
	return time.Date(year, month, d, hour, 0, 0, 0, time.UTC)
}

func scannerConfig(stride uint64) *shared.UnifiedConfiguration {
	cfg := shared.NewDefaultUnifiedConfiguration()
	cfg.Scanner.ProbeStride = stride
	return cfg
}

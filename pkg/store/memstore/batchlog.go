package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

// BatchLogStore implements store.BatchLogStore
type BatchLogStore struct {
	store *Store
}

func (b *BatchLogStore) Create(ctx context.Context, batch *models.BatchLog) error {
	st := b.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("CreateBatch"); err != nil {
		return err
	}
	if _, exists := st.batches[batch.ID]; exists {
		return models.Conflict("batch %s already exists", batch.ID)
	}

	ts := now()
	if batch.Status == "" {
		batch.Status = models.BatchStatusPending
	}
	if batch.ErrorReport.Data == nil {
		batch.ErrorReport = database.NewJSONB([]models.BatchError{})
	}
	batch.CreatedAt = ts
	batch.UpdatedAt = ts
	st.batches[batch.ID] = cloneBatch(*batch)
	return nil
}

func (b *BatchLogStore) Get(ctx context.Context, ownerID, id string) (*models.BatchLog, error) {
	st := b.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	batch, ok := st.batches[id]
	if !ok || batch.OwnerID != ownerID {
		return nil, models.NotFound("batch %s not found", id)
	}
	batch = cloneBatch(batch)
	return &batch, nil
}

func (b *BatchLogStore) List(ctx context.Context, ownerID string, filter models.BatchFilter) ([]models.BatchLog, int, error) {
	st := b.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	matched := []models.BatchLog{}
	for _, batch := range st.batches {
		if batch.OwnerID != ownerID {
			continue
		}
		if filter.Status != nil && batch.Status != *filter.Status {
			continue
		}
		matched = append(matched, cloneBatch(batch))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return []models.BatchLog{}, total, nil
	}
	end := min(start+pageSize, total)
	return matched[start:end], total, nil
}

func (b *BatchLogStore) Finalize(ctx context.Context, ownerID, id string, outcome models.BatchOutcome) error {
	st := b.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("Finalize"); err != nil {
		return err
	}
	batch, ok := st.batches[id]
	if !ok || batch.OwnerID != ownerID {
		return models.NotFound("batch %s not found", id)
	}
	if !batch.Status.CanTransitionTo(outcome.Status) || batch.Status != models.BatchStatusPending {
		return models.Conflict("batch %s cannot move from %s to %s", id, batch.Status, outcome.Status)
	}

	ts := now()
	report := outcome.ErrorReport
	if report == nil {
		report = []models.BatchError{}
	}
	batch.Status = outcome.Status
	batch.TotalRecords = outcome.TotalRecords
	batch.ProcessedRecords = outcome.ProcessedRecords
	batch.ErrorRecords = outcome.ErrorRecords
	batch.DuplicateWarnings = outcome.DuplicateWarnings
	batch.ErrorReport = database.NewJSONB(append([]models.BatchError{}, report...))
	batch.CompletedAt = &ts
	batch.UpdatedAt = ts
	st.batches[id] = batch
	return nil
}

func (b *BatchLogStore) MarkRolledBack(ctx context.Context, ownerID, id, rolledBackBy string, at time.Time) error {
	st := b.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("MarkRolledBack"); err != nil {
		return err
	}
	batch, ok := st.batches[id]
	if !ok || batch.OwnerID != ownerID {
		return models.NotFound("batch %s not found", id)
	}
	if !batch.Status.CanTransitionTo(models.BatchStatusRolledBack) {
		return models.Conflict("batch %s cannot be rolled back from %s", id, batch.Status)
	}

	by := rolledBackBy
	batch.Status = models.BatchStatusRolledBack
	batch.RolledBackAt = &at
	batch.RolledBackBy = &by
	batch.UpdatedAt = now()
	st.batches[id] = batch
	return nil
}

func (b *BatchLogStore) AppendError(ctx context.Context, ownerID, id string, entry models.BatchError) error {
	st := b.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	batch, ok := st.batches[id]
	if !ok || batch.OwnerID != ownerID {
		return models.NotFound("batch %s not found", id)
	}

	report := append(batch.ErrorReport.GetValue(), entry)
	batch.ErrorReport = database.NewJSONB(report)
	batch.UpdatedAt = now()
	st.batches[id] = batch
	return nil
}

// Package batch owns the lifecycle of an upload: pending until processed, then processed, error or
// cancelled, and finally rolled_back when an operator discards it.
package batch

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Manager drives batch status transitions
type Manager struct {
	batches store.BatchLogStore
	staging store.StagingStore
	tx      store.Transactor
	emitter *audit.Emitter
	logger  ectologger.Logger
}

// NewManager creates a new batch lifecycle manager
func NewManager(batches store.BatchLogStore, staging store.StagingStore, tx store.Transactor, emitter *audit.Emitter, logger ectologger.Logger) *Manager {
	if emitter == nil {
		emitter = audit.NewEmitter(nil, logger)
	}
	return &Manager{
		batches: batches,
		staging: staging,
		tx:      tx,
		emitter: emitter,
		logger:  logger,
	}
}

// Create opens a pending batch
func (m *Manager) Create(ctx context.Context, ownerID, name, createdBy string) (*models.BatchLog, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Manager.Create")
	defer span.End()

	if ownerID == "" {
		return nil, models.ValidationFailed("owner_id is required")
	}
	if name == "" {
		name = "Batch " + time.Now().UTC().Format(time.RFC3339)
	}
	if createdBy == "" {
		createdBy = ownerID
	}

	batch := &models.BatchLog{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedBy: createdBy,
		Status:    models.BatchStatusPending,
	}

	if err := m.batches.Create(ctx, batch); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"owner_id": ownerID,
			"name":     name,
		}).Error("Failed to create batch")
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batch.ID,
		"owner_id": ownerID,
	}).Info("Created batch")

	m.emitter.BatchCreated(ctx, batch)
	return batch, nil
}

// Finalize writes the batch's counters and final status. It is the only write of the counters.
func (m *Manager) Finalize(ctx context.Context, ownerID, id string, outcome models.BatchOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "batch.Manager.Finalize")
	defer span.End()

	if !models.BatchStatusPending.CanTransitionTo(outcome.Status) {
		return models.ValidationFailed("%s is not a final batch status", outcome.Status)
	}

	if err := m.batches.Finalize(ctx, ownerID, id, outcome); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": id,
			"status":   outcome.Status,
		}).Error("Failed to finalize batch")
		return err
	}

	metrics.BatchesTotal.WithLabelValues(string(outcome.Status)).Inc()

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":           id,
		"status":             outcome.Status,
		"total_records":      outcome.TotalRecords,
		"processed_records":  outcome.ProcessedRecords,
		"error_records":      outcome.ErrorRecords,
		"duplicate_warnings": outcome.DuplicateWarnings,
	}).Info("Finalized batch")

	m.emitter.BatchProcessed(ctx, ownerID, id, outcome)
	return nil
}

// Fail marks the batch error with whatever partial counts were gathered
func (m *Manager) Fail(ctx context.Context, ownerID, id string, outcome models.BatchOutcome) error {
	outcome.Status = models.BatchStatusError
	return m.Finalize(ctx, ownerID, id, outcome)
}

// Cancel marks the batch cancelled with whatever partial counts were gathered
func (m *Manager) Cancel(ctx context.Context, ownerID, id string, outcome models.BatchOutcome) error {
	outcome.Status = models.BatchStatusCancelled
	return m.Finalize(ctx, ownerID, id, outcome)
}

// Rollback deletes every staged row of the batch and marks it rolled_back in one unit of work.
// A failed rollback leaves the batch in its previous status with a rollback_failed report entry.
func (m *Manager) Rollback(ctx context.Context, ownerID, id, rolledBackBy string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Manager.Rollback")
	defer span.End()

	batch, err := m.batches.Get(ctx, ownerID, id)
	if err != nil {
		return 0, err
	}

	switch batch.Status {
	case models.BatchStatusPending:
		metrics.RollbacksTotal.WithLabelValues("rejected").Inc()
		return 0, models.Conflict("batch %s is still processing", id)
	case models.BatchStatusRolledBack:
		metrics.RollbacksTotal.WithLabelValues("rejected").Inc()
		return 0, models.Conflict("batch %s is already rolled back", id)
	}

	if rolledBackBy == "" {
		rolledBackBy = ownerID
	}

	deleted := 0
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := m.staging.DeleteByBatch(ctx, ownerID, id)
		if err != nil {
			return err
		}
		deleted = n
		return m.batches.MarkRolledBack(ctx, ownerID, id, rolledBackBy, time.Now().UTC())
	})
	if models.KindOf(err) == models.ErrorKindConflict {
		metrics.RollbacksTotal.WithLabelValues("rejected").Inc()
		return 0, err
	}
	if err != nil {
		metrics.RollbacksTotal.WithLabelValues("failed").Inc()
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": id,
			"owner_id": ownerID,
		}).Error("Failed to roll back batch")

		entry := models.BatchError{Kind: models.BatchErrorKindRollback, Message: err.Error()}
		if appendErr := m.batches.AppendError(context.WithoutCancel(ctx), ownerID, id, entry); appendErr != nil {
			m.logger.WithContext(ctx).WithError(appendErr).WithFields(map[string]any{
				"batch_id": id,
			}).Error("Failed to record rollback failure")
		}
		return 0, &models.RollbackError{BatchID: id, Cause: err}
	}

	metrics.RollbacksTotal.WithLabelValues("success").Inc()
	m.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":              id,
		"staging_nodes_deleted": deleted,
		"rolled_back_by":        rolledBackBy,
	}).Info("Rolled back batch")

	m.emitter.BatchRolledBack(ctx, ownerID, id, deleted)
	return deleted, nil
}

func (m *Manager) Get(ctx context.Context, ownerID, id string) (*models.BatchLog, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Manager.Get")
	defer span.End()

	return m.batches.Get(ctx, ownerID, id)
}

func (m *Manager) List(ctx context.Context, ownerID string, filter models.BatchFilter) ([]models.BatchLog, int, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Manager.List")
	defer span.End()

	return m.batches.List(ctx, ownerID, filter)
}

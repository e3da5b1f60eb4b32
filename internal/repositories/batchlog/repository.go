package batchlog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "owner_id", "name", "created_by", "status", "total_records", "processed_records", "error_records",
	"duplicate_warnings", "error_report", "created_at", "updated_at", "completed_at", "rolled_back_at", "rolled_back_by",
}

var _ store.BatchLogStore = (*Repository)(nil)

// Repository handles batch log persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new batch log repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a batch log in pending state
func (r *Repository) Create(ctx context.Context, batch *models.BatchLog) error {
	ctx, span := tracing.StartSpan(ctx, "batchlog.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if batch.Status == "" {
		batch.Status = models.BatchStatusPending
	}
	if batch.ErrorReport.Data == nil {
		batch.ErrorReport = database.NewJSONB([]models.BatchError{})
	}
	batch.CreatedAt = now
	batch.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("batch_logs")
	ib.Cols(columns...)
	ib.Values(
		batch.ID, batch.OwnerID, batch.Name, batch.CreatedBy, batch.Status, batch.TotalRecords, batch.ProcessedRecords,
		batch.ErrorRecords, batch.DuplicateWarnings, batch.ErrorReport, batch.CreatedAt, batch.UpdatedAt,
		batch.CompletedAt, batch.RolledBackAt, batch.RolledBackBy,
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": batch.ID, "owner_id": batch.OwnerID}).Error("Failed to create batch log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create batch log")
	}

	return nil
}

// Get retrieves a batch log by ID
func (r *Repository) Get(ctx context.Context, ownerID, id string) (*models.BatchLog, error) {
	ctx, span := tracing.StartSpan(ctx, "batchlog.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("batch_logs")
	sb.Where(sb.Equal("id", id), sb.Equal("owner_id", ownerID))

	query, args := sb.Build()
	var batch models.BatchLog
	if err := database.Conn(ctx, r.db).GetContext(ctx, &batch, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "batch %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "owner_id": ownerID}).Error("Failed to get batch log")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch log")
	}

	return &batch, nil
}

// List retrieves batch logs newest first with filtering and pagination
func (r *Repository) List(ctx context.Context, ownerID string, filter models.BatchFilter) ([]models.BatchLog, int, error) {
	ctx, span := tracing.StartSpan(ctx, "batchlog.Repository.List")
	defer span.End()

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("batch_logs")
	countWhere := []string{countSb.Equal("owner_id", ownerID)}
	if filter.Status != nil {
		countWhere = append(countWhere, countSb.Equal("status", *filter.Status))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID, "page": page, "page_size": pageSize}).Error("Failed to count batch logs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count batch logs")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("batch_logs")
	where := []string{sb.Equal("owner_id", ownerID)}
	if filter.Status != nil {
		where = append(where, sb.Equal("status", *filter.Status))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(pageSize)
	sb.Offset(offset)

	query, args := sb.Build()
	batches := []models.BatchLog{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &batches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID, "page": page, "page_size": pageSize}).Error("Failed to list batch logs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list batch logs")
	}

	return batches, total, nil
}

// Finalize writes the outcome of a pending batch exactly once
func (r *Repository) Finalize(ctx context.Context, ownerID, id string, outcome models.BatchOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "batchlog.Repository.Finalize")
	defer span.End()

	report := outcome.ErrorReport
	if report == nil {
		report = []models.BatchError{}
	}

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("batch_logs")
	ub.Set(
		ub.Assign("status", outcome.Status),
		ub.Assign("total_records", outcome.TotalRecords),
		ub.Assign("processed_records", outcome.ProcessedRecords),
		ub.Assign("error_records", outcome.ErrorRecords),
		ub.Assign("duplicate_warnings", outcome.DuplicateWarnings),
		ub.Assign("error_report", database.NewJSONB(report)),
		ub.Assign("completed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("owner_id", ownerID), ub.Equal("status", models.BatchStatusPending))

	return r.transition(ctx, ub, ownerID, id, string(outcome.Status))
}

// MarkRolledBack moves a finished batch to rolled_back
func (r *Repository) MarkRolledBack(ctx context.Context, ownerID, id, rolledBackBy string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "batchlog.Repository.MarkRolledBack")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("batch_logs")
	ub.Set(
		ub.Assign("status", models.BatchStatusRolledBack),
		ub.Assign("rolled_back_at", at),
		ub.Assign("rolled_back_by", rolledBackBy),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("owner_id", ownerID),
		ub.In("status", models.BatchStatusProcessed, models.BatchStatusError, models.BatchStatusCancelled),
	)

	return r.transition(ctx, ub, ownerID, id, string(models.BatchStatusRolledBack))
}

// AppendError adds an entry to the batch's error report
func (r *Repository) AppendError(ctx context.Context, ownerID, id string, entry models.BatchError) error {
	ctx, span := tracing.StartSpan(ctx, "batchlog.Repository.AppendError")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("batch_logs")
	ub.Set(
		fmt.Sprintf("error_report = error_report || %s::jsonb", ub.Var(database.NewJSONB([]models.BatchError{entry}))),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("owner_id", ownerID))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "kind": entry.Kind}).Error("Failed to append batch error")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append batch error")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "batch %s not found", id)
	}

	return nil
}

// transition runs a guarded status update and explains a miss as not found or conflict
func (r *Repository) transition(ctx context.Context, ub *sqlbuilder.UpdateBuilder, ownerID, id, target string) error {
	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "target_status": target}).Error("Failed to update batch status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update batch status")
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		current, err := r.Get(ctx, ownerID, id)
		if err != nil {
			return err
		}
		return httperror.NewHTTPErrorf(http.StatusConflict, "batch %s cannot move from %s to %s", id, current.Status, target)
	}

	return nil
}

// Package intake is the service boundary of the upload pipeline: CSV in, staged rows with ranked
// duplicate candidates out, then reviewer decisions and batch rollback.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/batch"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/csvparse"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/decisions"
	"github.com/Ramsey-B/fern/pkg/fanout"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/sanitizer"
	"github.com/Ramsey-B/fern/pkg/search"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type Config struct {
	// Concurrency bounds the rows analyzed at once
	Concurrency  int
	BatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:  fanout.DefaultConcurrency,
		BatchTimeout: 5 * time.Minute,
	}
}

// ProcessBatchResult summarizes one upload
type ProcessBatchResult struct {
	BatchID           string                      `json:"batch_id"`
	Status            models.BatchStatus          `json:"status"`
	TotalRows         int                         `json:"total_rows"`
	ValidRows         int                         `json:"valid_rows"`
	InvalidRows       int                         `json:"invalid_rows"`
	StagingNodes      []models.StagingNode        `json:"staging_nodes"`
	ValidationErrors  []models.RowValidationError `json:"validation_errors"`
	DuplicateWarnings int                         `json:"duplicate_warnings"`
	// Warnings carries per-row duplicate lookup failures
	Warnings []string `json:"warnings,omitempty"`
}

type RollbackResult struct {
	Success             bool `json:"success"`
	StagingNodesDeleted int  `json:"staging_nodes_deleted"`
}

type BatchList struct {
	Batches  []models.BatchLog `json:"batches"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type Service struct {
	registry  store.Registry
	staging   store.StagingStore
	batches   *batch.Manager
	decisions *decisions.Processor
	engine    *matching.Engine
	validator *validation.Validator
	logger    ectologger.Logger
	config    Config
}

func NewService(
	registry store.Registry,
	staging store.StagingStore,
	batches *batch.Manager,
	processor *decisions.Processor,
	engine *matching.Engine,
	logger ectologger.Logger,
	config Config,
) *Service {
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultConfig().BatchTimeout
	}
	return &Service{
		registry:  registry,
		staging:   staging,
		batches:   batches,
		decisions: processor,
		engine:    engine,
		validator: validation.New(),
		logger:    logger,
		config:    config,
	}
}

// stagedRow is the per-row product of the analysis fan-out
type stagedRow struct {
	node   models.StagingNode
	result models.DeduplicationResult
}

// ProcessBatch parses, validates, sanitizes and analyzes an upload, staging every valid row under a
// new batch. The batch always leaves pending: processed on success, error on a parse failure or
// timeout, cancelled when the caller goes away. Rows analyzed before an interruption are still staged.
func (s *Service) ProcessBatch(ctx context.Context, csvText, batchName, ownerID string) (*ProcessBatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.ProcessBatch")
	defer span.End()

	started := time.Now()
	b, err := s.batches.Create(ctx, ownerID, batchName, appctx.Actor(ctx))
	if err != nil {
		return nil, err
	}
	ctx = appctx.SetBatchID(ctx, b.ID)
	// the final bookkeeping must land even when the caller is gone
	finalCtx := context.WithoutCancel(ctx)

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": b.ID,
		"owner_id": ownerID,
	})

	parsed, err := csvparse.Parse(csvText)
	if err != nil {
		var parseErr *models.ParseError
		if errors.As(err, &parseErr) {
			parseErr.BatchID = b.ID
		}
		tracing.RecordError(span, err)
		log.WithError(err).Warn("Rejected upload")
		s.finish(finalCtx, ownerID, b.ID, started, models.BatchOutcome{
			Status:      models.BatchStatusError,
			ErrorReport: []models.BatchError{{Kind: models.BatchErrorKindParse, Message: err.Error()}},
		})
		return nil, err
	}

	result := &ProcessBatchResult{
		BatchID:          b.ID,
		TotalRows:        len(parsed.Rows),
		StagingNodes:     []models.StagingNode{},
		ValidationErrors: []models.RowValidationError{},
	}
	report := []models.BatchError{}

	if len(parsed.Skipped) > 0 {
		log.WithFields(map[string]any{"lines": parsed.Skipped}).Debug("Skipped lines that do not match the header")
		metrics.RowsTotal.WithLabelValues("malformed").Add(float64(len(parsed.Skipped)))
	}

	valid, violations := s.validator.ValidateRows(parsed.Rows)
	result.ValidationErrors = append(result.ValidationErrors, violations...)
	for _, v := range violations {
		report = append(report, models.BatchError{Kind: models.BatchErrorKindValidation, Row: v.Row, Field: v.Field, Message: v.Message, Value: v.Value})
	}
	result.InvalidRows = result.TotalRows - len(valid)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.BatchTimeout)
	defer cancel()

	snapshot, lookupErr := s.registry.Snapshot(jobCtx, ownerID)
	if lookupErr != nil {
		log.WithError(lookupErr).Error("Failed to read registry snapshot, flagging every row")
		report = append(report, models.BatchError{Kind: models.BatchErrorKindDuplicateCheck, Message: lookupErr.Error()})
	}

	analyzed := fanout.Run(jobCtx, s.config.Concurrency, valid, func(ctx context.Context, _ int, row csvparse.Row) (stagedRow, error) {
		return s.analyzeRow(ctx, b, row, snapshot, lookupErr), nil
	})

	nodes := make([]models.StagingNode, 0, len(valid))
	for i, done := range analyzed.Completed {
		if !done {
			continue
		}
		staged := analyzed.Values[i]
		nodes = append(nodes, staged.node)
		if staged.result.HasDuplicates || staged.result.LookupFailed {
			result.DuplicateWarnings++
		}
		if staged.result.LookupFailed {
			metrics.DuplicateFlagsTotal.WithLabelValues("lookup_failed").Inc()
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", staged.result.RowNumber, staged.result.Warning))
		} else if staged.result.HasDuplicates {
			metrics.DuplicateFlagsTotal.WithLabelValues("potential_duplicate").Inc()
		}
	}

	status := models.BatchStatusProcessed
	if len(valid) == 0 {
		status = models.BatchStatusError
		report = append(report, models.BatchError{Kind: models.BatchErrorKindValidation, Message: "upload contains no valid rows"})
	}
	if analyzed.Interrupted {
		status = models.BatchStatusError
		kind := models.BatchErrorKindTimeout
		if ctx.Err() != nil {
			status = models.BatchStatusCancelled
			kind = models.BatchErrorKindCancelled
		}
		report = append(report, models.BatchError{
			Kind:    kind,
			Message: fmt.Sprintf("processing stopped after %d of %d valid rows: %v", len(nodes), len(valid), jobCtx.Err()),
		})
	}

	if len(nodes) > 0 {
		if err := s.staging.CreateMany(finalCtx, nodes); err != nil {
			tracing.RecordError(span, err)
			log.WithError(err).Error("Failed to stage rows")
			s.finish(finalCtx, ownerID, b.ID, started, models.BatchOutcome{
				Status:       models.BatchStatusError,
				TotalRecords: result.TotalRows,
				ErrorRecords: result.InvalidRows,
				ErrorReport:  append(report, models.BatchError{Kind: models.BatchErrorKindStaging, Message: err.Error()}),
			})
			return nil, fmt.Errorf("failed to stage rows of batch %s: %w", b.ID, err)
		}
	}

	result.Status = status
	result.ValidRows = len(valid)
	result.StagingNodes = nodes

	metrics.RowsTotal.WithLabelValues("staged").Add(float64(len(nodes)))
	metrics.RowsTotal.WithLabelValues("invalid").Add(float64(result.InvalidRows))
	metrics.RowsTotal.WithLabelValues("skipped").Add(float64(len(valid) - len(nodes)))

	s.finish(finalCtx, ownerID, b.ID, started, models.BatchOutcome{
		Status:            status,
		TotalRecords:      result.TotalRows,
		ProcessedRecords:  len(nodes),
		ErrorRecords:      result.InvalidRows,
		DuplicateWarnings: result.DuplicateWarnings,
		ErrorReport:       report,
	})

	return result, nil
}

// finish writes the batch outcome. A failure here is logged; the batch stays pending for an operator.
func (s *Service) finish(ctx context.Context, ownerID, batchID string, started time.Time, outcome models.BatchOutcome) {
	metrics.BatchDuration.WithLabelValues(string(outcome.Status)).Observe(time.Since(started).Seconds())
	if err := s.batches.Finalize(ctx, ownerID, batchID, outcome); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batchID,
			"status":   outcome.Status,
		}).Error("Failed to record batch outcome")
	}
}

func (s *Service) analyzeRow(ctx context.Context, b *models.BatchLog, row csvparse.Row, snapshot *models.RegistrySnapshot, lookupErr error) stagedRow {
	sanitized := sanitizer.SanitizeRow(row)
	id := uuid.New().String()

	var result models.DeduplicationResult
	if lookupErr != nil {
		result = s.engine.LookupFailed(id, sanitized.RowNumber, lookupErr)
	} else {
		result = s.engine.Analyze(ctx, id, sanitized, snapshot)
	}

	duplicateCheck := models.DuplicateCheckOK
	if result.LookupFailed {
		duplicateCheck = models.DuplicateCheckLookupFailed
	}

	refs := make(pq.StringArray, len(result.Matches))
	for i, m := range result.Matches {
		refs[i] = m.Target.Ref()
	}

	protocols := make(pq.StringArray, len(sanitized.Protocols))
	for i, p := range sanitized.Protocols {
		protocols[i] = string(p)
	}
	dataTypes := make(pq.StringArray, len(sanitized.DataTypes))
	for i, d := range sanitized.DataTypes {
		dataTypes[i] = string(d)
	}

	return stagedRow{
		result: result,
		node: models.StagingNode{
			ID:                  id,
			BatchID:             b.ID,
			OwnerID:             b.OwnerID,
			RowNumber:           sanitized.RowNumber,
			NodeName:            sanitized.NodeName,
			EntityName:          sanitized.EntityName,
			Website:             sanitized.Website,
			Category:            sanitized.Category,
			Direction:           sanitized.Direction,
			ConnectTargets:      pq.StringArray(sanitized.ConnectTargets),
			Protocols:           protocols,
			DataTypes:           dataTypes,
			Notes:               sanitized.Notes,
			Tags:                pq.StringArray(sanitized.Tags),
			RawData:             database.NewJSONB(sanitized.Raw),
			ConfidenceScore:     sanitizer.ConfidenceScore(sanitized, result.HasDuplicates),
			PotentialDuplicates: refs,
			DuplicateCheck:      duplicateCheck,
			Fingerprint:         fingerprint.ForRow(sanitized),
			Status:              models.StagingStatusPending,
		},
	}
}

// AnalyzeDeduplication ranks registry candidates for every undecided row of a batch against the
// current registry
func (s *Service) AnalyzeDeduplication(ctx context.Context, batchID, ownerID string) ([]models.DeduplicationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.AnalyzeDeduplication")
	defer span.End()

	if _, err := s.batches.Get(ctx, ownerID, batchID); err != nil {
		return nil, err
	}

	nodes, err := s.staging.ListByBatch(ctx, ownerID, batchID)
	if err != nil {
		return nil, err
	}

	pending := make([]models.StagingNode, 0, len(nodes))
	for _, n := range nodes {
		if !n.Status.IsDecided() {
			pending = append(pending, n)
		}
	}

	snapshot, lookupErr := s.registry.Snapshot(ctx, ownerID)
	if lookupErr != nil {
		s.logger.WithContext(ctx).WithError(lookupErr).WithFields(map[string]any{
			"batch_id": batchID,
		}).Error("Failed to read registry snapshot, flagging every row")
	}

	analyzed := fanout.Run(ctx, s.config.Concurrency, pending, func(ctx context.Context, _ int, n models.StagingNode) (models.DeduplicationResult, error) {
		if lookupErr != nil {
			return s.engine.LookupFailed(n.ID, n.RowNumber, lookupErr), nil
		}
		return s.engine.Analyze(ctx, n.ID, n.Row(), snapshot), nil
	})
	if analyzed.Interrupted {
		return nil, ctx.Err()
	}

	return analyzed.Values, nil
}

// ApplyDecisions commits reviewer decisions. Failures are reported per staging node.
func (s *Service) ApplyDecisions(ctx context.Context, decisionList []models.Decision, ownerID string) (*decisions.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.ApplyDecisions")
	defer span.End()

	if ownerID == "" {
		return nil, models.ValidationFailed("owner_id is required")
	}
	return s.decisions.Apply(ctx, ownerID, decisionList), nil
}

// RollbackBatch discards every staged row of a batch
func (s *Service) RollbackBatch(ctx context.Context, batchID, ownerID string) (*RollbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.RollbackBatch")
	defer span.End()

	deleted, err := s.batches.Rollback(ctx, ownerID, batchID, appctx.Actor(ctx))
	if err != nil {
		return nil, err
	}
	return &RollbackResult{Success: true, StagingNodesDeleted: deleted}, nil
}

func (s *Service) GetBatchStatus(ctx context.Context, batchID, ownerID string) (*models.BatchLog, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.GetBatchStatus")
	defer span.End()

	return s.batches.Get(ctx, ownerID, batchID)
}

func (s *Service) ListBatches(ctx context.Context, ownerID string, filter models.BatchFilter) (*BatchList, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.ListBatches")
	defer span.End()

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	batches, total, err := s.batches.List(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	return &BatchList{Batches: batches, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (s *Service) ListStagingNodes(ctx context.Context, batchID, ownerID string) ([]models.StagingNode, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.ListStagingNodes")
	defer span.End()

	if _, err := s.batches.Get(ctx, ownerID, batchID); err != nil {
		return nil, err
	}
	return s.staging.ListByBatch(ctx, ownerID, batchID)
}

// SearchRegistry fuzzy-matches query against the owner's committed registry
func (s *Service) SearchRegistry(ctx context.Context, ownerID, query string, limit int) ([]search.Hit, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.SearchRegistry")
	defer span.End()

	snapshot, err := s.registry.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return search.Registry(snapshot, query, limit), nil
}

package stagingnode

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "batch_id", "owner_id", "row_number", "node_name", "entity_name", "website", "category", "direction",
	"connect_targets", "protocols", "data_types", "notes", "tags", "raw_data", "confidence_score",
	"potential_duplicates", "duplicate_check", "fingerprint", "status", "decided_by", "decided_at",
	"committed_entity_id", "committed_node_id", "created_at", "updated_at",
}

var _ store.StagingStore = (*Repository)(nil)

// Repository handles staging node persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging node repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateMany inserts all nodes in a single statement
func (r *Repository) CreateMany(ctx context.Context, nodes []models.StagingNode) error {
	ctx, span := tracing.StartSpan(ctx, "stagingnode.Repository.CreateMany")
	defer span.End()

	if len(nodes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("staging_nodes")
	ib.Cols(columns...)
	for i := range nodes {
		n := &nodes[i]
		n.CreatedAt = now
		n.UpdatedAt = now
		ib.Values(
			n.ID, n.BatchID, n.OwnerID, n.RowNumber, n.NodeName, n.EntityName, n.Website, n.Category, n.Direction,
			nonNil(n.ConnectTargets), nonNil(n.Protocols), nonNil(n.DataTypes), n.Notes, nonNil(n.Tags), n.RawData,
			n.ConfidenceScore, nonNil(n.PotentialDuplicates), n.DuplicateCheck, n.Fingerprint, n.Status,
			n.DecidedBy, n.DecidedAt, n.CommittedEntityID, n.CommittedNodeID, n.CreatedAt, n.UpdatedAt,
		)
	}

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": nodes[0].BatchID, "count": len(nodes)}).Error("Failed to create staging nodes")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create staging nodes")
	}

	return nil
}

// Get retrieves a staging node by ID
func (r *Repository) Get(ctx context.Context, ownerID, id string) (*models.StagingNode, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingnode.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_nodes")
	sb.Where(sb.Equal("id", id), sb.Equal("owner_id", ownerID))

	query, args := sb.Build()
	var node models.StagingNode
	if err := database.Conn(ctx, r.db).GetContext(ctx, &node, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "staging node %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "owner_id": ownerID}).Error("Failed to get staging node")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staging node")
	}

	return &node, nil
}

// ListByBatch returns the staging nodes of a batch in row order
func (r *Repository) ListByBatch(ctx context.Context, ownerID, batchID string) ([]models.StagingNode, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingnode.Repository.ListByBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_nodes")
	sb.Where(sb.Equal("owner_id", ownerID), sb.Equal("batch_id", batchID))
	sb.OrderBy("row_number")

	query, args := sb.Build()
	nodes := []models.StagingNode{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &nodes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID, "batch_id": batchID}).Error("Failed to list staging nodes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staging nodes")
	}

	return nodes, nil
}

// Decide records the decision on a row that has not been decided yet
func (r *Repository) Decide(ctx context.Context, node *models.StagingNode) error {
	ctx, span := tracing.StartSpan(ctx, "stagingnode.Repository.Decide")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("staging_nodes")
	ub.Set(
		ub.Assign("status", node.Status),
		ub.Assign("decided_by", node.DecidedBy),
		ub.Assign("decided_at", node.DecidedAt),
		ub.Assign("committed_entity_id", node.CommittedEntityID),
		ub.Assign("committed_node_id", node.CommittedNodeID),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", node.ID),
		ub.Equal("owner_id", node.OwnerID),
		ub.NotIn("status", models.StagingStatusApproved, models.StagingStatusRejected, models.StagingStatusMerged),
	)

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": node.ID, "status": node.Status}).Error("Failed to record staging decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record staging decision")
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		current, err := r.Get(ctx, node.OwnerID, node.ID)
		if err != nil {
			return err
		}
		return httperror.NewHTTPErrorf(http.StatusConflict, "staging node %s was already %s", node.ID, current.Status)
	}

	node.UpdatedAt = now
	return nil
}

// DeleteByBatch removes every staging node of a batch and returns how many were deleted
func (r *Repository) DeleteByBatch(ctx context.Context, ownerID, batchID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingnode.Repository.DeleteByBatch")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("staging_nodes")
	db.Where(db.Equal("owner_id", ownerID), db.Equal("batch_id", batchID))

	query, args := db.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID, "batch_id": batchID}).Error("Failed to delete staging nodes")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete staging nodes")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count deleted staging nodes")
	}
	return int(deleted), nil
}

func nonNil(values pq.StringArray) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return values
}

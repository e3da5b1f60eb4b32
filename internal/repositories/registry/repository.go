package registry

import (
	"context"
	"errors"
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

var entityColumns = []string{"id", "owner_id", "name", "alternate_names", "website", "version", "created_at", "updated_at"}

var nodeColumns = []string{
	"id", "owner_id", "name", "entity_id", "entity_name", "category", "direction", "connect_targets", "protocols",
	"data_types", "aliases", "notes", "tags", "website", "is_active", "last_verified", "source_fingerprint",
	"version", "created_at", "updated_at",
}

var _ store.RegistryStore = (*Repository)(nil)

// Repository handles persistence of committed entities and nodes
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new registry repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Snapshot reads every entity and active node of the owner
func (r *Repository) Snapshot(ctx context.Context, ownerID string) (*models.RegistrySnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.Snapshot")
	defer span.End()

	eb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	eb.Select(entityColumns...)
	eb.From("entities")
	eb.Where(eb.Equal("owner_id", ownerID))
	eb.OrderBy("created_at", "id")

	query, args := eb.Build()
	entities := []models.Entity{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID}).Error("Failed to read registry entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read registry entities")
	}

	nb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	nb.Select(nodeColumns...)
	nb.From("nodes")
	nb.Where(nb.Equal("owner_id", ownerID), nb.Equal("is_active", true))
	nb.OrderBy("created_at", "id")

	query, args = nb.Build()
	nodes := []models.Node{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &nodes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID}).Error("Failed to read registry nodes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read registry nodes")
	}

	return &models.RegistrySnapshot{Entities: entities, Nodes: nodes}, nil
}

// GetEntity retrieves an entity by ID
func (r *Repository) GetEntity(ctx context.Context, ownerID, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.GetEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(sb.Equal("id", id), sb.Equal("owner_id", ownerID))

	query, args := sb.Build()
	var entity models.Entity
	if err := database.Conn(ctx, r.db).GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "entity %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "owner_id": ownerID}).Error("Failed to get entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity")
	}

	return &entity, nil
}

// GetNode retrieves a node by ID
func (r *Repository) GetNode(ctx context.Context, ownerID, id string) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.GetNode")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(nodeColumns...)
	sb.From("nodes")
	sb.Where(sb.Equal("id", id), sb.Equal("owner_id", ownerID))

	query, args := sb.Build()
	var node models.Node
	if err := database.Conn(ctx, r.db).GetContext(ctx, &node, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "node %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "owner_id": ownerID}).Error("Failed to get node")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get node")
	}

	return &node, nil
}

// FindNodeByFingerprint returns the committed node created from the same source row, or nil
func (r *Repository) FindNodeByFingerprint(ctx context.Context, ownerID, fingerprint string) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.FindNodeByFingerprint")
	defer span.End()

	if fingerprint == "" {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(nodeColumns...)
	sb.From("nodes")
	sb.Where(sb.Equal("owner_id", ownerID), sb.Equal("source_fingerprint", fingerprint))
	sb.Limit(1)

	query, args := sb.Build()
	var node models.Node
	if err := database.Conn(ctx, r.db).GetContext(ctx, &node, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"owner_id": ownerID, "fingerprint": fingerprint}).Error("Failed to find node by fingerprint")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find node by fingerprint")
	}

	return &node, nil
}

// CreateEntity inserts a new entity at version 1
func (r *Repository) CreateEntity(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.CreateEntity")
	defer span.End()

	now := time.Now().UTC()
	entity.Version = 1
	entity.CreatedAt = now
	entity.UpdatedAt = now
	if entity.AlternateNames == nil {
		entity.AlternateNames = pq.StringArray{}
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("entities")
	ib.Cols(entityColumns...)
	ib.Values(entity.ID, entity.OwnerID, entity.Name, entity.AlternateNames, entity.Website, entity.Version, entity.CreatedAt, entity.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return httperror.NewHTTPErrorf(http.StatusConflict, "entity %s already exists", entity.ID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": entity.ID, "owner_id": entity.OwnerID}).Error("Failed to create entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create entity")
	}

	return nil
}

// UpdateEntity writes entity if its version still matches the stored one
func (r *Repository) UpdateEntity(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.UpdateEntity")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("name", entity.Name),
		ub.Assign("alternate_names", entity.AlternateNames),
		ub.Assign("website", entity.Website),
		ub.Incr("version"),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", entity.ID), ub.Equal("owner_id", entity.OwnerID), ub.Equal("version", entity.Version))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": entity.ID, "owner_id": entity.OwnerID}).Error("Failed to update entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update entity")
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		if _, err := r.GetEntity(ctx, entity.OwnerID, entity.ID); err != nil {
			return err
		}
		return httperror.NewHTTPErrorf(http.StatusConflict, "entity %s was modified concurrently", entity.ID)
	}

	entity.Version++
	entity.UpdatedAt = now
	return nil
}

// CreateNode inserts a new node at version 1
func (r *Repository) CreateNode(ctx context.Context, node *models.Node) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.CreateNode")
	defer span.End()

	now := time.Now().UTC()
	node.Version = 1
	node.CreatedAt = now
	node.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("nodes")
	ib.Cols(nodeColumns...)
	ib.Values(
		node.ID, node.OwnerID, node.Name, node.EntityID, node.EntityName, node.Category, node.Direction,
		nonNil(node.ConnectTargets), nonNil(node.Protocols), nonNil(node.DataTypes), nonNil(node.Aliases),
		node.Notes, nonNil(node.Tags), node.Website, node.IsActive, node.LastVerified, node.SourceFingerprint,
		node.Version, node.CreatedAt, node.UpdatedAt,
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			if constraintOf(err) == fingerprintConstraint {
				return httperror.NewHTTPErrorf(http.StatusConflict, "a node with fingerprint %s was already committed", node.SourceFingerprint)
			}
			return httperror.NewHTTPErrorf(http.StatusConflict, "node %s already exists", node.ID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": node.ID, "owner_id": node.OwnerID}).Error("Failed to create node")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create node")
	}

	return nil
}

// UpdateNode writes node if its version still matches the stored one
func (r *Repository) UpdateNode(ctx context.Context, node *models.Node) error {
	ctx, span := tracing.StartSpan(ctx, "registry.Repository.UpdateNode")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("nodes")
	ub.Set(
		ub.Assign("name", node.Name),
		ub.Assign("connect_targets", nonNil(node.ConnectTargets)),
		ub.Assign("protocols", nonNil(node.Protocols)),
		ub.Assign("data_types", nonNil(node.DataTypes)),
		ub.Assign("aliases", nonNil(node.Aliases)),
		ub.Assign("notes", node.Notes),
		ub.Assign("tags", nonNil(node.Tags)),
		ub.Assign("website", node.Website),
		ub.Assign("is_active", node.IsActive),
		ub.Assign("last_verified", node.LastVerified),
		ub.Incr("version"),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", node.ID), ub.Equal("owner_id", node.OwnerID), ub.Equal("version", node.Version))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": node.ID, "owner_id": node.OwnerID}).Error("Failed to update node")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update node")
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		if _, err := r.GetNode(ctx, node.OwnerID, node.ID); err != nil {
			return err
		}
		return httperror.NewHTTPErrorf(http.StatusConflict, "node %s was modified concurrently", node.ID)
	}

	node.Version++
	node.UpdatedAt = now
	return nil
}

func nonNil(values pq.StringArray) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return values
}

// fingerprintConstraint keeps one committed node per owner and source row
const fingerprintConstraint = "idx_nodes_owner_fingerprint"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func constraintOf(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// Package store declares the persistence boundaries of the intake pipeline. Postgres implementations
// live in internal/repositories and an in-memory implementation in store/memstore.
package store

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Registry reads the committed registry of entities and nodes
type Registry interface {
	// Snapshot returns every entity and active node of the owner in one read
	Snapshot(ctx context.Context, ownerID string) (*models.RegistrySnapshot, error)
	GetEntity(ctx context.Context, ownerID, id string) (*models.Entity, error)
	GetNode(ctx context.Context, ownerID, id string) (*models.Node, error)
	// FindNodeByFingerprint returns nil without error when no committed node carries the fingerprint
	FindNodeByFingerprint(ctx context.Context, ownerID, fingerprint string) (*models.Node, error)
}

// RegistryWriter commits entities and nodes. Updates compare the caller's Version with the stored one
// and fail with a conflict when they differ; on success Version is incremented in place.
type RegistryWriter interface {
	CreateEntity(ctx context.Context, entity *models.Entity) error
	UpdateEntity(ctx context.Context, entity *models.Entity) error
	CreateNode(ctx context.Context, node *models.Node) error
	UpdateNode(ctx context.Context, node *models.Node) error
}

// RegistryStore is the full registry surface
type RegistryStore interface {
	Registry
	RegistryWriter
}

// StagingStore persists staged rows awaiting review
type StagingStore interface {
	CreateMany(ctx context.Context, nodes []models.StagingNode) error
	Get(ctx context.Context, ownerID, id string) (*models.StagingNode, error)
	ListByBatch(ctx context.Context, ownerID, batchID string) ([]models.StagingNode, error)
	// Decide records a reviewer decision. It fails with a conflict when the row was already decided.
	Decide(ctx context.Context, node *models.StagingNode) error
	DeleteByBatch(ctx context.Context, ownerID, batchID string) (int, error)
}

// BatchLogStore persists batch audit records
type BatchLogStore interface {
	Create(ctx context.Context, batch *models.BatchLog) error
	Get(ctx context.Context, ownerID, id string) (*models.BatchLog, error)
	List(ctx context.Context, ownerID string, filter models.BatchFilter) ([]models.BatchLog, int, error)
	// Finalize moves a pending batch to its final status and writes its counters
	Finalize(ctx context.Context, ownerID, id string, outcome models.BatchOutcome) error
	MarkRolledBack(ctx context.Context, ownerID, id, rolledBackBy string, at time.Time) error
	AppendError(ctx context.Context, ownerID, id string, entry models.BatchError) error
}

// Transactor runs fn atomically. Stores called with the ctx passed to fn join the same unit of work.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

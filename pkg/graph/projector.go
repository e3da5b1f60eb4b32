package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Statement is one parameterized cypher query
type Statement struct {
	Cypher string
	Params map[string]any
}

// Executor runs statements atomically
type Executor interface {
	Exec(ctx context.Context, statements ...Statement) error
}

// Projector mirrors committed registry writes into the topology graph
type Projector interface {
	ProjectEntity(ctx context.Context, entity *models.Entity) error
	ProjectNode(ctx context.Context, node *models.Node) error
}

// NoopProjector is used when the graph database is disabled
type NoopProjector struct{}

func (NoopProjector) ProjectEntity(context.Context, *models.Entity) error { return nil }
func (NoopProjector) ProjectNode(context.Context, *models.Node) error     { return nil }

// TopologyProjector writes (:Entity)-[:OPERATES]->(:Node)-[:CONNECTS_TO]->(:ConnectTarget)
type TopologyProjector struct {
	exec   Executor
	logger ectologger.Logger
}

// NewTopologyProjector creates a new topology projector
func NewTopologyProjector(exec Executor, logger ectologger.Logger) *TopologyProjector {
	return &TopologyProjector{
		exec:   exec,
		logger: logger,
	}
}

func (p *TopologyProjector) ProjectEntity(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.TopologyProjector.ProjectEntity")
	defer span.End()

	if err := p.exec.Exec(ctx, EntityStatement(entity)); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id": entity.ID,
		}).Error("Failed to project entity into graph")
		return fmt.Errorf("failed to project entity into graph: %w", err)
	}
	return nil
}

func (p *TopologyProjector) ProjectNode(ctx context.Context, node *models.Node) error {
	ctx, span := tracing.StartSpan(ctx, "graph.TopologyProjector.ProjectNode")
	defer span.End()

	if err := p.exec.Exec(ctx, NodeStatements(node)...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"node_id":   node.ID,
			"entity_id": node.EntityID,
		}).Error("Failed to project node into graph")
		return fmt.Errorf("failed to project node into graph: %w", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"node_id":         node.ID,
		"connect_targets": len(node.ConnectTargets),
	}).Debug("Projected node into graph")
	return nil
}

// EntityStatement upserts the entity vertex
func EntityStatement(entity *models.Entity) Statement {
	return Statement{
		Cypher: `
		MERGE (e:Entity {id: $id, owner_id: $owner_id})
		SET e.name = $name, e.alternate_names = $alternate_names, e.website = $website,
		    e.version = $version, e.updated_at = $updated_at
	`,
		Params: map[string]any{
			"id":              entity.ID,
			"owner_id":        entity.OwnerID,
			"name":            entity.Name,
			"alternate_names": []string(entity.AlternateNames),
			"website":         entity.Website,
			"version":         entity.Version,
			"updated_at":      entity.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
}

// NodeStatements upserts the node vertex, its OPERATES edge and one CONNECTS_TO edge per target.
// Targets are keyed by their match key so spelling variants collapse onto one vertex.
func NodeStatements(node *models.Node) []Statement {
	targets := make([]map[string]any, 0, len(node.ConnectTargets))
	seen := make(map[string]struct{}, len(node.ConnectTargets))
	for _, target := range node.ConnectTargets {
		key := normalizers.MatchKey(target)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		targets = append(targets, map[string]any{"key": key, "name": target})
	}

	return []Statement{
		{
			Cypher: `
		MERGE (n:Node {id: $id, owner_id: $owner_id})
		SET n.name = $name, n.category = $category, n.direction = $direction, n.aliases = $aliases,
		    n.protocols = $protocols, n.data_types = $data_types, n.is_active = $is_active, n.version = $version
		WITH n
		MATCH (e:Entity {id: $entity_id, owner_id: $owner_id})
		MERGE (e)-[:OPERATES]->(n)
	`,
			Params: map[string]any{
				"id":         node.ID,
				"owner_id":   node.OwnerID,
				"entity_id":  node.EntityID,
				"name":       node.Name,
				"category":   string(node.Category),
				"direction":  string(node.Direction),
				"aliases":    []string(node.Aliases),
				"protocols":  []string(node.Protocols),
				"data_types": []string(node.DataTypes),
				"is_active":  node.IsActive,
				"version":    node.Version,
			},
		},
		{
			Cypher: `
		MATCH (n:Node {id: $id, owner_id: $owner_id})
		UNWIND $targets AS target
		MERGE (t:ConnectTarget {key: target.key, owner_id: $owner_id})
		ON CREATE SET t.name = target.name
		MERGE (n)-[:CONNECTS_TO]->(t)
	`,
			Params: map[string]any{
				"id":       node.ID,
				"owner_id": node.OwnerID,
				"targets":  targets,
			},
		},
	}
}

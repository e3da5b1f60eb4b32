package memstore

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RegistryStore implements store.RegistryStore
type RegistryStore struct {
	store *Store
}

func (r *RegistryStore) Snapshot(ctx context.Context, ownerID string) (*models.RegistrySnapshot, error) {
	st := r.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	if err := st.fault("Snapshot"); err != nil {
		return nil, err
	}

	snapshot := &models.RegistrySnapshot{
		Entities: []models.Entity{},
		Nodes:    []models.Node{},
	}
	for _, e := range st.entities {
		if e.OwnerID == ownerID {
			snapshot.Entities = append(snapshot.Entities, cloneEntity(e))
		}
	}
	for _, n := range st.nodes {
		if n.OwnerID == ownerID && n.IsActive {
			snapshot.Nodes = append(snapshot.Nodes, cloneNode(n))
		}
	}

	sortByCreated(snapshot.Entities, func(e models.Entity) time.Time { return e.CreatedAt }, func(e models.Entity) string { return e.ID })
	sortByCreated(snapshot.Nodes, func(n models.Node) time.Time { return n.CreatedAt }, func(n models.Node) string { return n.ID })
	return snapshot, nil
}

func (r *RegistryStore) GetEntity(ctx context.Context, ownerID, id string) (*models.Entity, error) {
	st := r.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	e, ok := st.entities[id]
	if !ok || e.OwnerID != ownerID {
		return nil, models.NotFound("entity %s not found", id)
	}
	e = cloneEntity(e)
	return &e, nil
}

func (r *RegistryStore) GetNode(ctx context.Context, ownerID, id string) (*models.Node, error) {
	st := r.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	n, ok := st.nodes[id]
	if !ok || n.OwnerID != ownerID {
		return nil, models.NotFound("node %s not found", id)
	}
	n = cloneNode(n)
	return &n, nil
}

func (r *RegistryStore) FindNodeByFingerprint(ctx context.Context, ownerID, fingerprint string) (*models.Node, error) {
	st := r.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	if fingerprint == "" {
		return nil, nil
	}
	for _, n := range st.nodes {
		if n.OwnerID == ownerID && n.SourceFingerprint == fingerprint {
			n = cloneNode(n)
			return &n, nil
		}
	}
	return nil, nil
}

func (r *RegistryStore) CreateEntity(ctx context.Context, entity *models.Entity) error {
	st := r.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("CreateEntity"); err != nil {
		return err
	}
	if _, exists := st.entities[entity.ID]; exists {
		return models.Conflict("entity %s already exists", entity.ID)
	}

	ts := now()
	entity.Version = 1
	entity.CreatedAt = ts
	entity.UpdatedAt = ts
	st.entities[entity.ID] = cloneEntity(*entity)
	return nil
}

func (r *RegistryStore) UpdateEntity(ctx context.Context, entity *models.Entity) error {
	st := r.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("UpdateEntity"); err != nil {
		return err
	}
	current, ok := st.entities[entity.ID]
	if !ok || current.OwnerID != entity.OwnerID {
		return models.NotFound("entity %s not found", entity.ID)
	}
	if current.Version != entity.Version {
		return models.Conflict("entity %s was modified concurrently", entity.ID)
	}

	entity.Version++
	entity.CreatedAt = current.CreatedAt
	entity.UpdatedAt = now()
	st.entities[entity.ID] = cloneEntity(*entity)
	return nil
}

func (r *RegistryStore) CreateNode(ctx context.Context, node *models.Node) error {
	st := r.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("CreateNode"); err != nil {
		return err
	}
	if _, exists := st.nodes[node.ID]; exists {
		return models.Conflict("node %s already exists", node.ID)
	}
	if node.SourceFingerprint != "" {
		for _, n := range st.nodes {
			if n.OwnerID == node.OwnerID && n.SourceFingerprint == node.SourceFingerprint {
				return models.Conflict("a node with fingerprint %s was already committed", node.SourceFingerprint)
			}
		}
	}

	ts := now()
	node.Version = 1
	node.CreatedAt = ts
	node.UpdatedAt = ts
	st.nodes[node.ID] = cloneNode(*node)
	return nil
}

func (r *RegistryStore) UpdateNode(ctx context.Context, node *models.Node) error {
	st := r.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("UpdateNode"); err != nil {
		return err
	}
	current, ok := st.nodes[node.ID]
	if !ok || current.OwnerID != node.OwnerID {
		return models.NotFound("node %s not found", node.ID)
	}
	if current.Version != node.Version {
		return models.Conflict("node %s was modified concurrently", node.ID)
	}

	node.Version++
	node.CreatedAt = current.CreatedAt
	node.UpdatedAt = now()
	st.nodes[node.ID] = cloneNode(*node)
	return nil
}

package memstore

import (
	"context"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// StagingStore implements store.StagingStore
type StagingStore struct {
	store *Store
}

func (s *StagingStore) CreateMany(ctx context.Context, nodes []models.StagingNode) error {
	st := s.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("CreateMany"); err != nil {
		return err
	}
	for _, n := range nodes {
		if _, exists := st.staging[n.ID]; exists {
			return models.Conflict("staging node %s already exists", n.ID)
		}
	}

	ts := now()
	for _, n := range nodes {
		n.CreatedAt = ts
		n.UpdatedAt = ts
		st.staging[n.ID] = cloneStaging(n)
	}
	return nil
}

func (s *StagingStore) Get(ctx context.Context, ownerID, id string) (*models.StagingNode, error) {
	st := s.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	n, ok := st.staging[id]
	if !ok || n.OwnerID != ownerID {
		return nil, models.NotFound("staging node %s not found", id)
	}
	n = cloneStaging(n)
	return &n, nil
}

func (s *StagingStore) ListByBatch(ctx context.Context, ownerID, batchID string) ([]models.StagingNode, error) {
	st := s.store.state
	st.mu.RLock()
	defer st.mu.RUnlock()

	if err := st.fault("ListByBatch"); err != nil {
		return nil, err
	}

	nodes := []models.StagingNode{}
	for _, n := range st.staging {
		if n.OwnerID == ownerID && n.BatchID == batchID {
			nodes = append(nodes, cloneStaging(n))
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].RowNumber < nodes[j].RowNumber
	})
	return nodes, nil
}

func (s *StagingStore) Decide(ctx context.Context, node *models.StagingNode) error {
	st := s.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("Decide"); err != nil {
		return err
	}
	current, ok := st.staging[node.ID]
	if !ok || current.OwnerID != node.OwnerID {
		return models.NotFound("staging node %s not found", node.ID)
	}
	if current.Status.IsDecided() {
		return models.Conflict("staging node %s was already %s", node.ID, current.Status)
	}

	current.Status = node.Status
	current.DecidedBy = node.DecidedBy
	current.DecidedAt = node.DecidedAt
	current.CommittedEntityID = node.CommittedEntityID
	current.CommittedNodeID = node.CommittedNodeID
	current.UpdatedAt = now()
	st.staging[node.ID] = current
	node.UpdatedAt = current.UpdatedAt
	return nil
}

func (s *StagingStore) DeleteByBatch(ctx context.Context, ownerID, batchID string) (int, error) {
	st := s.store.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.fault("DeleteByBatch"); err != nil {
		return 0, err
	}

	deleted := 0
	for id, n := range st.staging {
		if n.OwnerID == ownerID && n.BatchID == batchID {
			delete(st.staging, id)
			deleted++
		}
	}
	return deleted, nil
}

// Package memstore is an in-memory implementation of the store interfaces. It backs tests and
// single-process deployments without Postgres.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

var (
	_ store.RegistryStore = (*RegistryStore)(nil)
	_ store.StagingStore  = (*StagingStore)(nil)
	_ store.BatchLogStore = (*BatchLogStore)(nil)
	_ store.Transactor    = (*Store)(nil)
)

type state struct {
	mu       sync.RWMutex
	entities map[string]models.Entity
	nodes    map[string]models.Node
	staging  map[string]models.StagingNode
	batches  map[string]models.BatchLog
	faults   map[string]error
}

func (s *state) clone() *state {
	c := &state{
		entities: make(map[string]models.Entity, len(s.entities)),
		nodes:    make(map[string]models.Node, len(s.nodes)),
		staging:  make(map[string]models.StagingNode, len(s.staging)),
		batches:  make(map[string]models.BatchLog, len(s.batches)),
		faults:   s.faults,
	}
	for k, v := range s.entities {
		c.entities[k] = cloneEntity(v)
	}
	for k, v := range s.nodes {
		c.nodes[k] = cloneNode(v)
	}
	for k, v := range s.staging {
		c.staging[k] = cloneStaging(v)
	}
	for k, v := range s.batches {
		c.batches[k] = cloneBatch(v)
	}
	return c
}

// fault returns the injected error for op, if any. Callers hold mu.
func (s *state) fault(op string) error {
	if s.faults == nil {
		return nil
	}
	return s.faults[op]
}

// Store owns the shared in-memory state of every sub-store
type Store struct {
	txMu  sync.Mutex
	state *state

	registry *RegistryStore
	staging  *StagingStore
	batches  *BatchLogStore
}

// New creates an empty store
func New() *Store {
	s := &Store{
		state: &state{
			entities: make(map[string]models.Entity),
			nodes:    make(map[string]models.Node),
			staging:  make(map[string]models.StagingNode),
			batches:  make(map[string]models.BatchLog),
			faults:   make(map[string]error),
		},
	}
	s.registry = &RegistryStore{store: s}
	s.staging = &StagingStore{store: s}
	s.batches = &BatchLogStore{store: s}
	return s
}

func (s *Store) Registry() *RegistryStore { return s.registry }

func (s *Store) Staging() *StagingStore { return s.staging }

func (s *Store) Batches() *BatchLogStore { return s.batches }

// InjectError makes the named operation (e.g. "Snapshot", "DeleteByBatch") fail with err until
// cleared with a nil err.
func (s *Store) InjectError(op string, err error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if err == nil {
		delete(s.state.faults, op)
		return
	}
	s.state.faults[op] = err
}

// WithTx runs fn against the live state and restores the state captured beforehand when fn fails.
// Transactions are serialized with each other but not isolated from writes outside a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.state.mu.RLock()
	saved := s.state.clone()
	s.state.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.state.mu.Lock()
		s.state.entities = saved.entities
		s.state.nodes = saved.nodes
		s.state.staging = saved.staging
		s.state.batches = saved.batches
		s.state.mu.Unlock()
		return err
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func cloneStrings(values pq.StringArray) pq.StringArray {
	if values == nil {
		return nil
	}
	return append(pq.StringArray{}, values...)
}

func cloneEntity(e models.Entity) models.Entity {
	e.AlternateNames = cloneStrings(e.AlternateNames)
	return e
}

func cloneNode(n models.Node) models.Node {
	n.ConnectTargets = cloneStrings(n.ConnectTargets)
	n.Protocols = cloneStrings(n.Protocols)
	n.DataTypes = cloneStrings(n.DataTypes)
	n.Aliases = cloneStrings(n.Aliases)
	n.Tags = cloneStrings(n.Tags)
	return n
}

func cloneStaging(s models.StagingNode) models.StagingNode {
	s.ConnectTargets = cloneStrings(s.ConnectTargets)
	s.Protocols = cloneStrings(s.Protocols)
	s.DataTypes = cloneStrings(s.DataTypes)
	s.Tags = cloneStrings(s.Tags)
	s.PotentialDuplicates = cloneStrings(s.PotentialDuplicates)
	return s
}

func cloneBatch(b models.BatchLog) models.BatchLog {
	report := append([]models.BatchError{}, b.ErrorReport.GetValue()...)
	b.ErrorReport.Data = report
	return b
}

func sortByCreated[T any](values []T, created func(T) time.Time, id func(T) string) {
	sort.SliceStable(values, func(i, j int) bool {
		ci, cj := created(values[i]), created(values[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return id(values[i]) < id(values[j])
	})
}

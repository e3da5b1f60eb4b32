// Package audit emits lifecycle events for batches, staged rows and registry writes
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type EventType string

const (
	EventBatchCreated    EventType = "batch.created"
	EventBatchProcessed  EventType = "batch.processed"
	EventBatchRolledBack EventType = "batch.rolled_back"
	EventStagingDecided  EventType = "staging.decided"
	EventEntityCreated   EventType = "entity.created"
	EventEntityUpdated   EventType = "entity.updated"
	EventNodeCreated     EventType = "node.created"
	EventNodeUpdated     EventType = "node.updated"
)

// Event is one audit record
type Event struct {
	EventType   EventType      `json:"event_type"`
	OwnerID     string         `json:"owner_id"`
	ActorID     string         `json:"actor_id,omitempty"`
	SubjectKind string         `json:"subject_kind"`
	SubjectID   string         `json:"subject_id"`
	BatchID     string         `json:"batch_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Version     int            `json:"version,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Sink publishes audit events
type Sink interface {
	Publish(ctx context.Context, events ...*Event) error
}

// NoopSink discards every event
type NoopSink struct{}

func (NoopSink) Publish(context.Context, ...*Event) error { return nil }

// MemorySink keeps events in memory
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Publish(_ context.Context, events ...*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events = append(s.events, *e)
	}
	return nil
}

// Events returns a copy of everything published so far
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

// OfType returns the published events of one type
func (s *MemorySink) OfType(eventType EventType) []Event {
	out := []Event{}
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Emitter builds events from domain records and publishes them. Publish failures are logged and
// counted but never returned.
type Emitter struct {
	sink   Sink
	logger ectologger.Logger
}

// NewEmitter creates a new event emitter. A nil sink discards events.
func NewEmitter(sink Sink, logger ectologger.Logger) *Emitter {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Emitter{
		sink:   sink,
		logger: logger,
	}
}

func (e *Emitter) emit(ctx context.Context, event *Event) {
	ctx, span := tracing.StartSpan(ctx, "audit.Emitter.emit")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ActorID == "" {
		event.ActorID = appctx.Actor(ctx)
	}
	if event.BatchID == "" {
		event.BatchID = appctx.GetBatchID(ctx)
	}

	if err := e.sink.Publish(ctx, event); err != nil {
		metrics.AuditEventsFailed.WithLabelValues(string(event.EventType)).Inc()
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"subject_id": event.SubjectID,
		}).Error("Failed to publish audit event")
	}
}

func (e *Emitter) BatchCreated(ctx context.Context, batch *models.BatchLog) {
	e.emit(ctx, &Event{
		EventType:   EventBatchCreated,
		OwnerID:     batch.OwnerID,
		SubjectKind: "batch",
		SubjectID:   batch.ID,
		BatchID:     batch.ID,
		Data:        map[string]any{"name": batch.Name},
	})
}

func (e *Emitter) BatchProcessed(ctx context.Context, ownerID, batchID string, outcome models.BatchOutcome) {
	e.emit(ctx, &Event{
		EventType:   EventBatchProcessed,
		OwnerID:     ownerID,
		SubjectKind: "batch",
		SubjectID:   batchID,
		BatchID:     batchID,
		Data: map[string]any{
			"status":             outcome.Status,
			"total_records":      outcome.TotalRecords,
			"processed_records":  outcome.ProcessedRecords,
			"error_records":      outcome.ErrorRecords,
			"duplicate_warnings": outcome.DuplicateWarnings,
		},
	})
}

func (e *Emitter) BatchRolledBack(ctx context.Context, ownerID, batchID string, deleted int) {
	e.emit(ctx, &Event{
		EventType:   EventBatchRolledBack,
		OwnerID:     ownerID,
		SubjectKind: "batch",
		SubjectID:   batchID,
		BatchID:     batchID,
		Data:        map[string]any{"staging_nodes_deleted": deleted},
	})
}

func (e *Emitter) StagingDecided(ctx context.Context, node *models.StagingNode, outcome models.DecisionOutcome) {
	e.emit(ctx, &Event{
		EventType:   EventStagingDecided,
		OwnerID:     node.OwnerID,
		SubjectKind: "staging_node",
		SubjectID:   node.ID,
		BatchID:     node.BatchID,
		Data: map[string]any{
			"action":    outcome.Action,
			"status":    outcome.Status,
			"entity_id": outcome.EntityID,
			"node_id":   outcome.NodeID,
		},
	})
}

func (e *Emitter) EntityWritten(ctx context.Context, entity *models.Entity, created bool) {
	eventType := EventEntityUpdated
	if created {
		eventType = EventEntityCreated
	}
	e.emit(ctx, &Event{
		EventType:   eventType,
		OwnerID:     entity.OwnerID,
		SubjectKind: "entity",
		SubjectID:   entity.ID,
		Version:     entity.Version,
		Data:        map[string]any{"name": entity.Name, "alternate_names": []string(entity.AlternateNames)},
	})
}

func (e *Emitter) NodeWritten(ctx context.Context, node *models.Node, created bool) {
	eventType := EventNodeUpdated
	if created {
		eventType = EventNodeCreated
	}
	e.emit(ctx, &Event{
		EventType:   eventType,
		OwnerID:     node.OwnerID,
		SubjectKind: "node",
		SubjectID:   node.ID,
		Version:     node.Version,
		Data:        map[string]any{"name": node.Name, "entity_id": node.EntityID, "category": node.Category},
	})
}

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestKafkaSink_Publish(t *testing.T) {
	writer := &fakeWriter{}
	sink := &KafkaSink{writer: writer, logger: testLogger(), topic: "fern-audit"}

	err := sink.Publish(context.Background(), &Event{EventType: EventNodeCreated, OwnerID: "owner", SubjectID: "n1"})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "n1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "node.created", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "owner", decoded.OwnerID)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestEmitter_SwallowsPublishFailures(t *testing.T) {
	sink := &KafkaSink{writer: &fakeWriter{err: errors.New("broker down")}, logger: testLogger()}
	emitter := NewEmitter(sink, testLogger())

	assert.NotPanics(t, func() {
		emitter.BatchCreated(context.Background(), &models.BatchLog{ID: "b1", OwnerID: "owner"})
	})
}

func TestEmitter_FillsActorFromContext(t *testing.T) {
	sink := &MemorySink{}
	emitter := NewEmitter(sink, testLogger())
	ctx := appctx.SetUserID(context.Background(), "alice")

	emitter.EntityWritten(ctx, &models.Entity{ID: "e1", OwnerID: "owner", Name: "Cloudbeds", Version: 1}, true)
	emitter.EntityWritten(ctx, &models.Entity{ID: "e1", OwnerID: "owner", Name: "Cloudbeds", Version: 2}, false)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventEntityCreated, events[0].EventType)
	assert.Equal(t, EventEntityUpdated, events[1].EventType)
	assert.Equal(t, "alice", events[0].ActorID)
	assert.Len(t, sink.OfType(EventEntityUpdated), 1)
}

func TestNewEmitter_NilSink(t *testing.T) {
	emitter := NewEmitter(nil, testLogger())
	assert.NotPanics(t, func() {
		emitter.BatchRolledBack(context.Background(), "owner", "b1", 3)
	})
}

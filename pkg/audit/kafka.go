package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes audit events as JSON messages keyed by subject id
type KafkaSink struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewKafkaSink creates a new Kafka audit sink
func NewKafkaSink(cfg ProducerConfig, logger ectologger.Logger) *KafkaSink {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &KafkaSink{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func (s *KafkaSink) Publish(ctx context.Context, events ...*Event) error {
	ctx, span := tracing.StartSpan(ctx, "audit.KafkaSink.Publish")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Key:   []byte(event.SubjectID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "owner_id", Value: []byte(event.OwnerID)},
				{Key: "schema_version", Value: []byte(SchemaVersion)},
			},
		}
	}

	if err := s.writer.WriteMessages(ctx, messages...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
			"topic":      s.topic,
		}).Error("Failed to publish audit events")
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published audit events")

	return nil
}

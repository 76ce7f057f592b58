package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-context-service/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// AuditWriter publishes every completed ask result to an audit topic.
// It implements domain.ResultSink.
type AuditWriter struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewAuditWriter creates a Kafka producer for the audit topic.
func NewAuditWriter(brokers []string, topic string, logger *slog.Logger) *AuditWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &AuditWriter{writer: w, topic: topic, logger: logger}
}

// Publish writes one result keyed by its query ID.
func (w *AuditWriter) Publish(ctx context.Context, result domain.AskResult) error {
	msg, err := serializeToMessage(result)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish ask result %s to %s: %w", result.QueryID, w.topic, err)
	}
	w.logger.Debug("ask result published", "query_id", result.QueryID, "topic", w.topic)
	return nil
}

func (w *AuditWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AskResult into a Kafka message.
func serializeToMessage(result domain.AskResult) (kafkago.Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize ask result: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "created_at", Value: []byte(result.CreatedAt.Format(time.RFC3339))},
		{Key: "locations", Value: []byte(strconv.Itoa(len(result.FullRetrievalData.Locations)))},
	}
	if result.Highlight != nil {
		headers = append(headers, kafkago.Header{Key: "highlight_fips", Value: []byte(result.Highlight.FIPSCode)})
	}
	return kafkago.Message{
		Key:     []byte(result.QueryID),
		Value:   data,
		Headers: headers,
	}, nil
}

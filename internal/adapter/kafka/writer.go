package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/snih-data-etl/internal/config"
	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	headerDataset = "dataset"
	headerRunID   = "run_id"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces exported documents to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer    messageWriter
	batchSize int
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured publish topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, batchSize: cfg.BatchSize, metrics: metrics, logger: logger}
}

// Publish serializes docs and writes them in chunks of at most batchSize
// messages. Every message carries the dataset and run ID as headers.
func (p *Publisher) Publish(ctx context.Context, dataset, runID string, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(docs))
	for i := range docs {
		msg, err := serializeToMessage(docs[i], dataset, runID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	size := p.batchSize
	if size <= 0 {
		size = len(msgs)
	}
	for start := 0; start < len(msgs); start += size {
		end := min(start+size, len(msgs))
		batch := msgs[start:end]
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("publish %s batch at offset %d: %w", dataset, start, err)
		}
		p.metrics.BatchSize.Observe(float64(len(batch)))
		p.metrics.MessagesProduced.Add(float64(len(batch)))
	}
	p.logger.Info("documents published", "dataset", dataset, "run_id", runID, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a document into a Kafka message.
func serializeToMessage(doc domain.Document, dataset, runID string) (kafkago.Message, error) {
	data, err := json.Marshal(doc.Body)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s document %q: %w", dataset, doc.Key, err)
	}
	return kafkago.Message{
		Key:   []byte(doc.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerDataset, Value: []byte(dataset)},
			{Key: headerRunID, Value: []byte(runID)},
		},
	}, nil
}

// Package kafka publishes cluster updates to the downstream sink topic.
// Lead assignment and the UI layer consume this feed; they never write back.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Publisher produces cluster-update messages to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishClusters serializes and publishes the changed clusters from one
// run in a single WriteMessages call.
func (p *Publisher) PublishClusters(ctx context.Context, clusters []domain.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(clusters))
	for i := range clusters {
		msg, err := serializeToMessage(clusters[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Cluster into a Kafka message keyed by
// cluster ID, so downstream compaction keeps the latest state per cluster.
func serializeToMessage(c domain.Cluster) (kafkago.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cluster: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(c.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(c.EventType)},
			{Key: "status", Value: []byte(c.VerificationStatus)},
			{Key: "updated_at", Value: []byte(c.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}

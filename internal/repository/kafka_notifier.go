package repository

import (
	"context"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	pkgkafka "QuantPulse/pkg/kafka"
)

// KafkaNotifier publishes every order outcome, fills and rejections
// alike, to the trade-events topic.
type KafkaNotifier struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ repository.Notifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier creates a Kafka order notifier.
func NewKafkaNotifier(producer *pkgkafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) NotifyOrder(ctx context.Context, o *models.Order) error {
	return n.producer.Publish(ctx, n.topic, []byte(o.Symbol), map[string]interface{}{
		"id":         o.ID,
		"symbol":     o.Symbol,
		"side":       string(o.Side),
		"quantity":   o.Quantity,
		"price":      o.Price,
		"status":     string(o.Status),
		"reason":     o.Reason,
		"created_at": o.CreatedAt,
	})
}

func (n *KafkaNotifier) Close() error {
	if n.producer != nil {
		return n.producer.Close()
	}
	return nil
}

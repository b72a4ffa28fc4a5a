// Package notify publishes order lifecycle events to Kafka for downstream
// consumers (emails, fulfillment screens, analytics). Publication is
// fire-and-forget: the order transaction has already committed and a lost
// event never blocks or fails a request.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront/internal/model"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
)

// event is the wire format; key is the order id so one order's events stay
// in partition order.
type event struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	UserID     int64     `json:"userId"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"totalCents"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier writes order events to a Kafka topic. A nil writer (no brokers
// configured) downgrades every publish to a debug log.
type Notifier struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// New creates a notifier; brokers may be empty to disable publishing.
func New(brokers []string, topic string, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		logger: logger.With().Str("component", "notify").Logger(),
	}

	if len(brokers) > 0 {
		n.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					n.logger.Warn().Err(err).Int("count", len(messages)).Msg("event delivery failed")
				}
			},
		}
	}

	return n
}

// Close flushes and closes the underlying writer.
func (n *Notifier) Close() error {
	if n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

// OrderCreated publishes an order.created event.
func (n *Notifier) OrderCreated(ctx context.Context, order *model.Order) {
	n.publish(ctx, EventOrderCreated, order)
}

// OrderPaid publishes an order.paid event.
func (n *Notifier) OrderPaid(ctx context.Context, order *model.Order) {
	n.publish(ctx, EventOrderPaid, order)
}

// OrderCancelled publishes an order.cancelled event.
func (n *Notifier) OrderCancelled(ctx context.Context, order *model.Order) {
	n.publish(ctx, EventOrderCancelled, order)
}

func (n *Notifier) publish(ctx context.Context, eventType string, order *model.Order) {
	if n.writer == nil {
		n.logger.Debug().
			Str("event", eventType).
			Str("order_id", order.ID.String()).
			Msg("no brokers configured, event dropped")
		return
	}

	payload, err := json.Marshal(event{
		Type:       eventType,
		OrderID:    order.ID.String(),
		UserID:     order.UserID,
		Status:     string(order.Status),
		TotalCents: order.TotalCents,
		OccurredAt: time.Now(),
	})
	if err != nil {
		n.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event")
		return
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID.String()),
		Value: payload,
	})
	if err != nil {
		// Async mode only errors here when the writer is closed.
		n.logger.Warn().Err(err).Str("event", eventType).Msg("failed to enqueue event")
	}
}

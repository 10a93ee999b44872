// Package events publishes best-effort domain notifications to Kafka.
// Publication failures are logged and swallowed — a broker outage must
// never fail the caller's dispatch operation (spec §4.6, supplemented
// feature).
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event names published on the dispatch topic.
const (
	RequestCreated   = "request.created"
	PoolMatched      = "pool.matched"
	RequestCancelled = "request.cancelled"
	PoolCompleted    = "pool.completed"
)

// Envelope wraps every published event with a type tag and timestamp.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// Publisher publishes domain events for the dispatch service.
type Publisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewPublisher builds a publisher against the given brokers and topic.
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, log: log}
}

// Publish sends a best-effort event; a write failure is logged, not
// returned, so callers never need to branch on notification delivery.
func (p *Publisher) Publish(ctx context.Context, key, eventType string, payload any) {
	if p == nil || p.writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	body, err := json.Marshal(Envelope{Type: eventType, Timestamp: time.Now().Unix(), Payload: payload})
	if err != nil {
		p.log.Error("events: marshal failed", "type", eventType, "error", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		p.log.Warn("events: publish failed", "type", eventType, "error", err)
	}
}

// Close releases the underlying writer's connections.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// RequestCreatedPayload is published when a passenger request is
// accepted into the pending pool.
type RequestCreatedPayload struct {
	PassengerID string  `json:"passenger_id"`
	UserID      string  `json:"user_id"`
	SeatsNeeded int     `json:"seats_needed"`
	BaseFare    float64 `json:"base_fare_estimate"`
}

// PoolMatchedPayload is published when a matching cycle commits a pool.
type PoolMatchedPayload struct {
	PoolID       string   `json:"pool_id"`
	PassengerIDs []string `json:"passenger_ids"`
	VehicleClass string   `json:"vehicle_class"`
}

// RequestCancelledPayload is published when a passenger cancels.
type RequestCancelledPayload struct {
	PassengerID string `json:"passenger_id"`
	PoolID      string `json:"pool_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

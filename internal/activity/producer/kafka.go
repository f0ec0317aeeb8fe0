// Package producer publishes activity records to Kafka for the activity worker.
package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"whatsapp-otp-gateway/internal/activity/domain"
)

// KafkaProducer implements activity.Emitter using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer creates a Kafka producer that writes activity records to the
// given topic. Returns (nil, nil) when brokers or topic are empty so the caller
// can wire it unconditionally. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic}, nil
}

// Emit serializes the record as JSON and writes it to the Kafka topic, keyed by
// session so one session's records stay ordered within a partition.
func (p *KafkaProducer) Emit(ctx context.Context, rec *domain.Record) error {
	if p == nil || p.writer == nil || rec == nil {
		return nil
	}
	payload, err := json.Marshal(wireRecord{
		ID:           rec.ID,
		SessionID:    rec.SessionID,
		Action:       rec.Action,
		Status:       rec.Status,
		PhoneNumber:  rec.PhoneNumber,
		MessageID:    rec.MessageID,
		Detail:       rec.Detail,
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(rec.SessionID),
		Value: payload,
	})
}

// Close closes the Kafka writer. Safe to call multiple times and on nil.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// wireRecord is the JSON shape published to Kafka and consumed by the worker.
type wireRecord struct {
	ID           string `json:"id"`
	SessionID    string `json:"sessionId"`
	Action       string `json:"action"`
	Status       string `json:"status"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	Detail       string `json:"detail,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// Package events publishes membership events to kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/tendant/teamspace/pkg/domain"
)

// Type names a membership event.
type Type string

const (
	MembershipCreated Type = "membership.created"
	MembershipDeleted Type = "membership.deleted"
	WorkspaceCreated  Type = "workspace.created"
)

// MembershipEvent is the payload written for membership changes.
type MembershipEvent struct {
	Type        Type                  `json:"type"`
	WorkspaceID uuid.UUID             `json:"workspace_id"`
	UserID      uuid.UUID             `json:"user_id"`
	Role        domain.MembershipRole `json:"role,omitempty"`
	At          time.Time             `json:"at"`
}

// Marshal encodes the event as JSON.
func (e MembershipEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers membership events.
type Publisher interface {
	Publish(ctx context.Context, event MembershipEvent) error
	Close() error
}

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes membership events to a kafka topic, keyed by
// workspace id so events for one workspace stay ordered.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event MembershipEvent) error {
	value, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.WorkspaceID.String()),
		Value: value,
		Time:  event.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, MembershipEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

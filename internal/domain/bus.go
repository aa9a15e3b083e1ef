package domain

import (
	"context"
)

// EventBus carries engine events to external collaborators (notification
// dispatch, booking blocking, schedulers). Supports Go channels for a
// single-node deployment or NATS for distributed ones. Dispatch is
// fire-and-forget; retry policy belongs to the consumer side.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the enforcement pipeline.
const (
	TopicActionDispatched  = "warden.enforcement.action"
	TopicBookingBlocked    = "warden.enforcement.blocked"
	TopicViolationRecorded = "warden.violation.recorded"
	TopicComplianceChanged = "warden.compliance.changed"
	TopicRecheckRequested  = "warden.compliance.recheck"
)

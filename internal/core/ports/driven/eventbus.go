package driven

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// EventHandler processes one delivered event.
// Returning an error leaves the event eligible for redelivery.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers engine events.
// Delivery is at-least-once; handlers must tolerate duplicates.
type EventBus interface {
	// Publish sends an event to a topic.
	Publish(ctx context.Context, topic string, event domain.Event) error

	// Subscribe registers handler for topic within a consumer group and blocks,
	// delivering events until ctx is cancelled or the subscription fails.
	// A handler error stops delivery and is returned, leaving the event unacknowledged.
	Subscribe(ctx context.Context, topic, groupID string, handler EventHandler) error

	// Close releases resources.
	Close() error
}

package providers

import (
	"context"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to batch
// progress events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.BatchEvent) error

	// Subscribe subscribes to events on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.BatchEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelBatchUpdates carries every batch event
	EventChannelBatchUpdates = "batch:updates"

	// EventChannelUserPrefix is the prefix for per-user channels
	EventChannelUserPrefix = "batch:user:"
)

// GetUserChannel returns the channel for one user's batch events
func GetUserChannel(userID string) string {
	return EventChannelUserPrefix + userID
}

package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
)

const subscriberBuffer = 100

// fanout delivers events to the local subscribers of each channel. A full
// subscriber drops the event rather than blocking the publisher.
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.BatchEvent]struct{}
	closed      bool
}

func newFanout() *fanout {
	return &fanout{subscribers: make(map[string]map[chan *entities.BatchEvent]struct{})}
}

func (f *fanout) add(channel string) (chan *entities.BatchEvent, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan *entities.BatchEvent, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, 0
	}
	if f.subscribers[channel] == nil {
		f.subscribers[channel] = make(map[chan *entities.BatchEvent]struct{})
	}
	f.subscribers[channel][ch] = struct{}{}
	return ch, len(f.subscribers[channel])
}

// remove closes ch and returns how many subscribers remain on channel.
func (f *fanout) remove(channel string, ch chan *entities.BatchEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := f.subscribers[channel]
	if _, ok := subs[ch]; !ok {
		return len(subs)
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, channel)
	}
	return len(subs)
}

func (f *fanout) broadcast(channel string, event *entities.BatchEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subscribers[channel] {
		select {
		case ch <- event:
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Subscriber channel full, skipping event")
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for channel, subs := range f.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(f.subscribers, channel)
	}
	f.closed = true
}

// MemoryEventBus is a single-process EventBus used when Redis is off.
type MemoryEventBus struct {
	fanout *fanout
	done   chan struct{}
	once   sync.Once
}

// NewMemoryEventBus creates a new in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{
		fanout: newFanout(),
		done:   make(chan struct{}),
	}
}

// Publish delivers the event to current subscribers of channel
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.BatchEvent) error {
	select {
	case <-b.done:
		return errors.New("event bus closed")
	default:
	}
	b.fanout.broadcast(channel, event)
	return nil
}

// Subscribe subscribes to events on a channel until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.BatchEvent, error) {
	select {
	case <-b.done:
		return nil, errors.New("event bus closed")
	default:
	}

	ch, _ := b.fanout.add(channel)
	go func() {
		select {
		case <-ctx.Done():
			b.fanout.remove(channel, ch)
		case <-b.done:
		}
	}()
	return ch, nil
}

// Close closes every subscription
func (b *MemoryEventBus) Close() error {
	b.once.Do(func() {
		close(b.done)
		b.fanout.closeAll()
	})
	return nil
}

package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the per-subscriber channel capacity used when the
// configured buffer is not positive.
const DefaultSendBuffer = 64

// Broker delivers events to attached subscribers on a best-effort basis.
// Delivery is one non-blocking send attempt per subscriber; a subscriber
// whose buffer is full is detached and its channel closed during the same
// publish pass.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	buffer      int
	logger      *slog.Logger
}

// NewBroker creates a broker with the given per-subscriber buffer size.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]chan Event),
		buffer:      buffer,
		logger:      logger,
	}
}

// Attach registers a new subscriber and returns its id and receive channel.
// The channel is closed when the subscriber is detached.
func (b *Broker) Attach() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	recordSubscribers(b.Count())
	b.logger.Debug("subscriber attached", "subscriber_id", id)
	return id, ch
}

// Detach removes a subscriber and closes its channel. Detaching an unknown
// id is a no-op.
func (b *Broker) Detach(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	close(ch)
	recordSubscribers(b.Count())
	b.logger.Debug("subscriber detached", "subscriber_id", id)
}

// Publish delivers the event to every subscriber attached at the start of
// the pass. Subscribers that cannot accept the event are dropped. Publish
// never blocks on a slow subscriber.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	targets := make(map[string]chan Event, len(b.subscribers))
	for id, ch := range b.subscribers {
		targets[id] = ch
	}
	b.mu.RUnlock()

	var stale []string
	for id, ch := range targets {
		select {
		case ch <- ev:
		default:
			stale = append(stale, id)
		}
	}

	recordEventPublished(string(ev.Kind))

	if len(stale) == 0 {
		return
	}
	b.mu.Lock()
	for _, id := range stale {
		ch, ok := b.subscribers[id]
		if !ok {
			// Already detached by the subscriber itself.
			continue
		}
		delete(b.subscribers, id)
		close(ch)
		recordDroppedSubscriber()
		b.logger.Warn("dropping slow subscriber", "subscriber_id", id, "event_kind", ev.Kind)
	}
	b.mu.Unlock()

	recordSubscribers(b.Count())
}

// Count returns the number of attached subscribers.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Package broadcast fans pipeline events out to realtime subscribers.
package broadcast

import "time"

// EventKind identifies the class of a realtime event.
type EventKind string

// Realtime event kinds.
const (
	EventContextUpdate         EventKind = "context_update"
	EventMessageUpdate         EventKind = "message_update"
	EventWorkflowUpdate        EventKind = "workflow_update"
	EventConnectionEstablished EventKind = "connection_established"
	EventEcho                  EventKind = "echo"
)

// Event is a single realtime update pushed to subscribers.
type Event struct {
	Kind      EventKind      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event of the given kind stamped with the current time.
func NewEvent(kind EventKind, data map[string]any) Event {
	return Event{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Sink receives events emitted by the pipeline and its stores.
type Sink interface {
	Publish(ev Event)
}

// NopSink discards all events. It lets stores run without a broker attached.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Event) {}

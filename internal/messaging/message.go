// Package messaging implements directed agent-to-agent messaging with
// per-recipient queues, a global history and collaboration sessions.
package messaging

import "time"

// MessageType identifies the intent of a message.
type MessageType string

// Message types.
const (
	TypeInfoRequest          MessageType = "info_request"
	TypeDataShare            MessageType = "data_share"
	TypeCollaborationRequest MessageType = "collaboration_request"
	TypeStatusUpdate         MessageType = "status_update"
)

// IsValid checks if the message type is valid.
func (t MessageType) IsValid() bool {
	switch t {
	case TypeInfoRequest, TypeDataShare, TypeCollaborationRequest, TypeStatusUpdate:
		return true
	}
	return false
}

// Priority represents message delivery priority.
type Priority string

// Message priorities.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is a directed agent-to-agent message. Once sent it is immutable.
type Message struct {
	ID               string         `json:"message_id"`
	Sender           string         `json:"sender"`
	Receiver         string         `json:"receiver"`
	Type             MessageType    `json:"type"`
	Content          map[string]any `json:"content"`
	Priority         Priority       `json:"priority"`
	CreatedAt        time.Time      `json:"timestamp"`
	RequiresResponse bool           `json:"requires_response"`
	CorrelationID    string         `json:"correlation_id,omitempty"`
}

// Session is a collaboration between an initiator and a set of participants.
type Session struct {
	ID           string         `json:"id"`
	Initiator    string         `json:"initiator"`
	Participants []string       `json:"participants"`
	Task         string         `json:"task"`
	Context      map[string]any `json:"context"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	Messages     []Message      `json:"messages"`
}

// Stats summarizes exchange activity for the API.
type Stats struct {
	TotalMessages  int            `json:"total_messages"`
	ByType         map[string]int `json:"by_type"`
	ByPriority     map[string]int `json:"by_priority"`
	BySender       map[string]int `json:"by_sender"`
	QueuedMessages int            `json:"queued_messages"`
	ActiveSessions int            `json:"active_sessions"`
}

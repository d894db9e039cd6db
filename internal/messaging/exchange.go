package messaging

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warroomhq/warroom/internal/broadcast"
)

// DefaultHistoryLimit caps the global message history when no limit is
// configured.
const DefaultHistoryLimit = 1000

// SessionStatusActive is the status every session starts with. Sessions do
// not currently transition out of it.
const SessionStatusActive = "active"

// Exchange routes messages between agents. Queues are destructive-read:
// a drain hands each queued message to the caller exactly once.
type Exchange struct {
	mu           sync.Mutex
	queues       map[string][]Message
	history      []Message
	historyLimit int
	sessions     map[string]Session
	capabilities map[string][]string
	sink         broadcast.Sink
	logger       *slog.Logger
}

// NewExchange creates an exchange. A non-positive history limit falls back
// to DefaultHistoryLimit, a nil sink to the discarding one.
func NewExchange(historyLimit int, sink broadcast.Sink, logger *slog.Logger) *Exchange {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if sink == nil {
		sink = broadcast.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchange{
		queues:       make(map[string][]Message),
		historyLimit: historyLimit,
		sessions:     make(map[string]Session),
		capabilities: make(map[string][]string),
		sink:         sink,
		logger:       logger,
	}
}

// RegisterCapabilities records what an agent can do. The registry is
// introspective only; it does not gate message delivery.
func (e *Exchange) RegisterCapabilities(agentID string, capabilities []string) {
	e.mu.Lock()
	e.capabilities[agentID] = append([]string(nil), capabilities...)
	e.mu.Unlock()
	e.logger.Info("agent capabilities registered", "agent_id", agentID, "capabilities", capabilities)
}

// Capabilities returns a copy of the capability registry.
func (e *Exchange) Capabilities() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string][]string, len(e.capabilities))
	for id, caps := range e.capabilities {
		out[id] = append([]string(nil), caps...)
	}
	return out
}

// Send queues a message for its receiver and appends it to the history.
// Missing id, timestamp, type and priority are filled in. Unknown receivers
// simply accumulate a queue; sending never fails.
func (e *Exchange) Send(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = TypeInfoRequest
	}
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}

	e.mu.Lock()
	e.queues[msg.Receiver] = append(e.queues[msg.Receiver], msg)
	e.history = append(e.history, msg)
	if len(e.history) > e.historyLimit {
		e.history = e.history[len(e.history)-e.historyLimit:]
	}
	e.mu.Unlock()

	recordMessageSent(string(msg.Type), string(msg.Priority))
	e.logger.Info("message sent",
		"message_id", msg.ID,
		"sender", msg.Sender,
		"receiver", msg.Receiver,
		"message_type", msg.Type,
	)
	e.sink.Publish(broadcast.NewEvent(broadcast.EventMessageUpdate, map[string]any{
		"message_id": msg.ID,
		"sender":     msg.Sender,
		"receiver":   msg.Receiver,
		"type":       string(msg.Type),
		"priority":   string(msg.Priority),
	}))
	return msg
}

// Drain removes and returns all queued messages for an agent in FIFO order.
// Each message is delivered at most once across concurrent drains.
func (e *Exchange) Drain(agentID string) []Message {
	e.mu.Lock()
	msgs := e.queues[agentID]
	delete(e.queues, agentID)
	e.mu.Unlock()
	return msgs
}

// InitiateCollaboration creates a session and sends a collaboration request
// to every participant except the initiator. It returns the session id
// without waiting for any response.
func (e *Exchange) InitiateCollaboration(initiator string, participants []string, task string, context map[string]any) string {
	session := Session{
		ID:           uuid.NewString(),
		Initiator:    initiator,
		Participants: append([]string(nil), participants...),
		Task:         task,
		Context:      context,
		Status:       SessionStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	// Register the session before fanning out requests so a receiver that
	// drains immediately can already resolve the correlation id.
	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	var sent []Message
	for _, participant := range participants {
		if participant == initiator {
			continue
		}
		sent = append(sent, e.Send(Message{
			Sender:   initiator,
			Receiver: participant,
			Type:     TypeCollaborationRequest,
			Content: map[string]any{
				"collaboration_id": session.ID,
				"task":             task,
				"context":          context,
			},
			RequiresResponse: true,
			CorrelationID:    session.ID,
		}))
	}

	if len(sent) > 0 {
		e.mu.Lock()
		session.Messages = sent
		e.sessions[session.ID] = session
		e.mu.Unlock()
	}

	recordCollaborationStarted()
	e.logger.Info("collaboration started",
		"session_id", session.ID,
		"initiator", initiator,
		"participants", participants,
		"task", task,
	)
	return session.ID
}

// History returns up to limit most recent messages in chronological order.
// A non-positive limit returns the full retained history.
func (e *Exchange) History(limit int) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]Message(nil), e.history[len(e.history)-n:]...)
}

// Sessions returns all collaboration sessions, newest first.
func (e *Exchange) Sessions() []Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		s.Participants = append([]string(nil), s.Participants...)
		s.Messages = append([]Message(nil), s.Messages...)
		out = append(out, s)
	}
	sortSessions(out)
	return out
}

// Stats summarizes the retained history and session table.
func (e *Exchange) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		TotalMessages:  len(e.history),
		ByType:         make(map[string]int),
		ByPriority:     make(map[string]int),
		BySender:       make(map[string]int),
		ActiveSessions: len(e.sessions),
	}
	for _, msg := range e.history {
		stats.ByType[string(msg.Type)]++
		stats.ByPriority[string(msg.Priority)]++
		stats.BySender[msg.Sender]++
	}
	for _, queue := range e.queues {
		stats.QueuedMessages += len(queue)
	}
	return stats
}

func sortSessions(s []Session) {
	sort.Slice(s, func(i, j int) bool {
		return s[i].CreatedAt.After(s[j].CreatedAt)
	})
}

package domain

import "time"

// ExecutionStatus represents the state of a single stage execution.
type ExecutionStatus string

// Execution statuses.
const (
	ExecutionStatusIdle          ExecutionStatus = "idle"
	ExecutionStatusRunning       ExecutionStatus = "running"
	ExecutionStatusWaiting       ExecutionStatus = "waiting"
	ExecutionStatusCollaborating ExecutionStatus = "collaborating"
	ExecutionStatusSuccess       ExecutionStatus = "success"
	ExecutionStatusError         ExecutionStatus = "error"
)

// IsValid checks if the execution status is valid.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusIdle, ExecutionStatusRunning, ExecutionStatusWaiting,
		ExecutionStatusCollaborating, ExecutionStatusSuccess, ExecutionStatusError:
		return true
	}
	return false
}

// IsTerminal returns true once the execution has finished.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError
}

// LogEntry is a single timestamped activity line recorded by a stage.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Execution represents one run of a pipeline stage against an incident.
//
// Output values are write-once: a stage builds the map and never mutates it
// after setting, so Clone copies the top level only.
type Execution struct {
	ID               string          `json:"id"`
	IncidentID       string          `json:"incident_id"`
	AgentID          string          `json:"agent_id"`
	AgentName        string          `json:"agent_name"`
	Status           ExecutionStatus `json:"status"`
	Progress         int             `json:"progress"`
	Output           map[string]any  `json:"output,omitempty"`
	Error            string          `json:"error,omitempty"`
	MessagesSent     int             `json:"messages_sent"`
	MessagesReceived int             `json:"messages_received"`
	ContextEnhanced  bool            `json:"context_enhanced"`
	InsightsUsed     map[string]any  `json:"contextual_insights_used,omitempty"`
	Sessions         []string        `json:"collaboration_sessions,omitempty"`
	Logs             []LogEntry      `json:"logs,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	DurationMS       int64           `json:"duration_ms"`
}

// Clone returns a copy of the execution safe to hand outside the coordinator.
func (e *Execution) Clone() *Execution {
	out := *e
	if e.Output != nil {
		out.Output = make(map[string]any, len(e.Output))
		for k, v := range e.Output {
			out.Output[k] = v
		}
	}
	if e.InsightsUsed != nil {
		out.InsightsUsed = make(map[string]any, len(e.InsightsUsed))
		for k, v := range e.InsightsUsed {
			out.InsightsUsed[k] = v
		}
	}
	if e.Sessions != nil {
		out.Sessions = append([]string(nil), e.Sessions...)
	}
	if e.Logs != nil {
		out.Logs = append([]LogEntry(nil), e.Logs...)
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

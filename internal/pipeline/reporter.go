package pipeline

import (
	"fmt"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/knowledge"
)

// execHandle lets a running stage mutate its execution and incident
// records. Every write goes through the coordinator mutex, so concurrent
// API reads always see consistent state.
type execHandle struct {
	c    *Coordinator
	rec  *incidentRecord
	exec *domain.Execution
}

func (h *execHandle) Progress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	h.c.mu.Lock()
	h.exec.Progress = pct
	h.c.mu.Unlock()
}

func (h *execHandle) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	h.c.mu.Lock()
	h.exec.Logs = append(h.exec.Logs, domain.LogEntry{
		Timestamp: time.Now().UTC(),
		Message:   line,
	})
	h.c.mu.Unlock()

	h.c.logger.Info(line, "incident_id", h.exec.IncidentID, "agent_id", h.exec.AgentID)
}

func (h *execHandle) SetOutput(output map[string]any) {
	h.c.mu.Lock()
	h.exec.Output = output
	h.c.mu.Unlock()
}

func (h *execHandle) AddSession(sessionID string) {
	h.c.mu.Lock()
	h.exec.Sessions = append(h.exec.Sessions, sessionID)
	h.c.mu.Unlock()
}

func (h *execHandle) AddMessagesSent(n int) {
	h.c.mu.Lock()
	h.exec.MessagesSent += n
	h.c.mu.Unlock()
}

func (h *execHandle) RecordInsights(view knowledge.InsightView) {
	h.c.mu.Lock()
	h.exec.InsightsUsed = map[string]any{
		"shared_knowledge":     view.SharedKnowledge,
		"peer_insights":        view.PeerInsights,
		"correlation_patterns": view.Correlations,
		"context_confidence":   view.AggregateConfidence,
	}
	h.exec.ContextEnhanced = len(view.PeerInsights) > 0
	h.c.mu.Unlock()
}

func (h *execHandle) MutateIncident(fn func(*domain.Incident)) {
	h.c.mu.Lock()
	fn(h.rec.incident)
	h.rec.incident.UpdatedAt = time.Now().UTC()
	h.c.mu.Unlock()
}

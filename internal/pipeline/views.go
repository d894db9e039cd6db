package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
)

// Detail is a point-in-time copy of one incident with its stage executions.
type Detail struct {
	Incident   *domain.Incident             `json:"incident"`
	Executions map[string]*domain.Execution `json:"executions"`
}

// AgentInfo describes one roster agent for the API surface.
type AgentInfo struct {
	ID           string   `json:"agent_id"`
	Name         string   `json:"agent_name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// AgentStats aggregates the retained execution history of one agent.
type AgentStats struct {
	TotalExecutions      int        `json:"total_executions"`
	SuccessfulExecutions int        `json:"successful_executions"`
	SuccessRate          float64    `json:"success_rate"`
	AverageDurationMS    float64    `json:"average_duration_ms"`
	ContextEnhanced      int        `json:"context_enhanced_executions"`
	MessagesTotal        int        `json:"messages_total"`
	Collaborations       int        `json:"collaborations_total"`
	AvgMessages          float64    `json:"avg_messages_per_execution"`
	LastActivity         *time.Time `json:"last_activity,omitempty"`
}

// Stats summarizes pipeline activity for the dashboard.
type Stats struct {
	ActiveIncidents int                   `json:"active_incidents"`
	TotalIncidents  int                   `json:"total_incidents"`
	ByStatus        map[string]int        `json:"by_status"`
	ByCategory      map[string]int        `json:"by_category"`
	Agents          map[string]AgentStats `json:"agents"`
}

// Get returns a deep copy of one incident with its executions, looking at
// active incidents first and then history.
func (c *Coordinator) Get(id string) (*Detail, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.active[id]
	if !ok {
		for i := len(c.history) - 1; i >= 0; i-- {
			if c.history[i].incident.ID == id {
				rec = c.history[i]
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, ErrIncidentNotFound)
	}
	return rec.detail(), nil
}

// Recent returns up to limit incidents newest first, along with the
// all-time triggered count. A non-positive limit returns everything still
// retained.
func (c *Coordinator) Recent(limit int) ([]*domain.Incident, int) {
	c.mu.RLock()
	incidents := make([]*domain.Incident, 0, len(c.active)+len(c.history))
	for _, rec := range c.active {
		incidents = append(incidents, rec.incident.Clone())
	}
	for _, rec := range c.history {
		incidents = append(incidents, rec.incident.Clone())
	}
	total := c.triggered
	c.mu.RUnlock()

	sort.Slice(incidents, func(i, j int) bool {
		if incidents[i].CreatedAt.Equal(incidents[j].CreatedAt) {
			return incidents[i].ID > incidents[j].ID
		}
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents, total
}

// AgentHistory returns up to limit past executions for one agent, newest
// first. Unknown agents yield ErrAgentNotFound.
func (c *Coordinator) AgentHistory(agentID string, limit int) ([]*domain.Execution, error) {
	if !c.knownAgent(agentID) {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	hist := c.agentHistory[agentID]
	out := make([]*domain.Execution, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		out = append(out, hist[i].Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Agents describes the roster in pipeline order.
func (c *Coordinator) Agents() []AgentInfo {
	out := make([]AgentInfo, 0, len(c.roster))
	for _, ag := range c.roster {
		out = append(out, AgentInfo{
			ID:           ag.ID(),
			Name:         ag.Name(),
			Description:  ag.Description(),
			Capabilities: ag.Capabilities(),
		})
	}
	return out
}

// Stats aggregates pipeline counters and per-agent execution history.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		ActiveIncidents: len(c.active),
		TotalIncidents:  c.triggered,
		ByStatus:        make(map[string]int, len(c.finished)),
		ByCategory:      make(map[string]int, len(c.byCategory)),
		Agents:          make(map[string]AgentStats, len(c.agentHistory)),
	}
	for status, n := range c.finished {
		stats.ByStatus[status] = n
	}
	for category, n := range c.byCategory {
		stats.ByCategory[category] = n
	}
	for agentID, hist := range c.agentHistory {
		stats.Agents[agentID] = rollupAgent(hist)
	}
	return stats
}

func (c *Coordinator) knownAgent(agentID string) bool {
	for _, ag := range c.roster {
		if ag.ID() == agentID {
			return true
		}
	}
	return false
}

// detail deep-copies the record. Callers hold c.mu.
func (r *incidentRecord) detail() *Detail {
	executions := make(map[string]*domain.Execution, len(r.executions))
	for id, exec := range r.executions {
		executions[id] = exec.Clone()
	}
	return &Detail{Incident: r.incident.Clone(), Executions: executions}
}

func rollupAgent(hist []*domain.Execution) AgentStats {
	var as AgentStats
	as.TotalExecutions = len(hist)

	var durationMS int64
	for _, exec := range hist {
		if exec.Status == domain.ExecutionStatusSuccess {
			as.SuccessfulExecutions++
		}
		if exec.DurationMS > 0 {
			durationMS += exec.DurationMS
		}
		as.MessagesTotal += exec.MessagesSent + exec.MessagesReceived
		as.Collaborations += len(exec.Sessions)
		if exec.ContextEnhanced {
			as.ContextEnhanced++
		}
	}

	if as.TotalExecutions > 0 {
		total := float64(as.TotalExecutions)
		as.SuccessRate = float64(as.SuccessfulExecutions) / total * 100
		as.AverageDurationMS = float64(durationMS) / total
		as.AvgMessages = float64(as.MessagesTotal) / total

		last := hist[len(hist)-1]
		if last.CompletedAt != nil {
			t := *last.CompletedAt
			as.LastActivity = &t
		}
	}
	return as
}

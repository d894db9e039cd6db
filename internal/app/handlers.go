package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/pipeline"
	"github.com/warroomhq/warroom/internal/pkg/httputil"
	"github.com/warroomhq/warroom/internal/scenario"
	"github.com/warroomhq/warroom/internal/version"
)

// Listing limits.
const (
	DefaultIncidentsLimit    = 10
	MaxIncidentsLimit        = 100
	DefaultAgentHistoryLimit = 20
	MaxAgentHistoryLimit     = 100
	DefaultMessagesLimit     = 50
	MaxMessagesLimit         = 500
)

var errorMappings = []httputil.ErrorMapping{
	{Error: pipeline.ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: pipeline.ErrAgentNotFound, Status: http.StatusNotFound},
	{Error: pipeline.ErrShutdown, Status: http.StatusServiceUnavailable},
}

// TriggerIncidentRequest represents the request body for triggering an
// incident. Every field is optional; empty fields fall back to the chosen
// scenario.
type TriggerIncidentRequest struct {
	Title       string `json:"title" validate:"omitempty,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Severity    string `json:"severity" validate:"omitempty,oneof=critical high medium low"`
	Category    string `json:"category" validate:"omitempty,oneof=database security container network api"`
}

// ToTrigger converts the request to a pipeline trigger.
func (r *TriggerIncidentRequest) ToTrigger() pipeline.TriggerRequest {
	return pipeline.TriggerRequest{
		Title:       r.Title,
		Description: r.Description,
		Severity:    domain.Severity(r.Severity),
		Category:    domain.Category(r.Category),
	}
}

// triggerIncidentHandler handles POST /incidents requests. The workflow runs
// in the background; the response carries the initial incident snapshot.
func (a *App) triggerIncidentHandler(w http.ResponseWriter, r *http.Request) {
	var req TriggerIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := a.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := a.coordinator.Trigger(req.ToTrigger())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, map[string]any{
		"incident_id":      inc.ID,
		"workflow_id":      inc.WorkflowID,
		"context_id":       inc.ContextID,
		"status":           "workflow_started",
		"title":            inc.Title,
		"severity":         inc.Severity,
		"category":         inc.Category,
		"affected_systems": len(inc.AffectedSystems),
		"message":          fmt.Sprintf("Incident %s workflow started", inc.ID),
	})
}

// listIncidentsHandler handles GET /incidents requests.
func (a *App) listIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultIncidentsLimit, MaxIncidentsLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	incidents, total := a.coordinator.Recent(limit)
	httputil.Success(w, http.StatusOK, map[string]any{
		"incidents":       incidents,
		"total_incidents": total,
	})
}

// getIncidentHandler handles GET /incidents/{id} requests. The response
// joins the incident record with its knowledge context and a per-agent
// messaging breakdown.
func (a *App) getIncidentHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := a.coordinator.Get(id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"incident":   detail.Incident,
		"executions": detail.Executions,
		"context":    a.contextSection(detail.Incident.ContextID),
		"messaging":  messagingSection(detail.Executions),
	})
}

// listAgentsHandler handles GET /agents requests.
func (a *App) listAgentsHandler(w http.ResponseWriter, _ *http.Request) {
	stats := a.coordinator.Stats()

	infos := a.coordinator.Agents()
	cards := make(map[string]any, len(infos))
	for _, info := range infos {
		cards[info.ID] = map[string]any{
			"agent_id":           info.ID,
			"agent_name":         info.Name,
			"description":        info.Description,
			"capabilities":       info.Capabilities,
			"status":             "ready",
			"statistics":         stats.Agents[info.ID],
			"recent_performance": a.recentPerformance(info.ID),
		}
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"agents":       cards,
		"total_agents": len(infos),
	})
}

func (a *App) recentPerformance(agentID string) map[string]any {
	recent, err := a.coordinator.AgentHistory(agentID, 1)
	if err != nil || len(recent) == 0 {
		return map[string]any{
			"last_execution_status": domain.ExecutionStatusIdle,
			"last_duration_ms":      int64(0),
			"last_progress":         0,
		}
	}
	last := recent[0]
	return map[string]any{
		"last_execution_status": last.Status,
		"last_duration_ms":      last.DurationMS,
		"last_progress":         last.Progress,
	}
}

// agentHistoryHandler handles GET /agents/{agent_id}/history requests.
func (a *App) agentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")

	limit, err := parseLimit(r, DefaultAgentHistoryLimit, MaxAgentHistoryLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	executions, err := a.coordinator.AgentHistory(agentID, 0)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	total := len(executions)
	if len(executions) > limit {
		executions = executions[:limit]
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"agent_id":          agentID,
		"total_executions":  total,
		"recent_executions": executions,
	})
}

// listContextsHandler handles GET /contexts requests.
func (a *App) listContextsHandler(w http.ResponseWriter, _ *http.Request) {
	snapshots := a.registry.List()

	var insights, versions int
	var confidenceSum float64
	var confidenceN int
	for _, snap := range snapshots {
		insights += len(snap.Insights)
		versions += snap.Version
		for _, ins := range snap.Insights {
			confidenceSum += ins.Confidence
			confidenceN++
		}
	}
	var avgConfidence float64
	if confidenceN > 0 {
		avgConfidence = confidenceSum / float64(confidenceN)
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"total_contexts": len(snapshots),
		"contexts":       snapshots,
		"statistics": map[string]any{
			"total_insights":         insights,
			"avg_confidence":         avgConfidence,
			"context_versions_total": versions,
		},
	})
}

// listMessagesHandler handles GET /messages requests.
func (a *App) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultMessagesLimit, MaxMessagesLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	stats := a.exchange.Stats()
	capabilities := a.exchange.Capabilities()
	var totalCapabilities int
	for _, caps := range capabilities {
		totalCapabilities += len(caps)
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"total_messages":  stats.TotalMessages,
		"recent_messages": a.exchange.History(limit),
		"statistics": map[string]any{
			"by_type":         stats.ByType,
			"by_priority":     stats.ByPriority,
			"by_sender":       stats.BySender,
			"queued_messages": stats.QueuedMessages,
		},
		"system": map[string]any{
			"active_sessions":    stats.ActiveSessions,
			"registered_agents":  len(capabilities),
			"total_capabilities": totalCapabilities,
		},
	})
}

// listCollaborationsHandler handles GET /collaborations requests.
func (a *App) listCollaborationsHandler(w http.ResponseWriter, _ *http.Request) {
	sessions := a.exchange.Sessions()
	now := time.Now().UTC()

	views := make([]map[string]any, 0, len(sessions))
	var participants int
	var durationSum float64
	for _, s := range sessions {
		duration := now.Sub(s.CreatedAt).Seconds()
		participants += len(s.Participants)
		durationSum += duration
		views = append(views, map[string]any{
			"session_id":        s.ID,
			"initiator":         s.Initiator,
			"participants":      s.Participants,
			"participant_count": len(s.Participants),
			"task":              s.Task,
			"context":           s.Context,
			"status":            s.Status,
			"created_at":        s.CreatedAt,
			"message_count":     len(s.Messages),
			"duration_seconds":  duration,
		})
	}

	statistics := map[string]any{
		"avg_participants":     0.0,
		"avg_duration_seconds": 0.0,
	}
	if len(sessions) > 0 {
		statistics["avg_participants"] = float64(participants) / float64(len(sessions))
		statistics["avg_duration_seconds"] = durationSum / float64(len(sessions))
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"total_collaborations": len(sessions),
		"collaborations":       views,
		"statistics":           statistics,
	})
}

// statsHandler handles GET /stats requests with the dashboard rollup.
func (a *App) statsHandler(w http.ResponseWriter, _ *http.Request) {
	ps := a.coordinator.Stats()
	ms := a.exchange.Stats()
	snapshots := a.registry.List()

	var insights, versions int
	var confidenceSum float64
	var confidenceN int
	for _, snap := range snapshots {
		insights += len(snap.Insights)
		versions += snap.Version
		for _, ins := range snap.Insights {
			confidenceSum += ins.Confidence
			confidenceN++
		}
	}
	var avgConfidence float64
	if confidenceN > 0 {
		avgConfidence = confidenceSum / float64(confidenceN)
	}

	var successRate float64
	if ps.TotalIncidents > 0 {
		successRate = float64(ps.ByStatus[string(domain.IncidentStatusResolved)]) / float64(ps.TotalIncidents) * 100
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"incidents": map[string]any{
			"total_all_time":       ps.TotalIncidents,
			"active":               ps.ActiveIncidents,
			"by_status":            ps.ByStatus,
			"by_category":          ps.ByCategory,
			"overall_success_rate": successRate,
		},
		"agents": ps.Agents,
		"knowledge": map[string]any{
			"total_contexts":         len(snapshots),
			"total_insights":         insights,
			"avg_confidence":         avgConfidence,
			"context_versions_total": versions,
		},
		"messaging": ms,
		"system": map[string]any{
			"version":              version.Version,
			"available_scenarios":  len(scenario.All()),
			"realtime_subscribers": a.broker.Count(),
			"uptime_seconds":       time.Since(a.startedAt).Seconds(),
		},
	})
}

// contextSection builds the knowledge part of an incident detail response.
// A missing context yields nil rather than an error; the incident record is
// still worth returning on its own.
func (a *App) contextSection(contextID string) map[string]any {
	snap, ok := a.registry.Get(contextID)
	if !ok {
		return nil
	}
	var confidenceSum float64
	for _, ins := range snap.Insights {
		confidenceSum += ins.Confidence
	}
	var avgConfidence float64
	if len(snap.Insights) > 0 {
		avgConfidence = confidenceSum / float64(len(snap.Insights))
	}
	return map[string]any{
		"context_id":           snap.ID,
		"context_type":         snap.ContextType,
		"context_version":      snap.Version,
		"insight_count":        len(snap.Insights),
		"avg_confidence":       avgConfidence,
		"correlation_patterns": snap.Correlations,
		"shared_knowledge":     snap.SharedKnowledge,
		"agent_insights":       snap.Insights,
	}
}

// messagingSection rolls the per-execution message counters up into the
// incident-level breakdown.
func messagingSection(executions map[string]*domain.Execution) map[string]any {
	breakdown := make(map[string]any, len(executions))
	var sent, received, collaborations int
	for agentID, exec := range executions {
		sent += exec.MessagesSent
		received += exec.MessagesReceived
		collaborations += len(exec.Sessions)
		breakdown[agentID] = map[string]any{
			"sent":           exec.MessagesSent,
			"received":       exec.MessagesReceived,
			"collaborations": len(exec.Sessions),
		}
	}
	return map[string]any{
		"messages_sent":     sent,
		"messages_received": received,
		"collaborations":    collaborations,
		"breakdown":         breakdown,
	}
}

// parseLimit reads the limit query parameter, applying the default when
// absent and clamping to the endpoint maximum.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if parsed > maxLimit {
		parsed = maxLimit
	}
	return parsed, nil
}

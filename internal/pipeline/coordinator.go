// Package pipeline coordinates the seven stage incident workflow.
//
// A triggered incident runs through the fixed stage order on its own
// goroutine. The coordinator owns every incident and execution record;
// stages mutate them only through the Reporter handle, which serializes
// writes behind the coordinator mutex so API reads stay race-free while
// a workflow is in flight.
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warroomhq/warroom/internal/agents"
	"github.com/warroomhq/warroom/internal/broadcast"
	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/knowledge"
	"github.com/warroomhq/warroom/internal/messaging"
	"github.com/warroomhq/warroom/internal/scenario"
)

// ContextTypeIncidentAnalysis is the knowledge context type created for
// every triggered incident.
const ContextTypeIncidentAnalysis = "incident_analysis"

// defaultShareConfidence backs shared data arriving without an explicit
// confidence score.
const defaultShareConfidence = 0.8

// Config contains coordinator tuning knobs.
type Config struct {
	StageTimeout          time.Duration
	PacingMin             time.Duration
	PacingMax             time.Duration
	FailFast              bool
	HistoryLimit          int
	ExecutionHistoryLimit int
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		StageTimeout:          30 * time.Second,
		PacingMin:             500 * time.Millisecond,
		PacingMax:             1500 * time.Millisecond,
		FailFast:              false,
		HistoryLimit:          100,
		ExecutionHistoryLimit: 50,
	}
}

// TriggerRequest selects and optionally overrides the scenario for a new
// incident. Zero-value fields fall back to the chosen scenario.
type TriggerRequest struct {
	Title       string
	Description string
	Severity    domain.Severity
	Category    domain.Category
}

// Coordinator drives incidents through the agent roster in order.
type Coordinator struct {
	cfg       Config
	registry  *knowledge.Registry
	exchange  *messaging.Exchange
	scenarios *scenario.Source
	roster    []agents.Agent
	pacer     agents.Pacer
	sink      broadcast.Sink
	logger    *slog.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.RWMutex
	active       map[string]*incidentRecord
	history      []*incidentRecord
	agentHistory map[string][]*domain.Execution
	triggered    int
	finished     map[string]int
	byCategory   map[string]int
}

// incidentRecord is the coordinator's live view of one incident.
type incidentRecord struct {
	incident   *domain.Incident
	executions map[string]*domain.Execution
}

// NewCoordinator creates a coordinator and registers the roster's
// capabilities with the messaging exchange.
func NewCoordinator(cfg Config, registry *knowledge.Registry, exchange *messaging.Exchange, scenarios *scenario.Source, roster []agents.Agent, pacer agents.Pacer, sink broadcast.Sink, logger *slog.Logger) *Coordinator {
	if pacer == nil {
		pacer = agents.NopPacer{}
	}
	if sink == nil {
		sink = broadcast.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	root, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:          cfg,
		registry:     registry,
		exchange:     exchange,
		scenarios:    scenarios,
		roster:       roster,
		pacer:        pacer,
		sink:         sink,
		logger:       logger,
		root:         root,
		cancel:       cancel,
		active:       make(map[string]*incidentRecord),
		agentHistory: make(map[string][]*domain.Execution),
		finished:     make(map[string]int),
		byCategory:   make(map[string]int),
	}

	for _, ag := range roster {
		exchange.RegisterCapabilities(ag.ID(), ag.Capabilities())
	}
	return c
}

// Trigger creates an incident from a scenario, starts its workflow on a
// separate goroutine and returns the initial incident snapshot without
// waiting for any stage to run.
func (c *Coordinator) Trigger(req TriggerRequest) (*domain.Incident, error) {
	sc := c.scenarios.Pick(req.Category)
	now := time.Now().UTC()

	inc := &domain.Incident{
		ID:              newIncidentID(now),
		WorkflowID:      uuid.NewString(),
		Title:           sc.Title,
		Description:     sc.Description,
		Severity:        sc.Severity,
		Category:        sc.Category,
		AffectedSystems: append([]string(nil), sc.AffectedSystems...),
		Status:          domain.IncidentStatusOpen,
		WorkflowStatus:  domain.WorkflowStatusInProgress,
		CompletedAgents: []string{},
		FailedAgents:    []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Title != "" {
		inc.Title = req.Title
	}
	if req.Description != "" {
		inc.Description = req.Description
	}
	if req.Severity != "" {
		inc.Severity = req.Severity
	}

	seed := map[string]any{
		"incident_metadata": map[string]any{
			"id":               inc.ID,
			"type":             string(inc.Category),
			"severity":         string(inc.Severity),
			"affected_systems": inc.AffectedSystems,
			"created_at":       inc.CreatedAt.Format(time.RFC3339),
		},
		"baseline_context": sc,
	}
	inc.ContextID = c.registry.Create(inc.ID, ContextTypeIncidentAnalysis, seed).ID

	rec := &incidentRecord{
		incident:   inc,
		executions: make(map[string]*domain.Execution, len(c.roster)),
	}

	c.mu.Lock()
	if c.root.Err() != nil {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	c.active[inc.ID] = rec
	c.triggered++
	c.byCategory[string(inc.Category)]++
	activeCount := len(c.active)
	c.wg.Add(1)
	c.mu.Unlock()

	recordIncidentTriggered(string(inc.Category))
	recordActiveIncidents(activeCount)

	c.logger.Info("incident triggered",
		"incident_id", inc.ID,
		"title", inc.Title,
		"severity", inc.Severity,
		"category", inc.Category,
		"context_id", inc.ContextID,
	)

	// Snapshot before the workflow goroutine can touch the record.
	snapshot := inc.Clone()
	go func() {
		defer c.wg.Done()
		c.run(rec)
	}()

	return snapshot, nil
}

// Shutdown stops accepting new incidents and waits for in-flight workflows
// to finish, or for ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the full stage sequence for one incident. A stage failure
// is contained; only infrastructure faults abort the workflow.
func (c *Coordinator) run(rec *incidentRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(rec, fmt.Errorf("workflow panic: %v", r))
		}
	}()

	start := time.Now()
	c.broadcastWorkflow(rec, "Workflow started")

	for _, ag := range c.roster {
		if c.root.Err() != nil {
			break
		}

		exec := c.beginStage(rec, ag)
		c.broadcastWorkflow(rec, fmt.Sprintf("Starting %s", ag.Name()))

		if err := c.drainInbox(rec, ag.ID(), exec); err != nil {
			c.fail(rec, fmt.Errorf("relay inbox for %s: %w", ag.ID(), err))
			return
		}

		err := c.executeStage(rec, ag, exec)
		c.recordOutcome(rec, ag, exec, err)

		if err != nil {
			c.broadcastWorkflow(rec, fmt.Sprintf("%s failed: %s", ag.Name(), err))
			if c.cfg.FailFast {
				c.logger.Warn("stopping workflow after stage failure",
					"incident_id", rec.incident.ID,
					"stage", ag.ID(),
				)
				break
			}
		} else {
			c.broadcastWorkflow(rec, fmt.Sprintf("%s completed successfully", ag.Name()))
		}

		if err := c.pacer.Pause(c.root, c.cfg.PacingMin, c.cfg.PacingMax); err != nil {
			break
		}
	}

	c.finalize(rec, time.Since(start))
}

// beginStage records a fresh running execution so inbox processing and
// live status reads already see the stage.
func (c *Coordinator) beginStage(rec *incidentRecord, ag agents.Agent) *domain.Execution {
	exec := &domain.Execution{
		ID:         uuid.NewString(),
		IncidentID: rec.incident.ID,
		AgentID:    ag.ID(),
		AgentName:  ag.Name(),
		Status:     domain.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	c.mu.Lock()
	rec.incident.CurrentAgent = ag.ID()
	rec.incident.UpdatedAt = exec.StartedAt
	rec.executions[ag.ID()] = exec
	c.mu.Unlock()
	return exec
}

// drainInbox applies queued peer messages to the stage before it runs.
// Shared data is relayed into the knowledge context under the sender's id,
// so a publish failure is an infrastructure fault, not a stage failure.
func (c *Coordinator) drainInbox(rec *incidentRecord, agentID string, exec *domain.Execution) error {
	msgs := c.exchange.Drain(agentID)
	if len(msgs) == 0 {
		return nil
	}

	type relay struct {
		sender     string
		data       map[string]any
		confidence float64
	}
	var relays []relay

	c.mu.Lock()
	for _, msg := range msgs {
		exec.MessagesReceived++
		switch msg.Type {
		case messaging.TypeCollaborationRequest:
			if id, ok := msg.Content["collaboration_id"].(string); ok && id != "" {
				exec.Sessions = append(exec.Sessions, id)
				exec.Status = domain.ExecutionStatusCollaborating
			}
		case messaging.TypeDataShare:
			data, _ := msg.Content["data"].(map[string]any)
			confidence := defaultShareConfidence
			if f, ok := msg.Content["confidence"].(float64); ok {
				confidence = f
			}
			relays = append(relays, relay{sender: msg.Sender, data: data, confidence: confidence})
		}
	}
	c.mu.Unlock()

	for _, rl := range relays {
		if err := c.registry.Publish(rec.incident.ContextID, rl.sender, rl.data, rl.confidence); err != nil {
			return err
		}
	}

	c.logger.Debug("inbox drained",
		"incident_id", rec.incident.ID,
		"agent_id", agentID,
		"messages", len(msgs),
	)
	return nil
}

// executeStage runs one agent against a point-in-time incident copy under
// the per-stage deadline. A panicking stage surfaces as a stage error.
func (c *Coordinator) executeStage(rec *incidentRecord, ag agents.Agent, exec *domain.Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(c.root, c.cfg.StageTimeout)
	defer cancel()

	c.mu.RLock()
	snapshot := *rec.incident.Clone()
	contextID := rec.incident.ContextID
	c.mu.RUnlock()

	rc := &agents.RunContext{
		Incident:  snapshot,
		ContextID: contextID,
		Knowledge: c.registry,
		Messenger: c.exchange,
		Report:    &execHandle{c: c, rec: rec, exec: exec},
	}
	return ag.Run(ctx, rc)
}

// recordOutcome finishes the execution and files the stage under completed
// or failed. The execution also lands in the per-agent history.
func (c *Coordinator) recordOutcome(rec *incidentRecord, ag agents.Agent, exec *domain.Execution, runErr error) {
	now := time.Now().UTC()
	duration := now.Sub(exec.StartedAt)

	c.mu.Lock()
	exec.CompletedAt = &now
	exec.DurationMS = duration.Milliseconds()
	if runErr != nil {
		exec.Status = domain.ExecutionStatusError
		exec.Error = runErr.Error()
		rec.incident.FailedAgents = append(rec.incident.FailedAgents, ag.ID())
	} else {
		exec.Status = domain.ExecutionStatusSuccess
		rec.incident.CompletedAgents = append(rec.incident.CompletedAgents, ag.ID())
	}
	rec.incident.UpdatedAt = now

	hist := append(c.agentHistory[ag.ID()], exec)
	if limit := c.cfg.ExecutionHistoryLimit; limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	c.agentHistory[ag.ID()] = hist
	c.mu.Unlock()

	if runErr != nil {
		recordStageExecution(ag.ID(), "error")
		c.logger.Error("stage failed",
			"incident_id", exec.IncidentID,
			"stage", ag.ID(),
			"error", runErr,
		)
	} else {
		recordStageExecution(ag.ID(), "success")
		c.logger.Info("stage completed",
			"incident_id", exec.IncidentID,
			"stage", ag.ID(),
			"duration", duration,
		)
	}
	observeStageDuration(ag.ID(), duration)
}

// finalize closes out the workflow: resolved when every attempted stage
// succeeded, partially resolved otherwise.
func (c *Coordinator) finalize(rec *incidentRecord, elapsed time.Duration) {
	now := time.Now().UTC()

	c.mu.Lock()
	inc := rec.incident
	inc.WorkflowStatus = domain.WorkflowStatusCompleted
	inc.CurrentAgent = ""
	if len(inc.FailedAgents) == 0 {
		inc.Status = domain.IncidentStatusResolved
	} else {
		inc.Status = domain.IncidentStatusPartiallyResolved
	}
	inc.UpdatedAt = now
	inc.ResolvedAt = &now
	c.retire(rec)
	status := inc.Status
	activeCount := len(c.active)
	c.mu.Unlock()

	recordIncidentCompleted(string(status))
	recordActiveIncidents(activeCount)
	observeWorkflowDuration(elapsed)

	c.broadcastWorkflow(rec, "Workflow completed")
	c.logger.Info("workflow completed",
		"incident_id", inc.ID,
		"status", status,
		"completed_stages", len(inc.CompletedAgents),
		"failed_stages", len(inc.FailedAgents),
		"duration", elapsed,
	)
}

// fail aborts the workflow on an infrastructure fault, keeping the error
// message verbatim on the incident.
func (c *Coordinator) fail(rec *incidentRecord, err error) {
	now := time.Now().UTC()

	c.mu.Lock()
	inc := rec.incident
	inc.WorkflowStatus = domain.WorkflowStatusFailed
	inc.Status = domain.IncidentStatusFailed
	inc.Error = err.Error()
	inc.CurrentAgent = ""
	inc.UpdatedAt = now
	c.retire(rec)
	activeCount := len(c.active)
	c.mu.Unlock()

	recordIncidentCompleted(string(domain.IncidentStatusFailed))
	recordActiveIncidents(activeCount)

	c.broadcastWorkflow(rec, fmt.Sprintf("Workflow failed: %s", err))
	c.logger.Error("workflow failed", "incident_id", inc.ID, "error", err)
}

// retire moves an incident from the active set into bounded history.
// Callers hold c.mu.
func (c *Coordinator) retire(rec *incidentRecord) {
	if _, ok := c.active[rec.incident.ID]; !ok {
		return
	}
	delete(c.active, rec.incident.ID)
	c.history = append(c.history, rec)
	if limit := c.cfg.HistoryLimit; limit > 0 && len(c.history) > limit {
		c.history = c.history[len(c.history)-limit:]
	}
	c.finished[string(rec.incident.Status)]++
}

// broadcastWorkflow pushes a workflow update to realtime subscribers.
func (c *Coordinator) broadcastWorkflow(rec *incidentRecord, message string) {
	c.mu.RLock()
	data := map[string]any{
		"incident_id":      rec.incident.ID,
		"current_agent":    rec.incident.CurrentAgent,
		"completed_agents": append([]string(nil), rec.incident.CompletedAgents...),
		"workflow_status":  string(rec.incident.WorkflowStatus),
		"message":          message,
	}
	c.mu.RUnlock()

	c.sink.Publish(broadcast.NewEvent(broadcast.EventWorkflowUpdate, data))
}

// newIncidentID builds an id like INC-1756111200-9f3a2b7c1d4e.
func newIncidentID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("INC-%d-%s", now.Unix(), hex.EncodeToString(u[:])[:12])
}

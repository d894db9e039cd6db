package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroomhq/warroom/internal/agents"
	"github.com/warroomhq/warroom/internal/broadcast"
	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/knowledge"
	"github.com/warroomhq/warroom/internal/messaging"
	"github.com/warroomhq/warroom/internal/scenario"
)

var stageIDs = []string{"monitoring", "rca", "pager", "ticketing", "email", "remediation", "validation"}

// steadyRand pins every random draw so workflow outcomes are deterministic.
type steadyRand struct{ f float64 }

func (r steadyRand) Float64() float64 { return r.f }
func (r steadyRand) Intn(n int) int   { return 0 }

// stubAgent is a minimal stage for coordinator behavior tests.
type stubAgent struct {
	id  string
	err error
	run func(ctx context.Context, rc *agents.RunContext) error
}

func (s *stubAgent) ID() string             { return s.id }
func (s *stubAgent) Name() string           { return s.id + " agent" }
func (s *stubAgent) Description() string    { return "stub stage" }
func (s *stubAgent) Capabilities() []string { return []string{s.id + "_check"} }

func (s *stubAgent) Run(ctx context.Context, rc *agents.RunContext) error {
	if s.run != nil {
		return s.run(ctx, rc)
	}
	return s.err
}

type captureSink struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (s *captureSink) Publish(ev broadcast.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) workflowMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.Kind != broadcast.EventWorkflowUpdate {
			continue
		}
		if msg, ok := ev.Data["message"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

type fixture struct {
	registry *knowledge.Registry
	exchange *messaging.Exchange
	sink     *captureSink
	coord    *Coordinator
}

func newFixture(t *testing.T, cfg Config, roster []agents.Agent) *fixture {
	t.Helper()
	sink := &captureSink{}
	registry := knowledge.NewRegistry(0.7, sink, nil)
	exchange := messaging.NewExchange(0, sink, nil)
	coord := NewCoordinator(cfg, registry, exchange, scenario.NewSource(1), roster, agents.NopPacer{}, sink, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return &fixture{registry: registry, exchange: exchange, sink: sink, coord: coord}
}

func fullRoster() []agents.Agent {
	return agents.Roster(agents.NopPacer{}, steadyRand{})
}

func waitForWorkflow(t *testing.T, c *Coordinator, id string) *Detail {
	t.Helper()
	var detail *Detail
	require.Eventually(t, func() bool {
		d, err := c.Get(id)
		if err != nil || d.Incident.WorkflowStatus == domain.WorkflowStatusInProgress {
			return false
		}
		detail = d
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return detail
}

func TestCoordinatorTriggerReturnsImmediately(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), fullRoster())

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryDatabase})
	require.NoError(t, err)

	assert.Regexp(t, `^INC-\d+-[0-9a-f]{12}$`, inc.ID)
	assert.NotEmpty(t, inc.WorkflowID)
	assert.NotEmpty(t, inc.ContextID)
	assert.Equal(t, domain.IncidentStatusOpen, inc.Status)
	assert.Equal(t, domain.WorkflowStatusInProgress, inc.WorkflowStatus)
	assert.Equal(t, domain.CategoryDatabase, inc.Category)
	assert.Empty(t, inc.CompletedAgents)
	assert.Empty(t, inc.FailedAgents)

	snap, ok := fx.registry.Get(inc.ContextID)
	require.True(t, ok)
	assert.Equal(t, inc.ID, snap.IncidentID)
	assert.Contains(t, snap.SharedKnowledge, "incident_metadata")
	assert.Contains(t, snap.SharedKnowledge, "baseline_context")

	assert.Len(t, fx.exchange.Capabilities(), len(stageIDs))

	waitForWorkflow(t, fx.coord, inc.ID)
}

func TestCoordinatorDatabaseWorkflowResolves(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), fullRoster())

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryDatabase})
	require.NoError(t, err)
	detail := waitForWorkflow(t, fx.coord, inc.ID)

	got := detail.Incident
	assert.Equal(t, domain.IncidentStatusResolved, got.Status)
	assert.Equal(t, domain.WorkflowStatusCompleted, got.WorkflowStatus)
	assert.Empty(t, got.CurrentAgent)
	assert.Equal(t, stageIDs, got.CompletedAgents)
	assert.Empty(t, got.FailedAgents)
	require.NotNil(t, got.ResolvedAt)

	require.Len(t, detail.Executions, len(stageIDs))
	for id, exec := range detail.Executions {
		assert.Equal(t, inc.ID, exec.IncidentID, "execution %s", id)
		assert.Equal(t, domain.ExecutionStatusSuccess, exec.Status, "execution %s", id)
		assert.Equal(t, 100, exec.Progress, "execution %s", id)
		require.NotNil(t, exec.CompletedAt, "execution %s", id)
	}

	monitoring := detail.Executions["monitoring"]
	assert.Len(t, monitoring.Sessions, 1)
	assert.False(t, monitoring.ContextEnhanced)

	rca := detail.Executions["rca"]
	assert.True(t, rca.ContextEnhanced)
	assert.Equal(t, 1, rca.MessagesReceived)
	assert.Equal(t, 3, rca.MessagesSent)
	assert.Len(t, rca.Sessions, 1)

	pager := detail.Executions["pager"]
	assert.Equal(t, 1, pager.MessagesReceived)
	assert.Equal(t, 1, pager.MessagesSent)

	email := detail.Executions["email"]
	assert.Equal(t, 1, email.MessagesReceived)
	assert.Empty(t, email.Sessions)

	remediation := detail.Executions["remediation"]
	assert.True(t, remediation.ContextEnhanced)
	assert.Equal(t, 1, remediation.MessagesReceived)

	validation := detail.Executions["validation"]
	assert.True(t, validation.ContextEnhanced)
	assert.Equal(t, 2, validation.MessagesReceived)

	assert.Equal(t, "Connection pool exhaustion due to long-running queries and insufficient connection cleanup", got.RootCause)
	assert.True(t, strings.HasPrefix(got.PagingReference, "PD-DATABASE-"), got.PagingReference)
	assert.Contains(t, got.TicketReference, "WR-DATABASE")
	assert.Len(t, got.RemediationActions, 7)
	assert.Contains(t, got.Resolution, "fully resolved")

	snap, ok := fx.registry.Get(got.ContextID)
	require.True(t, ok)
	assert.Contains(t, snap.SharedKnowledge, "final_resolution")

	// Completed and failed must partition the attempted stages.
	seen := map[string]bool{}
	for _, id := range append(append([]string{}, got.CompletedAgents...), got.FailedAgents...) {
		assert.False(t, seen[id], "stage %s filed twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, len(detail.Executions))
}

func TestCoordinatorStageFailureIsContained(t *testing.T) {
	roster := []agents.Agent{
		&stubAgent{id: "alpha"},
		&stubAgent{id: "beta", err: errors.New("probe offline")},
		&stubAgent{id: "gamma"},
	}
	fx := newFixture(t, DefaultConfig(), roster)

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryNetwork})
	require.NoError(t, err)
	detail := waitForWorkflow(t, fx.coord, inc.ID)

	got := detail.Incident
	assert.Equal(t, domain.IncidentStatusPartiallyResolved, got.Status)
	assert.Equal(t, domain.WorkflowStatusCompleted, got.WorkflowStatus)
	assert.Equal(t, []string{"alpha", "gamma"}, got.CompletedAgents)
	assert.Equal(t, []string{"beta"}, got.FailedAgents)

	beta := detail.Executions["beta"]
	require.NotNil(t, beta)
	assert.Equal(t, domain.ExecutionStatusError, beta.Status)
	assert.Equal(t, "probe offline", beta.Error)
	assert.Equal(t, domain.ExecutionStatusSuccess, detail.Executions["gamma"].Status)
}

func TestCoordinatorFailFastStopsAfterFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailFast = true
	roster := []agents.Agent{
		&stubAgent{id: "alpha"},
		&stubAgent{id: "beta", err: errors.New("probe offline")},
		&stubAgent{id: "gamma"},
	}
	fx := newFixture(t, cfg, roster)

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryNetwork})
	require.NoError(t, err)
	detail := waitForWorkflow(t, fx.coord, inc.ID)

	got := detail.Incident
	assert.Equal(t, domain.IncidentStatusPartiallyResolved, got.Status)
	assert.Equal(t, []string{"alpha"}, got.CompletedAgents)
	assert.Equal(t, []string{"beta"}, got.FailedAgents)
	assert.NotContains(t, detail.Executions, "gamma")
}

func TestCoordinatorStagePanicIsContained(t *testing.T) {
	roster := []agents.Agent{
		&stubAgent{id: "alpha", run: func(context.Context, *agents.RunContext) error { panic("boom") }},
		&stubAgent{id: "omega"},
	}
	fx := newFixture(t, DefaultConfig(), roster)

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryAPI})
	require.NoError(t, err)
	detail := waitForWorkflow(t, fx.coord, inc.ID)

	alpha := detail.Executions["alpha"]
	assert.Equal(t, domain.ExecutionStatusError, alpha.Status)
	assert.Contains(t, alpha.Error, "stage panicked")
	assert.Contains(t, alpha.Error, "boom")

	got := detail.Incident
	assert.Equal(t, []string{"omega"}, got.CompletedAgents)
	assert.Equal(t, []string{"alpha"}, got.FailedAgents)
	assert.Equal(t, domain.WorkflowStatusCompleted, got.WorkflowStatus)
}

func TestCoordinatorStageTimeoutFailsStage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StageTimeout = 30 * time.Millisecond
	roster := []agents.Agent{
		&stubAgent{id: "slow", run: func(ctx context.Context, _ *agents.RunContext) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		&stubAgent{id: "next"},
	}
	fx := newFixture(t, cfg, roster)

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryContainer})
	require.NoError(t, err)
	detail := waitForWorkflow(t, fx.coord, inc.ID)

	slow := detail.Executions["slow"]
	assert.Equal(t, domain.ExecutionStatusError, slow.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), slow.Error)

	got := detail.Incident
	assert.Equal(t, []string{"next"}, got.CompletedAgents)
	assert.Equal(t, []string{"slow"}, got.FailedAgents)
	assert.Equal(t, domain.IncidentStatusPartiallyResolved, got.Status)
}

func TestCoordinatorInboxDrainAppliesMessages(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), []agents.Agent{&stubAgent{id: "solo"}})

	sid := fx.exchange.InitiateCollaboration("peer", []string{"solo"}, "joint_review", nil)
	fx.exchange.Send(messaging.Message{
		Sender:   "peer",
		Receiver: "solo",
		Type:     messaging.TypeCollaborationRequest,
		Content:  map[string]any{"task": "untracked_request"},
	})
	fx.exchange.Send(messaging.Message{
		Sender:   "scout",
		Receiver: "solo",
		Type:     messaging.TypeDataShare,
		Content: map[string]any{
			"data":       map[string]any{"observation": "latency spike"},
			"confidence": 0.9,
		},
	})
	fx.exchange.Send(messaging.Message{
		Sender:   "probe",
		Receiver: "solo",
		Type:     messaging.TypeDataShare,
		Content:  map[string]any{"data": map[string]any{"observation": "packet loss"}},
	})

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryNetwork})
	require.NoError(t, err)
	detail := waitForWorkflow(t, fx.coord, inc.ID)

	solo := detail.Executions["solo"]
	assert.Equal(t, 4, solo.MessagesReceived)
	assert.Equal(t, []string{sid}, solo.Sessions)

	snap, ok := fx.registry.Get(detail.Incident.ContextID)
	require.True(t, ok)
	require.Contains(t, snap.Insights, "scout")
	require.Contains(t, snap.Insights, "probe")
	assert.Equal(t, 0.9, snap.Insights["scout"].Confidence)
	assert.Equal(t, 0.8, snap.Insights["probe"].Confidence)
	assert.Equal(t, "latency spike", snap.Insights["scout"].Data["observation"])
}

func TestCoordinatorConcurrentIncidentsStayIsolated(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), fullRoster())

	categories := []domain.Category{domain.CategoryDatabase, domain.CategoryNetwork, domain.CategoryContainer}
	ids := make([]string, 0, len(categories))
	for _, cat := range categories {
		inc, err := fx.coord.Trigger(TriggerRequest{Category: cat})
		require.NoError(t, err)
		ids = append(ids, inc.ID)
	}

	contexts := map[string]bool{}
	for _, id := range ids {
		detail := waitForWorkflow(t, fx.coord, id)
		assert.Len(t, detail.Executions, len(stageIDs))
		for _, exec := range detail.Executions {
			assert.Equal(t, id, exec.IncidentID)
		}
		contexts[detail.Incident.ContextID] = true
	}
	assert.Len(t, contexts, len(categories))
}

func TestCoordinatorRecentNewestFirst(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), []agents.Agent{&stubAgent{id: "alpha"}})

	var ids []string
	for i := 0; i < 3; i++ {
		inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryAPI})
		require.NoError(t, err)
		ids = append(ids, inc.ID)
		waitForWorkflow(t, fx.coord, inc.ID)
		time.Sleep(2 * time.Millisecond)
	}

	recent, total := fx.coord.Recent(2)
	assert.Equal(t, 3, total)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)
}

func TestCoordinatorHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 2
	fx := newFixture(t, cfg, []agents.Agent{&stubAgent{id: "alpha"}})

	var ids []string
	for i := 0; i < 3; i++ {
		inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryAPI})
		require.NoError(t, err)
		ids = append(ids, inc.ID)
		waitForWorkflow(t, fx.coord, inc.ID)
	}

	recent, total := fx.coord.Recent(0)
	assert.Equal(t, 3, total)
	assert.Len(t, recent, 2)

	_, err := fx.coord.Get(ids[0])
	assert.ErrorIs(t, err, ErrIncidentNotFound)

	detail, err := fx.coord.Get(ids[2])
	require.NoError(t, err)
	assert.Equal(t, ids[2], detail.Incident.ID)
}

func TestCoordinatorAgentHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecutionHistoryLimit = 2
	fx := newFixture(t, cfg, []agents.Agent{&stubAgent{id: "alpha"}})

	var ids []string
	for i := 0; i < 3; i++ {
		inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryDatabase})
		require.NoError(t, err)
		ids = append(ids, inc.ID)
		waitForWorkflow(t, fx.coord, inc.ID)
	}

	hist, err := fx.coord.AgentHistory("alpha", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, ids[2], hist[0].IncidentID)
	assert.Equal(t, ids[1], hist[1].IncidentID)
}

func TestCoordinatorTriggerOverridesScenario(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), []agents.Agent{&stubAgent{id: "alpha"}})

	inc, err := fx.coord.Trigger(TriggerRequest{
		Title:       "Custom switch failure",
		Description: "Manually triggered drill",
		Severity:    domain.SeverityHigh,
		Category:    domain.CategoryNetwork,
	})
	require.NoError(t, err)

	assert.Equal(t, "Custom switch failure", inc.Title)
	assert.Equal(t, "Manually triggered drill", inc.Description)
	assert.Equal(t, domain.SeverityHigh, inc.Severity)
	assert.Equal(t, domain.CategoryNetwork, inc.Category)
	assert.Equal(t, []string{"core-switch-stack", "vlan-infrastructure", "inter-dc-links"}, inc.AffectedSystems)

	waitForWorkflow(t, fx.coord, inc.ID)
}

func TestCoordinatorLookupMisses(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), []agents.Agent{&stubAgent{id: "alpha"}})

	_, err := fx.coord.Get("INC-0-000000000000")
	assert.ErrorIs(t, err, ErrIncidentNotFound)

	_, err = fx.coord.AgentHistory("ghost", 5)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestCoordinatorStatsRollup(t *testing.T) {
	roster := []agents.Agent{
		&stubAgent{id: "alpha"},
		&stubAgent{id: "beta", err: errors.New("flaky dependency")},
	}
	fx := newFixture(t, DefaultConfig(), roster)

	for i := 0; i < 2; i++ {
		inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryDatabase})
		require.NoError(t, err)
		waitForWorkflow(t, fx.coord, inc.ID)
	}

	stats := fx.coord.Stats()
	assert.Equal(t, 0, stats.ActiveIncidents)
	assert.Equal(t, 2, stats.TotalIncidents)
	assert.Equal(t, map[string]int{"partially_resolved": 2}, stats.ByStatus)
	assert.Equal(t, map[string]int{"database": 2}, stats.ByCategory)

	alpha := stats.Agents["alpha"]
	assert.Equal(t, 2, alpha.TotalExecutions)
	assert.Equal(t, 2, alpha.SuccessfulExecutions)
	assert.Equal(t, 100.0, alpha.SuccessRate)
	require.NotNil(t, alpha.LastActivity)

	beta := stats.Agents["beta"]
	assert.Equal(t, 2, beta.TotalExecutions)
	assert.Equal(t, 0, beta.SuccessfulExecutions)
	assert.Equal(t, 0.0, beta.SuccessRate)
}

func TestCoordinatorWorkflowBroadcasts(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), []agents.Agent{&stubAgent{id: "alpha"}})

	inc, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategorySecurity})
	require.NoError(t, err)
	waitForWorkflow(t, fx.coord, inc.ID)

	require.Eventually(t, func() bool {
		msgs := fx.sink.workflowMessages()
		return len(msgs) > 0 && msgs[len(msgs)-1] == "Workflow completed"
	}, 2*time.Second, 10*time.Millisecond)

	msgs := fx.sink.workflowMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Workflow started", msgs[0])
	assert.Equal(t, "Starting alpha agent", msgs[1])
	assert.Equal(t, "alpha agent completed successfully", msgs[2])
	assert.Equal(t, "Workflow completed", msgs[3])
}

func TestCoordinatorShutdownRejectsNewTriggers(t *testing.T) {
	fx := newFixture(t, DefaultConfig(), []agents.Agent{&stubAgent{id: "alpha"}})

	require.NoError(t, fx.coord.Shutdown(context.Background()))

	_, err := fx.coord.Trigger(TriggerRequest{Category: domain.CategoryDatabase})
	assert.ErrorIs(t, err, ErrShutdown)
}

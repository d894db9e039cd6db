// Package agents contains the seven pipeline stage implementations.
//
// Each agent receives a RunContext from the coordinator, reads peer findings
// through the knowledge view, reports progress and output through the
// Reporter, and talks to other agents through the Messenger. Business
// failures are error returns; agents never panic on expected conditions.
package agents

import (
	"context"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/knowledge"
	"github.com/warroomhq/warroom/internal/messaging"
)

// Agent is one stage of the incident pipeline.
type Agent interface {
	// ID is the stable stage identifier used for routing and ordering.
	ID() string
	// Name is the human-readable agent name.
	Name() string
	// Description summarizes what the agent does for the API surface.
	Description() string
	// Capabilities lists what the agent can do, for the capability registry.
	Capabilities() []string
	// Run executes the stage. The context carries the per-stage deadline.
	Run(ctx context.Context, rc *RunContext) error
}

// Knowledge is the slice of the context registry an agent uses.
type Knowledge interface {
	InsightsFor(contextID, agentID string) (knowledge.InsightView, bool)
	Publish(contextID, agentID string, data map[string]any, confidence float64) error
	SetSharedFact(contextID, key string, value any) error
	AddCorrelation(contextID, agentID, pattern string, details map[string]any) error
}

// Messenger is the slice of the messaging exchange an agent uses.
type Messenger interface {
	Send(msg messaging.Message) messaging.Message
	InitiateCollaboration(initiator string, participants []string, task string, context map[string]any) string
}

// Reporter applies execution and incident mutations back into the
// coordinator's records, keeping live reads race-free.
type Reporter interface {
	// Progress moves the execution progress percentage forward.
	Progress(pct int)
	// Logf appends a timestamped activity line to the execution.
	Logf(format string, args ...any)
	// SetOutput records the structured stage result.
	SetOutput(output map[string]any)
	// AddSession records a collaboration session the stage joined or opened.
	AddSession(sessionID string)
	// AddMessagesSent bumps the sent-message counter.
	AddMessagesSent(n int)
	// RecordInsights snapshots the contextual insights the stage consulted
	// and marks the execution context-enhanced when peers contributed.
	RecordInsights(view knowledge.InsightView)
	// MutateIncident applies a change to the incident record.
	MutateIncident(fn func(*domain.Incident))
}

// RunContext is everything a stage needs for one execution.
type RunContext struct {
	// Incident is a point-in-time copy; mutations go through Report.
	Incident  domain.Incident
	ContextID string
	Knowledge Knowledge
	Messenger Messenger
	Report    Reporter
}

// Roster returns the agents in fixed pipeline order.
func Roster(pacer Pacer, rng Rand) []Agent {
	if pacer == nil {
		pacer = NopPacer{}
	}
	if rng == nil {
		rng = NewLockedRand(0)
	}
	return []Agent{
		NewMonitoring(pacer, rng),
		NewRCA(pacer, rng),
		NewPager(pacer, rng),
		NewTicketing(pacer),
		NewEmail(pacer),
		NewRemediation(pacer),
		NewValidation(pacer, rng),
	}
}

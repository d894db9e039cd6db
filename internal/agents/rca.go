package agents

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/messaging"
	"github.com/warroomhq/warroom/internal/scenario"
)

// rcaShareCategories are the categories whose root cause findings are
// shared with downstream stages that act on them directly.
var rcaShareCategories = map[domain.Category]bool{
	domain.CategorySecurity:  true,
	domain.CategoryDatabase:  true,
	domain.CategoryNetwork:   true,
	domain.CategoryContainer: true,
}

// RCA determines the root cause, boosted by whatever peer insights have
// accumulated in the incident context.
type RCA struct {
	pacer Pacer
	rng   Rand
}

// NewRCA creates the root cause analysis agent.
func NewRCA(pacer Pacer, rng Rand) *RCA {
	return &RCA{pacer: pacer, rng: rng}
}

func (a *RCA) ID() string   { return "rca" }
func (a *RCA) Name() string { return "Root Cause Analysis Agent" }

func (a *RCA) Description() string {
	return "Comprehensive root cause analysis with correlation over shared insights and cross-agent pattern recognition"
}

func (a *RCA) Capabilities() []string {
	return []string{"root_cause_analysis", "pattern_correlation", "dependency_mapping", "failure_prediction"}
}

// Run resolves the root cause for the incident category and shares the
// findings with the stages that act on them.
func (a *RCA) Run(ctx context.Context, rc *RunContext) error {
	view, ok := rc.Knowledge.InsightsFor(rc.ContextID, a.ID())
	if ok {
		rc.Report.RecordInsights(view)
	}

	rc.Report.Logf("running root cause analysis with cross-agent insights")
	rc.Report.Progress(20)
	if err := a.pacer.Pause(ctx, 2*time.Second, 2500*time.Millisecond); err != nil {
		return err
	}

	var confidenceBoost float64
	if len(view.PeerInsights) > 0 {
		confidenceBoost = 0.18
		rc.Report.Logf("leveraging %d peer insights for enhanced analysis", len(view.PeerInsights))
		rc.Report.Progress(40)
		if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
			return err
		}

		if err := rc.Knowledge.AddCorrelation(rc.ContextID, a.ID(), "cross_agent_signal_alignment", map[string]any{
			"peer_count":         len(view.PeerInsights),
			"context_confidence": view.AggregateConfidence,
		}); err != nil {
			return fmt.Errorf("record correlation: %w", err)
		}
	}

	rootCause := a.resolveRootCause(rc.Incident.Category)
	baseConfidence := floatBetween(a.rng, 0.87, 0.97)
	confidence := baseConfidence + confidenceBoost
	if confidence > 0.99 {
		confidence = 0.99
	}

	output := map[string]any{
		"root_cause":         rootCause,
		"confidence":         confidence,
		"analysis_depth":     "comprehensive",
		"context_enhanced":   true,
		"used_peer_insights": len(view.PeerInsights) > 0,
		"context_confidence": view.AggregateConfidence,
	}
	rc.Report.SetOutput(output)

	if rcaShareCategories[rc.Incident.Category] {
		findings := map[string]any{
			"root_cause_summary": rootCause,
			"confidence_score":   confidence,
			"priority_actions":   []string{"immediate_containment", "system_stabilization", "performance_optimization"},
		}
		for _, receiver := range []string{"remediation", "validation", "pager"} {
			rc.Messenger.Send(messaging.Message{
				Sender:   a.ID(),
				Receiver: receiver,
				Type:     messaging.TypeDataShare,
				Content:  map[string]any{"data": findings, "confidence": confidence},
				Priority: messaging.PriorityHigh,
			})
		}
		rc.Report.AddMessagesSent(3)
	}

	if err := rc.Knowledge.Publish(rc.ContextID, a.ID(), output, confidence); err != nil {
		return fmt.Errorf("publish rca findings: %w", err)
	}

	rc.Report.MutateIncident(func(inc *domain.Incident) {
		inc.RootCause = rootCause
	})

	rc.Report.Progress(100)
	rc.Report.Logf("root cause analysis completed with confidence %.1f%%", confidence*100)
	return nil
}

// resolveRootCause reads the known root cause for the category's seeded
// scenario, falling back to a generic statement for unseeded categories.
func (a *RCA) resolveRootCause(category domain.Category) string {
	if sc, ok := scenario.ByCategory(category); ok {
		return sc.RootCause
	}
	// Casers are stateful, so never share one across runs.
	title := cases.Title(language.English)
	return fmt.Sprintf("%s issue requiring comprehensive investigation", title.String(string(category)))
}

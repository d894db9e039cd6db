package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/messaging"
)

var runbooks = map[domain.Category][]string{
	domain.CategoryDatabase: {
		"connection_pool_scaling_and_optimization",
		"query_performance_analysis_and_tuning",
		"database_replica_failover_activation",
		"connection_cleanup_and_monitoring",
	},
	domain.CategorySecurity: {
		"immediate_system_isolation_and_containment",
		"credential_rotation_and_access_review",
		"security_patch_deployment_and_hardening",
		"threat_monitoring_enhancement",
	},
	domain.CategoryNetwork: {
		"traffic_rerouting_and_load_distribution",
		"redundant_path_activation",
		"network_hardware_replacement",
		"routing_table_optimization",
	},
	domain.CategoryContainer: {
		"pod_restart_and_rescheduling",
		"resource_limit_increase_and_optimization",
		"kubernetes_node_scaling",
		"container_image_update_and_security_scan",
	},
}

var defaultRunbook = []string{
	"service_restart_and_health_verification",
	"resource_scaling_and_optimization",
	"configuration_review_and_reset",
	"monitoring_enhancement_and_alerting",
}

var remediationStrategies = map[domain.Category]string{
	domain.CategoryDatabase:  "Database-first approach with connection optimization and query tuning",
	domain.CategorySecurity:  "Security-first containment with immediate isolation and threat mitigation",
	domain.CategoryNetwork:   "Network-centric approach with traffic rerouting and redundancy activation",
	domain.CategoryContainer: "Container orchestration optimization with resource scaling and health tuning",
}

// Security remediation requires manual oversight.
var automationLevels = map[domain.Category]string{
	domain.CategoryContainer: "high",
	domain.CategoryAPI:       "high",
	domain.CategoryDatabase:  "medium",
	domain.CategoryNetwork:   "low",
	domain.CategorySecurity:  "low",
}

// Remediation applies the category runbook, extended with the root cause
// agent's recommended actions, and asks validation to verify the result.
type Remediation struct {
	pacer Pacer
}

// NewRemediation creates the remediation agent.
func NewRemediation(pacer Pacer) *Remediation {
	return &Remediation{pacer: pacer}
}

func (a *Remediation) ID() string   { return "remediation" }
func (a *Remediation) Name() string { return "Remediation Agent" }

func (a *Remediation) Description() string {
	return "Runbook-driven automated remediation enhanced with root cause insights and validation handoff"
}

func (a *Remediation) Capabilities() []string {
	return []string{"automated_fixes", "rollback_procedures", "system_recovery", "configuration_management"}
}

// Run executes the remediation procedures and records them on the incident.
func (a *Remediation) Run(ctx context.Context, rc *RunContext) error {
	var rcaData map[string]any
	var rcaConfidence float64
	if view, ok := rc.Knowledge.InsightsFor(rc.ContextID, a.ID()); ok {
		rc.Report.RecordInsights(view)
		if insight, found := view.PeerInsights["rca"]; found {
			rcaData = insight.Data
			rcaConfidence = insight.Confidence
		}
	}

	rc.Report.Logf("planning remediation with comprehensive root cause insights")
	rc.Report.Progress(20)
	if err := a.pacer.Pause(ctx, 1500*time.Millisecond, 2*time.Second); err != nil {
		return err
	}

	actions := runbookFor(rc.Incident.Category)
	if recommended := stringValues(rcaData["priority_actions"]); len(recommended) > 0 {
		if len(recommended) > 3 {
			recommended = recommended[:3]
		}
		actions = append(actions, recommended...)
	}

	rc.Report.Logf("executing %d optimized remediation procedures", len(actions))
	rc.Report.Progress(50)
	if err := a.pacer.Pause(ctx, 2*time.Second, 3*time.Second); err != nil {
		return err
	}

	rc.Messenger.Send(messaging.Message{
		Sender:   a.ID(),
		Receiver: "validation",
		Type:     messaging.TypeCollaborationRequest,
		Content: map[string]any{
			"task":            "comprehensive_remediation_validation",
			"actions_applied": actions,
			"incident_context": map[string]any{
				"type":             string(rc.Incident.Category),
				"severity":         string(rc.Incident.Severity),
				"affected_systems": rc.Incident.AffectedSystems,
			},
			"rca_insights": rcaData,
		},
		Priority: messaging.PriorityHigh,
	})
	rc.Report.AddMessagesSent(1)

	intelligenceConfidence := 0.8
	if rcaConfidence > 0 {
		intelligenceConfidence = rcaConfidence
	}
	output := map[string]any{
		"actions_performed":       actions,
		"remediation_strategy":    remediationStrategy(rc.Incident.Category),
		"automation_level":        automationLevel(rc.Incident.Category),
		"rca_enhanced":            rcaData != nil,
		"validation_requested":    true,
		"intelligence_confidence": intelligenceConfidence,
	}
	rc.Report.SetOutput(output)

	if err := rc.Knowledge.Publish(rc.ContextID, a.ID(), output, 0.89); err != nil {
		return fmt.Errorf("publish remediation results: %w", err)
	}

	rc.Report.MutateIncident(func(inc *domain.Incident) {
		inc.RemediationActions = actions
	})

	rc.Report.Progress(100)
	rc.Report.Logf("remediation completed, %d procedures applied", len(actions))
	return nil
}

// runbookFor returns a fresh copy of the category runbook so callers can
// append to it.
func runbookFor(category domain.Category) []string {
	book, ok := runbooks[category]
	if !ok {
		book = defaultRunbook
	}
	return append([]string(nil), book...)
}

func remediationStrategy(category domain.Category) string {
	if s, ok := remediationStrategies[category]; ok {
		return s
	}
	return "Comprehensive system recovery with monitoring enhancement"
}

func automationLevel(category domain.Category) string {
	if level, ok := automationLevels[category]; ok {
		return level
	}
	return "medium"
}

// stringValues extracts a string slice from loosely typed insight data.
func stringValues(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

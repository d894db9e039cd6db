package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/messaging"
)

// Monitoring analyzes incident-specific metrics and shares early findings
// with downstream agents.
type Monitoring struct {
	pacer Pacer
	rng   Rand
}

// NewMonitoring creates the monitoring agent.
func NewMonitoring(pacer Pacer, rng Rand) *Monitoring {
	return &Monitoring{pacer: pacer, rng: rng}
}

func (a *Monitoring) ID() string   { return "monitoring" }
func (a *Monitoring) Name() string { return "Monitoring Agent" }

func (a *Monitoring) Description() string {
	return "Incident-type specific metric collection with shared context analysis and peer intelligence sharing"
}

func (a *Monitoring) Capabilities() []string {
	return []string{"metric_analysis", "anomaly_detection", "system_health_check", "performance_baseline"}
}

// Run collects category-specific metrics, opens a collaboration with RCA on
// database incidents and shares threat intelligence on security incidents.
func (a *Monitoring) Run(ctx context.Context, rc *RunContext) error {
	if view, ok := rc.Knowledge.InsightsFor(rc.ContextID, a.ID()); ok {
		rc.Report.RecordInsights(view)
	}

	rc.Report.Logf("starting %s monitoring analysis", rc.Incident.Category)
	rc.Report.Progress(15)
	if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return err
	}

	var output map[string]any
	switch rc.Incident.Category {
	case domain.CategoryDatabase:
		rc.Report.Logf("analyzing database connection metrics, query performance and resource utilization")
		rc.Report.Progress(35)
		if err := a.pacer.Pause(ctx, 1500*time.Millisecond, 2*time.Second); err != nil {
			return err
		}

		sessionID := rc.Messenger.InitiateCollaboration(a.ID(), []string{"rca"},
			"database_performance_analysis", map[string]any{
				"incident_category": string(rc.Incident.Category),
				"severity":          string(rc.Incident.Severity),
			})
		rc.Report.AddSession(sessionID)

		output = map[string]any{
			"anomaly_type":     "connection_exhaustion",
			"metrics_analyzed": 15420,
			"database_specific": map[string]any{
				"connection_pool_usage": "98%",
				"active_connections":    "485/500",
				"slow_queries":          23,
				"avg_query_time":        "125ms",
			},
			"context_enhanced":        true,
			"collaboration_initiated": true,
		}

	case domain.CategorySecurity:
		rc.Report.Logf("initiating security threat detection and analysis")
		rc.Report.Progress(25)
		if err := a.pacer.Pause(ctx, 2*time.Second, 2500*time.Millisecond); err != nil {
			return err
		}

		threatData := map[string]any{
			"threat_indicators":   intBetween(a.rng, 150, 750),
			"attack_vectors":      []string{"ddos", "malware", "phishing", "lateral_movement"},
			"severity_assessment": string(rc.Incident.Severity),
			"confidence_score":    0.92,
			"affected_ips":        intBetween(a.rng, 25, 200),
		}
		for _, receiver := range []string{"rca", "remediation"} {
			rc.Messenger.Send(messaging.Message{
				Sender:   a.ID(),
				Receiver: receiver,
				Type:     messaging.TypeDataShare,
				Content:  map[string]any{"data": threatData, "confidence": 0.92},
				Priority: messaging.PriorityHigh,
			})
		}
		rc.Report.AddMessagesSent(2)

		attackType := "Advanced Persistent Threat"
		if strings.Contains(strings.ToLower(rc.Incident.Title), "ddos") {
			attackType = "DDoS"
		}
		output = map[string]any{
			"anomaly_type": "security_breach",
			"threat_level": "Critical",
			"security_specific": map[string]any{
				"attack_type":      attackType,
				"source_ips":       intBetween(a.rng, 50, 500),
				"blocked_requests": intBetween(a.rng, 10000, 100000),
				"threat_score":     intBetween(a.rng, 85, 98),
			},
			"intelligence_shared": true,
		}

	default:
		rc.Report.Logf("monitoring %s infrastructure", rc.Incident.Category)
		rc.Report.Progress(40)
		if err := a.pacer.Pause(ctx, 1500*time.Millisecond, 2*time.Second); err != nil {
			return err
		}

		output = map[string]any{
			"anomaly_type": fmt.Sprintf("%s_degradation", rc.Incident.Category),
			"generic_metrics": map[string]any{
				"performance_impact": fmt.Sprintf("%d%%", intBetween(a.rng, 25, 85)),
				"affected_services":  intBetween(a.rng, 3, 12),
				"error_rate":         fmt.Sprintf("%.1f%%", floatBetween(a.rng, 2.5, 15.8)),
			},
		}
	}

	rc.Report.SetOutput(output)
	if err := rc.Knowledge.Publish(rc.ContextID, a.ID(), output, 0.91); err != nil {
		return fmt.Errorf("publish monitoring findings: %w", err)
	}

	rc.Report.Progress(100)
	rc.Report.Logf("monitoring analysis completed")
	return nil
}

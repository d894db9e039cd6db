package agents

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/warroomhq/warroom/internal/domain"
)

var severityAdjustments = map[domain.Severity]float64{
	domain.SeverityCritical: -0.05,
	domain.SeverityHigh:     0.0,
	domain.SeverityMedium:   0.05,
	domain.SeverityLow:      0.1,
}

var healthChecksPassed = map[domain.Category]map[string]string{
	domain.CategoryDatabase: {
		"connection_pool":   "Optimal (420/500 connections)",
		"query_performance": "Baseline restored (<45ms avg)",
		"cpu_utilization":   "Normal (42%)",
		"memory_usage":      "Stable (58%)",
		"validation":        "Passed",
	},
	domain.CategorySecurity: {
		"threat_level":       "Green (Low Risk)",
		"access_controls":    "Active and Verified",
		"monitoring_systems": "Enhanced and Operational",
		"compliance_status":  "Compliant",
		"security_check":     "Passed",
	},
	domain.CategoryNetwork: {
		"latency":               "Optimal (6ms avg)",
		"packet_loss":           "None (0%)",
		"bandwidth_utilization": "Normal (65%)",
		"redundancy_status":     "Active",
		"network_validation":    "Passed",
	},
	domain.CategoryContainer: {
		"pod_status":            "All Pods Running and Ready",
		"resource_utilization":  "Optimal",
		"cluster_health":        "Healthy",
		"service_mesh":          "Operational",
		"kubernetes_validation": "Passed",
	},
}

var healthChecksDegraded = map[domain.Category]map[string]string{
	domain.CategoryDatabase: {
		"connection_pool":   "Elevated usage (465/500)",
		"query_performance": "Improved but monitoring (85ms avg)",
		"cpu_utilization":   "Moderate (68%)",
		"memory_usage":      "Elevated (74%)",
		"validation":        "Monitoring Required",
	},
	domain.CategorySecurity: {
		"threat_level":       "Yellow (Elevated)",
		"access_controls":    "Active with Enhanced Monitoring",
		"monitoring_systems": "Enhanced with Continuous Review",
		"compliance_status":  "Under Review",
		"security_check":     "Enhanced Monitoring",
	},
}

// Validation verifies the remediated system and decides whether the incident
// is fully or only partially resolved.
type Validation struct {
	pacer Pacer
	rng   Rand
}

// NewValidation creates the validation agent.
func NewValidation(pacer Pacer, rng Rand) *Validation {
	return &Validation{pacer: pacer, rng: rng}
}

func (a *Validation) ID() string   { return "validation" }
func (a *Validation) Name() string { return "Validation Agent" }

func (a *Validation) Description() string {
	return "Comprehensive health verification driven by the aggregate confidence of all preceding agents"
}

func (a *Validation) Capabilities() []string {
	return []string{"health_verification", "performance_testing", "compliance_checking", "monitoring_setup"}
}

// Run executes the health verification, publishes the final resolution into
// shared knowledge and records the resolution narrative on the incident.
func (a *Validation) Run(ctx context.Context, rc *RunContext) error {
	overallConfidence := 0.8
	factorsUsed := 0
	if view, ok := rc.Knowledge.InsightsFor(rc.ContextID, a.ID()); ok {
		rc.Report.RecordInsights(view)
		factorsUsed = view.InsightCount
		if factorsUsed > 0 {
			overallConfidence = view.AggregateConfidence
		}
	}

	rc.Report.Logf("comprehensive validation with incident context from %d agents", factorsUsed)
	rc.Report.Progress(25)
	if err := a.pacer.Pause(ctx, 2*time.Second, 2500*time.Millisecond); err != nil {
		return err
	}

	rc.Report.Logf("executing comprehensive %s health verification tests", rc.Incident.Category)
	rc.Report.Progress(75)
	if err := a.pacer.Pause(ctx, 2*time.Second, 2500*time.Millisecond); err != nil {
		return err
	}

	successRate := 0.75 + overallConfidence*0.2 + severityAdjustments[rc.Incident.Severity]
	resolved := a.rng.Float64() < successRate

	var score float64
	if resolved {
		score = floatBetween(a.rng, 0.92, 0.99)
	} else {
		score = floatBetween(a.rng, 0.72, 0.87)
	}

	output := map[string]any{
		"health_checks":     healthChecks(rc.Incident.Category, resolved),
		"incident_resolved": resolved,
		"validation_score":  score,
		"comprehensive_analysis": map[string]any{
			"context_enhanced":          true,
			"cross_agent_validation":    true,
			"confidence_factors_used":   factorsUsed,
			"overall_system_confidence": overallConfidence,
			"validation_depth":          "comprehensive",
		},
	}
	rc.Report.SetOutput(output)

	if err := rc.Knowledge.Publish(rc.ContextID, a.ID(), output, 0.96); err != nil {
		return fmt.Errorf("publish validation results: %w", err)
	}

	status := domain.IncidentStatusPartiallyResolved
	if resolved {
		status = domain.IncidentStatusResolved
	}
	if err := rc.Knowledge.SetSharedFact(rc.ContextID, "final_resolution", map[string]any{
		"status":             string(status),
		"overall_confidence": overallConfidence,
		"validation_score":   score,
		"validated_at":       time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("record final resolution: %w", err)
	}

	// Casers are stateful, so never share one across runs.
	category := cases.Title(language.English).String(string(rc.Incident.Category))
	var narrative string
	if resolved {
		narrative = fmt.Sprintf("%s fully resolved using cross-agent enhanced analysis with %.1f%% system confidence. Comprehensive validation passed with score %.1f%%.",
			category, overallConfidence*100, score*100)
	} else {
		narrative = fmt.Sprintf("%s partially resolved, continued monitoring required. Validation score: %.1f%%.",
			category, score*100)
	}
	rc.Report.MutateIncident(func(inc *domain.Incident) {
		inc.Resolution = narrative
	})

	statusWord := "partially resolved"
	if resolved {
		statusWord = "fully resolved"
	}
	rc.Report.Progress(100)
	rc.Report.Logf("validation completed, issue %s with %.1f%% confidence", statusWord, score*100)
	return nil
}

// healthChecks returns the category verification table for the outcome,
// falling back to a generic table for unseeded categories.
func healthChecks(category domain.Category, resolved bool) map[string]string {
	tables := healthChecksDegraded
	if resolved {
		tables = healthChecksPassed
	}
	if checks, ok := tables[category]; ok {
		return checks
	}
	if resolved {
		return map[string]string{
			"overall_status": "Healthy",
			"performance":    "Optimal",
			"validation":     "Passed",
		}
	}
	return map[string]string{
		"overall_status": "Monitoring",
		"performance":    "Improved",
		"validation":     "Monitoring Required",
	}
}

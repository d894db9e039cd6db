package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
)

var categoryStakeholders = map[domain.Category][]string{
	domain.CategorySecurity:  {"security-team@company.com", "compliance@company.com", "legal@company.com"},
	domain.CategoryDatabase:  {"dba-team@company.com", "backend-developers@company.com"},
	domain.CategoryNetwork:   {"network-ops@company.com", "telecom@company.com"},
	domain.CategoryContainer: {"platform-team@company.com", "devops@company.com", "sre@company.com"},
}

var communicationStrategies = map[domain.Category]string{
	domain.CategorySecurity:  "Security incident communication protocol with legal and compliance review",
	domain.CategoryDatabase:  "Database incident communication with application teams and business stakeholders",
	domain.CategoryNetwork:   "Network outage communication with all affected teams and external partners",
	domain.CategoryContainer: "Container platform communication with development teams and product owners",
}

// Email runs the coordinated stakeholder communication for the incident.
type Email struct {
	pacer Pacer
}

// NewEmail creates the email agent.
func NewEmail(pacer Pacer) *Email {
	return &Email{pacer: pacer}
}

func (a *Email) ID() string   { return "email" }
func (a *Email) Name() string { return "Email Agent" }

func (a *Email) Description() string {
	return "Coordinated stakeholder communication with severity-scaled distribution lists and executive reporting"
}

func (a *Email) Capabilities() []string {
	return []string{"stakeholder_communication", "status_broadcasting", "executive_reporting", "team_updates"}
}

// Run assembles the stakeholder list and communication strategy and records
// the notifications sent.
func (a *Email) Run(ctx context.Context, rc *RunContext) error {
	rc.Report.Logf("coordinated communication strategy for %s", rc.Incident.Category)
	rc.Report.Progress(25)
	if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return err
	}

	stakeholders := stakeholdersFor(rc.Incident.Category, rc.Incident.Severity)
	strategy := communicationStrategy(rc.Incident.Category, rc.Incident.Severity)

	rc.Report.Logf("executing coordinated notifications to %d stakeholder groups", len(stakeholders))
	rc.Report.Progress(65)
	if err := a.pacer.Pause(ctx, 1500*time.Millisecond, 2*time.Second); err != nil {
		return err
	}

	escalated := rc.Incident.Severity == domain.SeverityCritical || rc.Incident.Severity == domain.SeverityHigh
	rc.Report.SetOutput(map[string]any{
		"emails_sent":            stakeholders,
		"communication_strategy": strategy,
		"notification_types": map[string]any{
			"executive_summary":   escalated,
			"technical_details":   true,
			"status_updates":      true,
			"resolution_timeline": true,
		},
		"messaging_coordinated": true,
		"context_used":          true,
		"personalized_content":  true,
	})

	rc.Report.Progress(100)
	rc.Report.Logf("coordinated communication completed, %d groups notified", len(stakeholders))
	return nil
}

// stakeholdersFor builds the deduplicated distribution list, widening it
// with management and executives as severity climbs.
func stakeholdersFor(category domain.Category, severity domain.Severity) []string {
	list := []string{
		fmt.Sprintf("%s-team@company.com", category),
		"it-operations@company.com",
	}
	if severity == domain.SeverityCritical || severity == domain.SeverityHigh {
		list = append(list, "management@company.com", "incident-commander@company.com")
	}
	if severity == domain.SeverityCritical {
		list = append(list, "cto@company.com", "executive-team@company.com")
	}
	list = append(list, categoryStakeholders[category]...)

	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, addr := range list {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func communicationStrategy(category domain.Category, severity domain.Severity) string {
	strategy, ok := communicationStrategies[category]
	if !ok {
		strategy = "Standard incident communication protocol"
	}
	if severity == domain.SeverityCritical {
		return "Crisis " + strategy + " with executive briefings"
	}
	return strategy
}

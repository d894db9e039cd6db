package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
)

var ticketPriorities = map[domain.Severity]string{
	domain.SeverityCritical: "0 - Emergency",
	domain.SeverityHigh:     "1 - Critical",
	domain.SeverityMedium:   "2 - High",
	domain.SeverityLow:      "3 - Medium",
}

type ticketClass struct {
	category    string
	subcategory string
}

var ticketClassifications = map[domain.Category]ticketClass{
	domain.CategoryDatabase:  {"Database Services", "Performance Degradation"},
	domain.CategorySecurity:  {"Security Incident", "Threat Response"},
	domain.CategoryNetwork:   {"Network Infrastructure", "Connectivity Issues"},
	domain.CategoryContainer: {"Platform Services", "Container Orchestration"},
	domain.CategoryAPI:       {"Application Services", "API Gateway"},
}

// Ticketing files the tracking ticket with severity-derived priority and
// category-derived classification.
type Ticketing struct {
	pacer Pacer
}

// NewTicketing creates the ticketing agent.
func NewTicketing(pacer Pacer) *Ticketing {
	return &Ticketing{pacer: pacer}
}

func (a *Ticketing) ID() string   { return "ticketing" }
func (a *Ticketing) Name() string { return "Ticketing Agent" }

func (a *Ticketing) Description() string {
	return "Automated ticket creation with intelligent classification, team assignment and resolution estimates"
}

func (a *Ticketing) Capabilities() []string {
	return []string{"ticket_classification", "priority_assignment", "workflow_routing", "sla_tracking"}
}

// Run classifies the incident and records the ticket reference on it.
func (a *Ticketing) Run(ctx context.Context, rc *RunContext) error {
	rc.Report.Logf("creating ticket with context-enhanced classification")
	rc.Report.Progress(35)
	if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return err
	}

	priority, ok := ticketPriorities[rc.Incident.Severity]
	if !ok {
		priority = "2 - High"
	}
	class, ok := ticketClassifications[rc.Incident.Category]
	if !ok {
		class = ticketClass{"General Services", "System Issue"}
	}

	rc.Report.Logf("classification complete: %s %s - %s", priority, class.category, class.subcategory)
	rc.Report.Progress(80)
	if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return err
	}

	ticketID := fmt.Sprintf("WR-%s%s%s",
		strings.ToUpper(string(rc.Incident.Category)),
		time.Now().Format("20060102"),
		idTail(rc.Incident.ID, 4))

	rc.Report.SetOutput(map[string]any{
		"ticket_id":                       ticketID,
		"priority":                        priority,
		"category":                        class.category,
		"subcategory":                     class.subcategory,
		"assigned_team":                   escalationTeam(rc.Incident.Category, rc.Incident.Severity),
		"estimated_resolution":            resolutionEstimate(rc.Incident.Category, rc.Incident.Severity),
		"context_enhanced_classification": true,
		"auto_assignment_rules":           true,
	})

	rc.Report.MutateIncident(func(inc *domain.Incident) {
		inc.TicketReference = ticketID
	})

	rc.Report.Progress(100)
	rc.Report.Logf("ticket %s created and auto-assigned", ticketID)
	return nil
}

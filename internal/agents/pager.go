package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warroomhq/warroom/internal/domain"
	"github.com/warroomhq/warroom/internal/messaging"
)

// Pager escalates the incident to the owning team and coordinates the
// stakeholder notification with the email agent.
type Pager struct {
	pacer Pacer
	rng   Rand
}

// NewPager creates the pager agent.
func NewPager(pacer Pacer, rng Rand) *Pager {
	return &Pager{pacer: pacer, rng: rng}
}

func (a *Pager) ID() string   { return "pager" }
func (a *Pager) Name() string { return "Pager Agent" }

func (a *Pager) Description() string {
	return "Intelligent escalation with category-aware team selection and coordinated stakeholder notification"
}

func (a *Pager) Capabilities() []string {
	return []string{"escalation_routing", "stakeholder_notification", "team_coordination", "priority_assessment"}
}

// Run selects the escalation team and on-call engineer for the incident and
// hands the notification details to the email agent.
func (a *Pager) Run(ctx context.Context, rc *RunContext) error {
	rc.Report.Logf("intelligent escalation analysis for %s", rc.Incident.Category)
	rc.Report.Progress(30)
	if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return err
	}

	team := escalationTeam(rc.Incident.Category, rc.Incident.Severity)
	engineer := onCallEngineer(a.rng, rc.Incident.Category, rc.Incident.Severity)

	rc.Report.Logf("escalating to %s with specialized engineer assignment", team)
	rc.Report.Progress(70)
	if err := a.pacer.Pause(ctx, time.Second, 1500*time.Millisecond); err != nil {
		return err
	}

	rc.Messenger.Send(messaging.Message{
		Sender:   a.ID(),
		Receiver: "email",
		Type:     messaging.TypeCollaborationRequest,
		Content: map[string]any{
			"task":              "coordinated_stakeholder_notification",
			"escalation_team":   team,
			"assigned_engineer": engineer,
			"incident_details": map[string]any{
				"type":             string(rc.Incident.Category),
				"severity":         string(rc.Incident.Severity),
				"title":            rc.Incident.Title,
				"affected_systems": rc.Incident.AffectedSystems,
			},
		},
		Priority: messaging.PriorityHigh,
	})
	rc.Report.AddMessagesSent(1)

	pagingRef := fmt.Sprintf("PD-%s-%s", strings.ToUpper(string(rc.Incident.Category)), idTail(rc.Incident.ID, 6))
	rc.Report.SetOutput(map[string]any{
		"paging_reference":         pagingRef,
		"escalated_to":             team,
		"assigned_engineer":        engineer,
		"notification_channels":    []string{"Paging", "Email", "Slack", "SMS"},
		"escalation_policy":        fmt.Sprintf("%s_escalation_v2", rc.Incident.Category),
		"coordinated_notification": true,
		"context_used":             true,
	})

	rc.Report.MutateIncident(func(inc *domain.Incident) {
		inc.PagingReference = pagingRef
	})

	rc.Report.Progress(100)
	rc.Report.Logf("escalation completed, %s from %s notified", engineer, team)
	return nil
}

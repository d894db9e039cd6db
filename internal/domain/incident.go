// Package domain contains the core entities of the incident pipeline.
package domain

import "time"

// Severity represents the impact level of an incident.
type Severity string

// Incident severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Category represents the class of system failure an incident describes.
type Category string

// Incident categories.
const (
	CategoryDatabase  Category = "database"
	CategorySecurity  Category = "security"
	CategoryContainer Category = "container"
	CategoryNetwork   Category = "network"
	CategoryAPI       Category = "api"
)

// IsValid checks if the category is valid.
func (c Category) IsValid() bool {
	switch c {
	case CategoryDatabase, CategorySecurity, CategoryContainer, CategoryNetwork, CategoryAPI:
		return true
	}
	return false
}

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen              IncidentStatus = "open"
	IncidentStatusResolved          IncidentStatus = "resolved"
	IncidentStatusPartiallyResolved IncidentStatus = "partially_resolved"
	IncidentStatusFailed            IncidentStatus = "failed"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusResolved,
		IncidentStatusPartiallyResolved, IncidentStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true once the incident can no longer change state.
func (s IncidentStatus) IsTerminal() bool {
	return s != IncidentStatusOpen
}

// WorkflowStatus represents the state of the pipeline run for an incident.
type WorkflowStatus string

// Workflow statuses.
const (
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
)

// IsValid checks if the workflow status is valid.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusInProgress, WorkflowStatusCompleted, WorkflowStatusFailed:
		return true
	}
	return false
}

// Incident represents a single incident moving through the pipeline.
type Incident struct {
	ID                 string         `json:"id"`
	WorkflowID         string         `json:"workflow_id"`
	ContextID          string         `json:"context_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Severity           Severity       `json:"severity"`
	Category           Category       `json:"category"`
	AffectedSystems    []string       `json:"affected_systems"`
	Status             IncidentStatus `json:"status"`
	WorkflowStatus     WorkflowStatus `json:"workflow_status"`
	CurrentAgent       string         `json:"current_agent,omitempty"`
	CompletedAgents    []string       `json:"completed_agents"`
	FailedAgents       []string       `json:"failed_agents"`
	RootCause          string         `json:"root_cause,omitempty"`
	Resolution         string         `json:"resolution,omitempty"`
	PagingReference    string         `json:"paging_reference,omitempty"`
	TicketReference    string         `json:"ticket_reference,omitempty"`
	RemediationActions []string       `json:"remediation_actions,omitempty"`
	Error              string         `json:"error,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	out := *i
	if i.AffectedSystems != nil {
		out.AffectedSystems = append([]string(nil), i.AffectedSystems...)
	}
	if i.CompletedAgents != nil {
		out.CompletedAgents = append([]string(nil), i.CompletedAgents...)
	}
	if i.FailedAgents != nil {
		out.FailedAgents = append([]string(nil), i.FailedAgents...)
	}
	if i.RemediationActions != nil {
		out.RemediationActions = append([]string(nil), i.RemediationActions...)
	}
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

package pipeline

import "errors"

// Lookup and lifecycle errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrAgentNotFound    = errors.New("agent not found")
	ErrShutdown         = errors.New("pipeline is shut down")
)

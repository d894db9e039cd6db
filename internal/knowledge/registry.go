// Package knowledge implements the shared context registry agents use to
// exchange confidence-weighted findings about an incident.
package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warroomhq/warroom/internal/broadcast"
)

// DefaultRelevanceThreshold filters peer insights below this confidence out
// of InsightsFor results when no threshold is configured.
const DefaultRelevanceThreshold = 0.7

// DefaultContextType is used when a context is created without an explicit type.
const DefaultContextType = "incident_analysis"

// Insight is a single agent finding recorded in a context.
type Insight struct {
	Data       map[string]any `json:"data"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Correlation is a cross-agent pattern recorded in a context.
type Correlation struct {
	AgentID   string         `json:"agent_id"`
	Pattern   string         `json:"pattern"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot is a point-in-time copy of a context, safe to hand to callers.
type Snapshot struct {
	ID              string             `json:"context_id"`
	IncidentID      string             `json:"incident_id"`
	ContextType     string             `json:"context_type"`
	Version         int                `json:"context_version"`
	SharedKnowledge map[string]any     `json:"shared_knowledge"`
	Insights        map[string]Insight `json:"agent_insights"`
	Correlations    []Correlation      `json:"correlation_patterns"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// InsightView is the context as seen by one requesting agent: everything
// except its own insights, filtered by the relevance threshold.
type InsightView struct {
	SharedKnowledge     map[string]any     `json:"shared_knowledge"`
	PeerInsights        map[string]Insight `json:"peer_insights"`
	Correlations        []Correlation      `json:"correlation_patterns"`
	AggregateConfidence float64            `json:"context_confidence"`
	InsightCount        int                `json:"insight_count"`
}

// incidentContext is the mutable registry entry. Its own mutex guards the
// insight map and version so publishes to different contexts never contend.
type incidentContext struct {
	mu           sync.Mutex
	id           string
	incidentID   string
	contextType  string
	version      int
	shared       map[string]any
	insights     map[string]Insight
	correlations []Correlation
	createdAt    time.Time
	updatedAt    time.Time
}

// Registry stores one context per incident and serves filtered views of it.
type Registry struct {
	mu        sync.RWMutex
	contexts  map[string]*incidentContext
	threshold float64
	sink      broadcast.Sink
	logger    *slog.Logger
}

// NewRegistry creates a registry. A non-positive threshold falls back to
// DefaultRelevanceThreshold, a nil sink to the discarding one.
func NewRegistry(threshold float64, sink broadcast.Sink, logger *slog.Logger) *Registry {
	if threshold <= 0 {
		threshold = DefaultRelevanceThreshold
	}
	if sink == nil {
		sink = broadcast.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		contexts:  make(map[string]*incidentContext),
		threshold: threshold,
		sink:      sink,
		logger:    logger,
	}
}

// Create registers a new context for an incident and returns its snapshot.
// The seed map becomes the initial shared knowledge.
func (r *Registry) Create(incidentID, contextType string, seed map[string]any) Snapshot {
	if contextType == "" {
		contextType = DefaultContextType
	}
	now := time.Now().UTC()
	ic := &incidentContext{
		id:          uuid.NewString(),
		incidentID:  incidentID,
		contextType: contextType,
		version:     1,
		shared:      copyMap(seed),
		insights:    make(map[string]Insight),
		createdAt:   now,
		updatedAt:   now,
	}
	if ic.shared == nil {
		ic.shared = make(map[string]any)
	}

	r.mu.Lock()
	r.contexts[ic.id] = ic
	r.mu.Unlock()

	r.logger.Info("context created", "context_id", ic.id, "incident_id", incidentID, "context_type", contextType)
	r.sink.Publish(broadcast.NewEvent(broadcast.EventContextUpdate, map[string]any{
		"context_id":  ic.id,
		"incident_id": incidentID,
		"action":      "created",
	}))
	return ic.snapshot()
}

// Get returns a snapshot of the context, or false if it does not exist.
func (r *Registry) Get(contextID string) (Snapshot, bool) {
	ic, ok := r.lookup(contextID)
	if !ok {
		return Snapshot{}, false
	}
	return ic.snapshot(), true
}

// Publish records an agent insight on a context, bumping its version.
// Confidence outside [0, 1] is rejected.
func (r *Registry) Publish(contextID, agentID string, data map[string]any, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("publish insight from %s: %w", agentID, ErrInvalidConfidence)
	}
	ic, ok := r.lookup(contextID)
	if !ok {
		return fmt.Errorf("publish insight from %s: %w", agentID, ErrContextNotFound)
	}

	ic.mu.Lock()
	ic.insights[agentID] = Insight{
		Data:       copyMap(data),
		Confidence: confidence,
		Timestamp:  time.Now().UTC(),
	}
	ic.version++
	ic.updatedAt = time.Now().UTC()
	version := ic.version
	ic.mu.Unlock()

	r.logger.Info("context updated", "context_id", contextID, "agent_id", agentID, "confidence", confidence, "version", version)
	r.sink.Publish(broadcast.NewEvent(broadcast.EventContextUpdate, map[string]any{
		"context_id":      contextID,
		"incident_id":     ic.incidentID,
		"agent_id":        agentID,
		"confidence":      confidence,
		"context_version": version,
		"action":          "insight_published",
	}))
	return nil
}

// InsightsFor returns the context view for one agent: peer insights above the
// relevance threshold, shared knowledge, correlations and the aggregate
// confidence over all recorded insights. The requesting agent's own insights
// are never included.
func (r *Registry) InsightsFor(contextID, agentID string) (InsightView, bool) {
	ic, ok := r.lookup(contextID)
	if !ok {
		return InsightView{}, false
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()

	peers := make(map[string]Insight)
	var sum float64
	for id, ins := range ic.insights {
		sum += ins.Confidence
		if id == agentID || ins.Confidence <= r.threshold {
			continue
		}
		peers[id] = Insight{
			Data:       copyMap(ins.Data),
			Confidence: ins.Confidence,
			Timestamp:  ins.Timestamp,
		}
	}
	var aggregate float64
	if len(ic.insights) > 0 {
		aggregate = sum / float64(len(ic.insights))
	}
	return InsightView{
		SharedKnowledge:     copyMap(ic.shared),
		PeerInsights:        peers,
		Correlations:        append([]Correlation(nil), ic.correlations...),
		AggregateConfidence: aggregate,
		InsightCount:        len(ic.insights),
	}, true
}

// SetSharedFact writes a key into the context's shared knowledge.
func (r *Registry) SetSharedFact(contextID, key string, value any) error {
	ic, ok := r.lookup(contextID)
	if !ok {
		return fmt.Errorf("set shared fact %q: %w", key, ErrContextNotFound)
	}
	ic.mu.Lock()
	ic.shared[key] = value
	ic.updatedAt = time.Now().UTC()
	ic.mu.Unlock()
	return nil
}

// AddCorrelation appends a correlation pattern to the context.
func (r *Registry) AddCorrelation(contextID, agentID, pattern string, details map[string]any) error {
	ic, ok := r.lookup(contextID)
	if !ok {
		return fmt.Errorf("add correlation %q: %w", pattern, ErrContextNotFound)
	}
	ic.mu.Lock()
	ic.correlations = append(ic.correlations, Correlation{
		AgentID:   agentID,
		Pattern:   pattern,
		Details:   copyMap(details),
		Timestamp: time.Now().UTC(),
	})
	ic.updatedAt = time.Now().UTC()
	ic.mu.Unlock()
	return nil
}

// List returns snapshots of all contexts, newest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	all := make([]*incidentContext, 0, len(r.contexts))
	for _, ic := range r.contexts {
		all = append(all, ic)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(all))
	for _, ic := range all {
		out = append(out, ic.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) lookup(contextID string) (*incidentContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ic, ok := r.contexts[contextID]
	return ic, ok
}

func (ic *incidentContext) snapshot() Snapshot {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	insights := make(map[string]Insight, len(ic.insights))
	for id, ins := range ic.insights {
		insights[id] = Insight{
			Data:       copyMap(ins.Data),
			Confidence: ins.Confidence,
			Timestamp:  ins.Timestamp,
		}
	}
	return Snapshot{
		ID:              ic.id,
		IncidentID:      ic.incidentID,
		ContextType:     ic.contextType,
		Version:         ic.version,
		SharedKnowledge: copyMap(ic.shared),
		Insights:        insights,
		Correlations:    append([]Correlation(nil), ic.correlations...),
		CreatedAt:       ic.createdAt,
		UpdatedAt:       ic.updatedAt,
	}
}

// copyMap copies the top level of m. Values are treated as immutable once
// recorded, so nested structures are shared.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package knowledge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroomhq/warroom/internal/broadcast"
)

type captureSink struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (s *captureSink) Publish(ev broadcast.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) kinds() []broadcast.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]broadcast.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestRegistryCreate(t *testing.T) {
	sink := &captureSink{}
	r := NewRegistry(0, sink, nil)

	snap := r.Create("INC-1", "", map[string]any{"baseline": "db outage"})

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "INC-1", snap.IncidentID)
	assert.Equal(t, DefaultContextType, snap.ContextType)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, "db outage", snap.SharedKnowledge["baseline"])
	assert.Empty(t, snap.Insights)

	got, ok := r.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, snap.ID, got.ID)

	assert.Equal(t, []broadcast.EventKind{broadcast.EventContextUpdate}, sink.kinds())
}

func TestRegistryGetMiss(t *testing.T) {
	r := NewRegistry(0, nil, nil)

	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryPublish(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	snap := r.Create("INC-1", "", nil)

	err := r.Publish(snap.ID, "monitoring", map[string]any{"anomaly": "connection_exhaustion"}, 0.91)
	require.NoError(t, err)

	got, ok := r.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Version)
	require.Contains(t, got.Insights, "monitoring")
	assert.Equal(t, 0.91, got.Insights["monitoring"].Confidence)
	assert.Equal(t, "connection_exhaustion", got.Insights["monitoring"].Data["anomaly"])
	assert.False(t, got.Insights["monitoring"].Timestamp.IsZero())

	// Re-publishing upserts and bumps the version again.
	require.NoError(t, r.Publish(snap.ID, "monitoring", map[string]any{"anomaly": "revised"}, 0.95))
	got, _ = r.Get(snap.ID)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "revised", got.Insights["monitoring"].Data["anomaly"])
}

func TestRegistryPublishErrors(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	snap := r.Create("INC-1", "", nil)

	tests := []struct {
		name       string
		contextID  string
		confidence float64
		wantErr    error
	}{
		{name: "unknown context", contextID: "missing", confidence: 0.5, wantErr: ErrContextNotFound},
		{name: "confidence below range", contextID: snap.ID, confidence: -0.1, wantErr: ErrInvalidConfidence},
		{name: "confidence above range", contextID: snap.ID, confidence: 1.1, wantErr: ErrInvalidConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Publish(tt.contextID, "rca", nil, tt.confidence)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistryInsightsFor(t *testing.T) {
	r := NewRegistry(0.7, nil, nil)
	snap := r.Create("INC-1", "", map[string]any{"category": "database"})

	require.NoError(t, r.Publish(snap.ID, "monitoring", map[string]any{"anomaly": "x"}, 0.91))
	require.NoError(t, r.Publish(snap.ID, "rca", map[string]any{"cause": "y"}, 0.95))
	// At the threshold exactly: must be filtered out.
	require.NoError(t, r.Publish(snap.ID, "pager", map[string]any{"paged": true}, 0.7))
	require.NoError(t, r.Publish(snap.ID, "email", map[string]any{"sent": 3}, 0.2))

	view, ok := r.InsightsFor(snap.ID, "rca")
	require.True(t, ok)

	// Own insight excluded, low-confidence peers filtered.
	assert.Contains(t, view.PeerInsights, "monitoring")
	assert.NotContains(t, view.PeerInsights, "rca")
	assert.NotContains(t, view.PeerInsights, "pager")
	assert.NotContains(t, view.PeerInsights, "email")

	// Aggregate confidence is the mean over every recorded insight.
	assert.InDelta(t, (0.91+0.95+0.7+0.2)/4, view.AggregateConfidence, 1e-9)
	assert.Equal(t, 4, view.InsightCount)
	assert.Equal(t, "database", view.SharedKnowledge["category"])
}

func TestRegistryInsightsForEmptyContext(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	snap := r.Create("INC-1", "", nil)

	view, ok := r.InsightsFor(snap.ID, "monitoring")
	require.True(t, ok)
	assert.Empty(t, view.PeerInsights)
	assert.Zero(t, view.AggregateConfidence)

	_, ok = r.InsightsFor("missing", "monitoring")
	assert.False(t, ok)
}

func TestRegistrySharedFactsAndCorrelations(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	snap := r.Create("INC-1", "", nil)

	require.NoError(t, r.SetSharedFact(snap.ID, "final_resolution", map[string]any{"status": "resolved"}))
	require.NoError(t, r.AddCorrelation(snap.ID, "rca", "cascading_failure", map[string]any{"depth": 2}))

	got, ok := r.Get(snap.ID)
	require.True(t, ok)
	assert.Contains(t, got.SharedKnowledge, "final_resolution")
	require.Len(t, got.Correlations, 1)
	assert.Equal(t, "cascading_failure", got.Correlations[0].Pattern)
	assert.Equal(t, "rca", got.Correlations[0].AgentID)

	assert.ErrorIs(t, r.SetSharedFact("missing", "k", 1), ErrContextNotFound)
	assert.ErrorIs(t, r.AddCorrelation("missing", "rca", "p", nil), ErrContextNotFound)
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	snap := r.Create("INC-1", "", map[string]any{"seed": "v"})

	snap.SharedKnowledge["seed"] = "mutated"
	snap.SharedKnowledge["extra"] = true

	got, _ := r.Get(snap.ID)
	assert.Equal(t, "v", got.SharedKnowledge["seed"])
	assert.NotContains(t, got.SharedKnowledge, "extra")
}

func TestRegistryConcurrentPublishes(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	snap := r.Create("INC-1", "", nil)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_ = r.Publish(snap.ID, "monitoring", map[string]any{"n": 1}, 0.9)
		}()
	}
	wg.Wait()

	got, ok := r.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, 1+writers, got.Version)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	first := r.Create("INC-1", "", nil)
	second := r.Create("INC-2", "", nil)

	list := r.List()
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

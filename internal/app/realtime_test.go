package app_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warroomhq/warroom/internal/testutil"
)

type realtimeEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func dialRealtime(t *testing.T, fx *fixture) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/api/v1/realtime"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) realtimeEvent {
	t.Helper()
	var ev realtimeEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// waitForSubscribers polls the stats endpoint until the broker reports the
// expected number of realtime subscribers.
func waitForSubscribers(t *testing.T, fx *fixture, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(fx.server.URL + "/api/v1/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				System struct {
					RealtimeSubscribers int `json:"realtime_subscribers"`
				} `json:"system"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body.Data.System.RealtimeSubscribers == want
	}, 5*time.Second, 20*time.Millisecond, "expected %d realtime subscribers", want)
}

func TestRealtimeHello(t *testing.T) {
	fx := newFixture(t)
	conn := dialRealtime(t, fx)

	hello := readEvent(t, conn)
	assert.Equal(t, "connection_established", hello.Type)
	assert.Equal(t, "Realtime updates connected", hello.Data["message"])
	assert.False(t, hello.Timestamp.IsZero())

	feeds, ok := hello.Data["feeds"].([]any)
	require.True(t, ok, "feeds should be a list, got %T", hello.Data["feeds"])
	assert.ElementsMatch(t, []any{"context_update", "message_update", "workflow_update"}, feeds)

	waitForSubscribers(t, fx, 1)
}

func TestRealtimeEcho(t *testing.T) {
	fx := newFixture(t)
	conn := dialRealtime(t, fx)
	readEvent(t, conn) // hello

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	ev := readEvent(t, conn)
	assert.Equal(t, "echo", ev.Type)
	assert.Equal(t, "ping", ev.Data["received"])
}

func TestRealtimeWorkflowEvents(t *testing.T) {
	fx := newFixture(t)
	conn := dialRealtime(t, fx)
	readEvent(t, conn) // hello
	waitForSubscribers(t, fx, 1)

	resp := fx.client.Post("/api/v1/incidents", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var triggered struct {
		IncidentID string `json:"incident_id"`
		ContextID  string `json:"context_id"`
	}
	testutil.DecodeData(t, resp, &triggered)

	// Context creation and workflow start both publish; take events until the
	// workflow update for this incident arrives.
	var sawContext bool
	var workflow realtimeEvent
	for {
		ev := readEvent(t, conn)
		if ev.Type == "context_update" && ev.Data["context_id"] == triggered.ContextID {
			sawContext = true
			continue
		}
		if ev.Type == "workflow_update" && ev.Data["incident_id"] == triggered.IncidentID {
			workflow = ev
			break
		}
	}

	assert.True(t, sawContext, "context_update for the new incident should be broadcast")
	assert.Equal(t, "in_progress", workflow.Data["workflow_status"])
	assert.NotEmpty(t, workflow.Data["message"])
}

func TestRealtimeOriginCheck(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://ops.example"}
	fx := newFixtureWithConfig(t, cfg)
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/api/v1/realtime"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Origin": []string{"http://evil.example"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Origin": []string{"http://ops.example"},
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	hello := readEvent(t, conn)
	assert.Equal(t, "connection_established", hello.Type)
}

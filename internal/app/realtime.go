package app

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/warroomhq/warroom/internal/broadcast"
	"github.com/warroomhq/warroom/internal/pkg/ctxlog"
	"github.com/warroomhq/warroom/internal/pkg/metrics"
)

// realtimeWriteWait bounds how long a single event write may block before
// the connection is considered dead.
const realtimeWriteWait = 10 * time.Second

// realtimeHandler handles GET /realtime requests. It upgrades the connection
// to a WebSocket, attaches it to the broadcast broker and pushes every
// pipeline, context and messaging event to the client. Text frames sent by
// the client are echoed back for connection verification.
func (a *App) realtimeHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	hello := broadcast.NewEvent(broadcast.EventConnectionEstablished, map[string]any{
		"message": "Realtime updates connected",
		"feeds": []string{
			string(broadcast.EventContextUpdate),
			string(broadcast.EventMessageUpdate),
			string(broadcast.EventWorkflowUpdate),
		},
	})
	if err := writeEvent(conn, hello); err != nil {
		logger.Warn("websocket handshake write failed", "error", err)
		_ = conn.Close()
		return
	}

	id, events := a.broker.Attach()
	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()
	defer a.broker.Detach(id)

	// Echoes are funneled through the writer goroutine so only one goroutine
	// ever writes to the connection.
	echoes := make(chan broadcast.Event, 8)
	go func() {
		defer conn.Close()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					// Detached, either by us or as a slow subscriber.
					return
				}
				if err := writeEvent(conn, ev); err != nil {
					return
				}
			case ev := <-echoes:
				if err := writeEvent(conn, ev); err != nil {
					return
				}
			}
		}
	}()

	logger.Info("realtime subscriber connected", "subscriber_id", id)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("realtime subscriber disconnected", "subscriber_id", id, "error", err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev := broadcast.NewEvent(broadcast.EventEcho, map[string]any{
			"received": string(data),
		})
		select {
		case echoes <- ev:
		default:
			// Drop the echo rather than block the read loop.
		}
	}
}

func writeEvent(conn *websocket.Conn, ev broadcast.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteWait))
	return conn.WriteJSON(ev)
}

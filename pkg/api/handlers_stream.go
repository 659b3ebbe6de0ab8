package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/parlancehq/parlance/pkg/bus"
	"github.com/parlancehq/parlance/pkg/logging"
	"github.com/parlancehq/parlance/pkg/metrics"
)

const (
	// defaultEventFilter subscribes to every engine subject.
	defaultEventFilter = "parlance.>"

	heartbeatInterval = 30 * time.Second
)

// Event is one lifecycle message fanned out to stream clients.
type Event struct {
	Type      string         `json:"type"`
	ID        string         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// eventFromMessage decodes a bus message into the client-facing shape. The
// execution ID is lifted out of the payload when present.
func eventFromMessage(msg *bus.Message) Event {
	event := Event{Type: msg.Subject, Timestamp: time.Now()}
	var payload map[string]any
	if json.Unmarshal(msg.Data, &payload) == nil {
		event.Data = payload
		if id, ok := payload["id"].(string); ok {
			event.ID = id
		}
	}
	return event
}

// handleEvents streams the global lifecycle feed as SSE. Clients can narrow
// the feed with a ?filter= subject pattern.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = defaultEventFilter
	}

	events := make(chan Event, 128)
	sub, err := s.eventBus.Subscribe(ctx, filter, func(msg *bus.Message) {
		select {
		case events <- eventFromMessage(msg):
		default:
			// A stalled client loses events rather than backing up the bus.
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe: "+err.Error())
		return
	}
	defer sub.Unsubscribe()

	metrics.StreamClientConnected()
	defer metrics.StreamClientDisconnected()

	writeEventFrame(w, flusher, Event{
		Type:      "connected",
		Timestamp: time.Now(),
		Data:      map[string]any{"filter": filter},
	})

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !writeEventFrame(w, flusher, Event{Type: "heartbeat", Timestamp: time.Now()}) {
				return
			}
		case event := <-events:
			if !writeEventFrame(w, flusher, event) {
				return
			}
		}
	}
}

// writeEventFrame writes one SSE data frame and reports whether the client
// is still there.
func writeEventFrame(w http.ResponseWriter, flusher http.Flusher, event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return true
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// clientMessage is what websocket clients may send us.
type clientMessage struct {
	Type string `json:"type"`
}

// handleWebSocket serves the lifecycle feed over a websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	// No configured origins means any origin may subscribe.
	patterns := s.corsOrigins
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: patterns,
	})
	if err != nil {
		s.logf(logging.LevelWarn, "ws_accept_failed", err.Error(), nil)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = defaultEventFilter
	}

	events := make(chan Event, 128)
	sub, err := s.eventBus.Subscribe(ctx, filter, func(msg *bus.Message) {
		select {
		case events <- eventFromMessage(msg):
		default:
		}
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	defer sub.Unsubscribe()

	metrics.StreamClientConnected()
	defer metrics.StreamClientDisconnected()

	if err := wsjson.Write(ctx, conn, Event{
		Type:      "connected",
		Timestamp: time.Now(),
		Data:      map[string]any{"filter": filter, "protocol": "websocket"},
	}); err != nil {
		return
	}

	// Read loop: answer pings, cancel the feed when the client goes away.
	go func() {
		defer cancel()
		for {
			var msg clientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				_ = wsjson.Write(ctx, conn, Event{Type: "pong", Timestamp: time.Now()})
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, Event{Type: "heartbeat", Timestamp: time.Now()}); err != nil {
				return
			}
		case event := <-events:
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}

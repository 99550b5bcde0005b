package progress

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"recording-insights-go/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one progress update pushed to websocket subscribers.
type Event struct {
	Type        string         `json:"type"`
	RecordingID string         `json:"recording_id"`
	Stage       string         `json:"stage,omitempty"`
	Percent     int            `json:"percent,omitempty"`
	Message     string         `json:"message,omitempty"`
	Results     *types.Results `json:"results,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Hub broadcasts progress events to connected websocket clients. Slow or
// broken connections are dropped, never waited on.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	log   *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{}), log: log}
}

// Serve upgrades the request and holds the connection open until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("error", err.Error()).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain control frames; we only push.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ForRecording returns a Tracker that publishes this recording's events to
// the hub's subscribers.
func (h *Hub) ForRecording(recordingID string) Tracker {
	return &hubTracker{hub: h, recordingID: recordingID}
}

type hubTracker struct {
	hub         *Hub
	recordingID string
}

func (t *hubTracker) Update(_ context.Context, stage string, percent int, message string) error {
	t.hub.broadcast(Event{
		Type:        "progress",
		RecordingID: t.recordingID,
		Stage:       stage,
		Percent:     percent,
		Message:     message,
	})
	return nil
}

func (t *hubTracker) Complete(_ context.Context, results *types.Results, message string) error {
	t.hub.broadcast(Event{
		Type:        "completed",
		RecordingID: t.recordingID,
		Percent:     100,
		Message:     message,
		Results:     results,
	})
	return nil
}

func (t *hubTracker) Fail(_ context.Context, err error) error {
	t.hub.broadcast(Event{
		Type:        "failed",
		RecordingID: t.recordingID,
		Error:       err.Error(),
	})
	return nil
}

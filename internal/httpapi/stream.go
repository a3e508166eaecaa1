package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/pubsub"
	"github.com/roach88/meltshop/internal/session"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// StreamMessage is one websocket frame. Kind is "alert", "event" or
// "session"; Type is the notification type.
type StreamMessage struct {
	Kind string          `json:"kind"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleStream pushes every alert, event and session notification to the
// client as JSON until it disconnects. Subscriptions are in place before
// the upgrade response is sent, so nothing published after the handshake
// is missed. Frames are encoded on the engine goroutine; a client that
// falls behind loses frames instead of stalling the plant.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	frames := make(chan []byte, streamBuffer)
	push := func(kind, typ string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			slog.Debug("stream encode failed", "kind", kind, "error", err)
			return
		}
		frame, err := json.Marshal(StreamMessage{Kind: kind, Type: typ, Data: data})
		if err != nil {
			return
		}
		select {
		case frames <- frame:
		default:
			slog.Debug("stream client lagging, frame dropped", "kind", kind)
		}
	}

	var subs []*pubsub.Subscription
	err := s.exec.Do(r.Context(), "subscribe stream", func() error {
		subs = []*pubsub.Subscription{
			s.plant.Alerts().Stream(func(n alert.Notification) {
				push("alert", string(n.Type), n.Record)
			}),
			s.plant.Events().Stream(func(n eventlog.Notification) {
				push("event", string(n.Type), n.Record)
			}),
			s.plant.Sessions().Stream(func(n session.Notification) {
				push("session", string(n.Type), n.Session)
			}),
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Debug("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

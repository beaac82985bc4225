package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"cardroom/native/authority"
)

const wsWriteTimeout = 10 * time.Second

// handleEventsWS streams the authority event log over a WebSocket. The
// optional cursor query parameter replays the backlog from that
// sequence before switching to live events.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.allowSource(clientSource(r)) {
		http.Error(w, "request rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var cursor uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	// Subscribe before reading the backlog so nothing emitted in
	// between is lost; duplicates are filtered by sequence below.
	events, cancel := s.node.SubscribeEvents()
	defer cancel()

	var lastSent uint64
	sent := false
	for _, evt := range s.node.EventsSince(cursor) {
		if err := writeEvent(ctx, conn, evt); err != nil {
			return err
		}
		lastSent = evt.Sequence
		sent = true
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if evt.Sequence < cursor || (sent && evt.Sequence <= lastSent) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
			lastSent = evt.Sequence
			sent = true
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *authority.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

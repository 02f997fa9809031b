package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

type wsUserIDContextKey struct{}

// ContextWithUserID carries an authenticated user id into the WebSocket
// handshake request. The HTTP layer sets it after verifying the token.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, wsUserIDContextKey{}, strings.TrimSpace(userID))
}

type wsSession struct {
	mu   sync.Mutex
	peer *wsPeer
	room *matchRoom
}

func (s *wsSession) setRoom(next *matchRoom) *matchRoom {
	s.mu.Lock()
	previous := s.room
	s.room = next
	s.mu.Unlock()
	return previous
}

func (s *wsSession) currentRoom() *matchRoom {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	return room
}

// Handler serves the live match feed over a WebSocket connection. Unknown
// users subscribe as viewers; the snapshot view is scoped to their role.
func (h *Hub) Handler() websocket.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		h.handleConn(conn)
	})
}

func (h *Hub) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	userID := ""
	if request := conn.Request(); request != nil {
		if resolved, ok := request.Context().Value(wsUserIDContextKey{}).(string); ok {
			userID = resolved
		}
	}

	decoder := json.NewDecoder(conn)
	session := &wsSession{peer: newWSPeer(userID, json.NewEncoder(conn))}
	defer func() {
		if room := session.currentRoom(); room != nil {
			h.leaveRoom(room, session.peer)
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", "INVALID_ARGUMENT", "invalid frame payload", false)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large", false)
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded", false)
			return
		}

		switch frame.Type {
		case "match.subscribe":
			h.handleSubscribe(conn.Request().Context(), session, frame)
		case "match.resync":
			h.handleResync(session, frame)
		case "match.events.after":
			h.handleEventsAfter(conn.Request().Context(), session, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type", false)
		}
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload subscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid subscribe payload", false)
		return
	}

	matchID := strings.TrimSpace(payload.MatchID)
	if matchID == "" {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "match_id is required", false)
		return
	}

	view, err := h.source.GetSnapshot(ctx, matchID, session.peer.userID)
	if err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "NOT_FOUND", "match has no live innings", false)
		return
	}
	version := view.Snapshot.Version

	room := h.room(matchID)
	previous := session.setRoom(room)
	if previous != nil && previous != room {
		h.leaveRoom(previous, session.peer)
	}

	// A client claiming a version the server has not seen is treated as
	// current; real gaps surface through the next delta.
	lastSeen := payload.LastVersion
	if lastSeen > version {
		lastSeen = version
	}
	room.join(session.peer, lastSeen)
	room.markSeen(session.peer, lastSeen)

	_ = session.peer.writeFrame(wsFrame{
		Type:      "match.subscribed",
		RequestID: frame.RequestID,
		Payload: mustJSON(subscribedPayload{
			MatchID:       matchID,
			LatestVersion: version,
			ServerTime:    time.Now().UTC().Format(time.RFC3339),
		}),
	})

	// Only stale subscribers pay for a snapshot; a client reconnecting at
	// the current version just resumes the delta stream.
	if lastSeen < version {
		_ = session.peer.writeFrame(wsFrame{
			Type:    "match.snapshot",
			Payload: mustJSON(snapshotPayload{MatchID: matchID, View: view}),
		})
		room.markSeen(session.peer, version)
	}
}

func (h *Hub) handleResync(session *wsSession, frame wsFrame) {
	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, "FAILED_PRECONDITION", "subscribe before requesting a resync", false)
		return
	}
	if version, ok := h.pushSnapshot(session.peer, room.matchID, frame.RequestID); ok {
		room.markSeen(session.peer, version)
	}
}

func (h *Hub) handleEventsAfter(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload struct {
		AfterSeq uint64 `json:"after_seq"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid events payload", false)
		return
	}
	if payload.Limit <= 0 {
		payload.Limit = 50
	}
	if payload.Limit > 200 {
		payload.Limit = 200
	}

	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, "FAILED_PRECONDITION", "subscribe before requesting events", false)
		return
	}

	events, err := h.source.ListEvents(ctx, room.matchID, payload.AfterSeq, payload.Limit)
	if err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "UNAVAILABLE", "event log unavailable", true)
		return
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      "match.events",
		RequestID: frame.RequestID,
		Payload: mustJSON(eventsPayload{
			MatchID: room.matchID,
			Events:  events,
			Count:   len(events),
		}),
	})
}

// Package realtime fans live scoring updates out to WebSocket subscribers.
//
// Deltas carry the appended event plus the snapshot version they produce; a
// subscriber whose last-seen version does not line up gets the full snapshot
// instead, so a dropped frame never leaves a client silently stale.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/crease/internal/match/event"
	"github.com/louisbranch/crease/internal/scoring"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	updateQueueDepth = 256
)

// SnapshotSource serves authoritative state for subscribe and resync requests.
// The scoring service satisfies it.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, matchID, userID string) (scoring.View, error)
	ListEvents(ctx context.Context, matchID string, afterSeq uint64, limit int) ([]event.Event, error)
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type subscribePayload struct {
	MatchID     string `json:"match_id"`
	LastVersion uint64 `json:"last_version,omitempty"`
}

type subscribedPayload struct {
	MatchID       string `json:"match_id"`
	LatestVersion uint64 `json:"latest_version"`
	ServerTime    string `json:"server_time"`
}

type snapshotPayload struct {
	MatchID string       `json:"match_id"`
	View    scoring.View `json:"view"`
}

type deltaPayload struct {
	MatchID string      `json:"match_id"`
	Event   event.Event `json:"event"`
	Version uint64      `json:"version"`
}

type eventsPayload struct {
	MatchID string        `json:"match_id"`
	Events  []event.Event `json:"events"`
	Count   int           `json:"count"`
}

type wsPeer struct {
	mu      sync.Mutex
	userID  string
	encoder *json.Encoder
}

func newWSPeer(userID string, encoder *json.Encoder) *wsPeer {
	return &wsPeer{userID: userID, encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

type matchRoom struct {
	mu            sync.Mutex
	matchID       string
	latestVersion uint64
	// subscribers maps each peer to the last snapshot version it was sent.
	subscribers map[*wsPeer]uint64
}

func newMatchRoom(matchID string) *matchRoom {
	return &matchRoom{
		matchID:     matchID,
		subscribers: make(map[*wsPeer]uint64),
	}
}

func (r *matchRoom) join(peer *wsPeer, lastVersion uint64) uint64 {
	r.mu.Lock()
	r.subscribers[peer] = lastVersion
	latest := r.latestVersion
	r.mu.Unlock()
	return latest
}

func (r *matchRoom) leave(peer *wsPeer) bool {
	r.mu.Lock()
	delete(r.subscribers, peer)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	return empty
}

func (r *matchRoom) markSeen(peer *wsPeer, version uint64) {
	r.mu.Lock()
	if _, ok := r.subscribers[peer]; ok {
		r.subscribers[peer] = version
	}
	if version > r.latestVersion {
		r.latestVersion = version
	}
	r.mu.Unlock()
}

// plan splits the subscriber set into peers that can apply the delta and
// peers that need a full snapshot because their last-seen version does not
// immediately precede this update.
func (r *matchRoom) plan(update scoring.Update) (deltas, stale []*wsPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version := update.Snapshot.Version
	for peer, seen := range r.subscribers {
		if seen >= version {
			continue
		}
		if !update.Resync && seen == version-1 {
			deltas = append(deltas, peer)
		} else {
			stale = append(stale, peer)
		}
		r.subscribers[peer] = version
	}
	if version > r.latestVersion {
		r.latestVersion = version
	}
	return deltas, stale
}

// Hub routes scoring updates to the rooms that hold live subscribers. It is
// the scoring service's publisher; Publish never blocks the scoring path.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]*matchRoom
	source  SnapshotSource
	updates chan scoring.Update
	done    chan struct{}
}

// NewHub starts a hub draining its update queue on a single dispatch
// goroutine, which preserves publish order per match.
func NewHub(source SnapshotSource) *Hub {
	h := &Hub{
		rooms:   make(map[string]*matchRoom),
		source:  source,
		updates: make(chan scoring.Update, updateQueueDepth),
		done:    make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Close stops the dispatch loop. Pending queued updates are dropped.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	close(h.done)
}

// Publish enqueues an update for fan-out. A full queue drops the update and
// relies on version gap detection to resync the affected subscribers.
func (h *Hub) Publish(update scoring.Update) {
	if h == nil {
		return
	}
	select {
	case h.updates <- update:
	case <-h.done:
	default:
		log.Printf("realtime: update queue full, dropping delta match=%s version=%d", update.MatchID, update.Snapshot.Version)
	}
}

func (h *Hub) dispatch() {
	for {
		select {
		case update := <-h.updates:
			h.deliver(update)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) deliver(update scoring.Update) {
	room := h.existingRoom(update.MatchID)
	if room == nil {
		return
	}

	deltas, stale := room.plan(update)

	if len(deltas) > 0 {
		frame := wsFrame{
			Type: "match.delta",
			Payload: mustJSON(deltaPayload{
				MatchID: update.MatchID,
				Event:   update.Event,
				Version: update.Snapshot.Version,
			}),
		}
		for _, peer := range deltas {
			_ = peer.writeFrame(frame)
		}
	}

	for _, peer := range stale {
		h.pushSnapshot(peer, update.MatchID, "")
	}
}

// pushSnapshot fetches a role-scoped view for the peer and writes it as a
// full snapshot frame. It reports the version it served.
func (h *Hub) pushSnapshot(peer *wsPeer, matchID, requestID string) (uint64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	view, err := h.source.GetSnapshot(ctx, matchID, peer.userID)
	cancel()
	if err != nil {
		log.Printf("realtime: snapshot fetch failed match=%s err=%v", matchID, err)
		_ = writeWSError(peer, requestID, "UNAVAILABLE", "snapshot unavailable", true)
		return 0, false
	}
	_ = peer.writeFrame(wsFrame{
		Type:      "match.snapshot",
		RequestID: requestID,
		Payload:   mustJSON(snapshotPayload{MatchID: matchID, View: view}),
	})
	return view.Snapshot.Version, true
}

func (h *Hub) room(matchID string) *matchRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[matchID]
	if ok {
		return room
	}
	room = newMatchRoom(matchID)
	h.rooms[matchID] = room
	return room
}

func (h *Hub) existingRoom(matchID string) *matchRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[matchID]
}

func (h *Hub) leaveRoom(room *matchRoom, peer *wsPeer) {
	if room == nil || peer == nil {
		return
	}
	if !room.leave(peer) {
		return
	}
	h.mu.Lock()
	if current, ok := h.rooms[room.matchID]; ok && current == room {
		delete(h.rooms, room.matchID)
	}
	h.mu.Unlock()
}

func writeWSError(peer *wsPeer, requestID string, code string, message string, retryable bool) error {
	return peer.writeFrame(wsFrame{
		Type:      "match.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: retryable,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("realtime: marshal frame payload: %v", err)
		return nil
	}
	return b
}

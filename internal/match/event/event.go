// Package event defines the immutable score events appended to a match log.
package event

import (
	"encoding/json"
	"strings"
	"time"
)

// Type identifies the type of a score event.
type Type string

// Innings lifecycle events.
const (
	// TypeInningsStarted records the start of an innings with its opening players.
	TypeInningsStarted Type = "innings.started"
	// TypeInningsEnded records a manual or automatic end of an innings.
	TypeInningsEnded Type = "innings.ended"
)

// Delivery events.
const (
	// TypeBallScored records a legal delivery and the runs scored off the bat.
	TypeBallScored Type = "ball.scored"
	// TypeExtraScored records a wide, no-ball, bye, leg-bye, or penalty.
	TypeExtraScored Type = "extra.scored"
	// TypeWicketFallen records a dismissal.
	TypeWicketFallen Type = "wicket.fallen"
)

// Selection events resolving pending actions.
const (
	// TypeBowlerSelected records the bowler chosen for the next over.
	TypeBowlerSelected Type = "bowler.selected"
	// TypeBatterSelected records the incoming batter after a dismissal.
	TypeBatterSelected Type = "batter.selected"
	// TypeInningsTwoApproved records approval to begin the second innings.
	TypeInningsTwoApproved Type = "innings.two_approved"
)

// Match lifecycle events.
const (
	// TypeMatchEnded records the final result computation.
	TypeMatchEnded Type = "match.ended"
	// TypeMatchLocked records a lock freezing further scoring.
	TypeMatchLocked Type = "match.locked"
	// TypeMatchUnlocked records an administrative unlock.
	TypeMatchUnlocked Type = "match.unlocked"
)

// History-revision events. These are never themselves undoable or editable.
const (
	// TypeEventUndone voids a prior event by sequence number.
	TypeEventUndone Type = "event.undone"
	// TypeEventEdited supersedes a prior event's payload by sequence number.
	TypeEventEdited Type = "event.edited"
)

// Event represents an immutable entry in a match's score log. It is served
// as-is over the HTTP and WebSocket surfaces, so the field names follow the
// snake_case of the rest of the API.
type Event struct {
	// MatchID is the match this event belongs to.
	MatchID string `json:"match_id"`
	// Innings is the innings number (1 or 2) the event applies to.
	Innings int `json:"innings"`
	// Seq is the event sequence number within the match (starts at 1).
	// Assigned by storage on append.
	Seq uint64 `json:"seq"`
	// Over and BallInOver capture the position at the time of recording.
	Over       int `json:"over"`
	BallInOver int `json:"ball_in_over"`
	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Type identifies the kind of event.
	Type Type `json:"type"`
	// ActorID is the user who submitted the event.
	ActorID string `json:"actor_id"`
	// IdempotencyKey is the caller-supplied at-most-once token, unique per match.
	IdempotencyKey string `json:"idempotency_key"`
	// TargetSeq references an earlier event for undo/edit events (0 otherwise).
	TargetSeq uint64 `json:"target_seq,omitempty"`
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON json.RawMessage `json:"payload,omitempty"`
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	switch t {
	case TypeInningsStarted, TypeInningsEnded,
		TypeBallScored, TypeExtraScored, TypeWicketFallen,
		TypeBowlerSelected, TypeBatterSelected, TypeInningsTwoApproved,
		TypeMatchEnded, TypeMatchLocked, TypeMatchUnlocked,
		TypeEventUndone, TypeEventEdited:
		return true
	}
	return false
}

// IsRevision reports whether the event rewrites history instead of extending it.
func (t Type) IsRevision() bool {
	return t == TypeEventUndone || t == TypeEventEdited
}

// IsRevisable reports whether events of this type may be undone or edited.
// Innings starts and revisions themselves are permanent.
func (t Type) IsRevisable() bool {
	switch t {
	case TypeInningsStarted, TypeEventUndone, TypeEventEdited:
		return false
	}
	return t.IsValid()
}

// Domain returns the domain prefix of the event type (e.g. "ball", "wicket").
func (t Type) Domain() string {
	if i := strings.IndexByte(string(t), '.'); i >= 0 {
		return string(t[:i])
	}
	return string(t)
}

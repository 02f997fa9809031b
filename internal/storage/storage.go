// Package storage defines the persistence interfaces and records the scoring
// service depends on. Implementations live in subpackages.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// MatchRecord holds the per-match settings the engine folds against: the rule
// flags and the two rosters. It is written once at match creation and read on
// every mutation.
type MatchRecord struct {
	ID            string
	Name          string
	TeamAID       string
	TeamBID       string
	Rules         engine.Rules
	TeamARoster   []string
	TeamBRoster   []string
	CurrentInning int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SnapshotRecord is a materialized innings snapshot keyed by (match, innings).
type SnapshotRecord struct {
	MatchID   string
	Innings   int
	Version   uint64
	Snapshot  engine.Snapshot
	UpdatedAt time.Time
}

// RoleRecord binds a user to a role for one match.
type RoleRecord struct {
	MatchID   string
	UserID    string
	Role      string
	GrantedBy string
	CreatedAt time.Time
}

// AuditRecord is one audit-log entry. Every accepted mutation and every
// rejected permission check produces one.
type AuditRecord struct {
	ID        string
	MatchID   string
	ActorID   string
	Action    string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

// MatchStore owns match registration and settings.
type MatchStore interface {
	PutMatch(ctx context.Context, m MatchRecord) error
	GetMatch(ctx context.Context, matchID string) (MatchRecord, error)
	// SetCurrentInning advances the innings pointer when the second innings starts.
	SetCurrentInning(ctx context.Context, matchID string, inning int) error
}

// EventStore owns the append-only per-match event journal.
type EventStore interface {
	// AppendEvent atomically allocates the next per-match sequence and inserts
	// the event. When the idempotency key was already used for the match, the
	// previously stored event is returned instead of a new append.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// GetEventByIdempotencyKey returns the stored event for a key, or ErrNotFound.
	GetEventByIdempotencyKey(ctx context.Context, matchID, key string) (event.Event, error)
	// GetEventBySeq returns one event by its per-match sequence.
	GetEventBySeq(ctx context.Context, matchID string, seq uint64) (event.Event, error)
	// ListEvents returns up to limit events with seq > afterSeq, in seq order.
	ListEvents(ctx context.Context, matchID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListInningsEvents returns the complete history for one innings, in seq order.
	ListInningsEvents(ctx context.Context, matchID string, innings int) ([]event.Event, error)
	// GetLatestEventSeq returns the highest allocated sequence, zero when empty.
	GetLatestEventSeq(ctx context.Context, matchID string) (uint64, error)
}

// SnapshotStore owns materialized innings snapshots. Writes are conditional:
// a snapshot with a version at or below the stored one is not persisted.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, rec SnapshotRecord) error
	GetSnapshot(ctx context.Context, matchID string, innings int) (SnapshotRecord, error)
	// GetLatestSnapshot returns the snapshot of the highest innings on record.
	GetLatestSnapshot(ctx context.Context, matchID string) (SnapshotRecord, error)
}

// CursorStore tracks the last accepted client sequence per (match, client),
// enforcing strictly-increasing submission order for clients that opt in.
type CursorStore interface {
	// AdvanceCursor records clientSeq if it is strictly greater than the stored
	// value; otherwise it fails with CodeClientSeqOutOfOrder.
	AdvanceCursor(ctx context.Context, matchID, clientID string, clientSeq uint64) error
	GetCursor(ctx context.Context, matchID, clientID string) (uint64, error)
}

// RoleStore owns per-match role grants.
type RoleStore interface {
	PutRole(ctx context.Context, rec RoleRecord) error
	GetRole(ctx context.Context, matchID, userID string) (RoleRecord, error)
	ListRoles(ctx context.Context, matchID string) ([]RoleRecord, error)
	DeleteRole(ctx context.Context, matchID, userID string) error
}

// AuditStore appends audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, rec AuditRecord) error
	ListAudit(ctx context.Context, matchID string, limit int) ([]AuditRecord, error)
}

// Store is the full persistence surface the scoring service wires against.
type Store interface {
	MatchStore
	EventStore
	SnapshotStore
	CursorStore
	RoleStore
	AuditStore
}

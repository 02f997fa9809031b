// Package scoring is the command side of the engine: it gates each request
// by role, enforces the concurrency guards, appends to the event journal,
// folds the snapshot forward, and fans the result out to subscribers.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage"
)

// Update is what the real-time layer pushes after a mutation. Resync marks
// updates whose snapshot was rebuilt from history, so subscribers replace
// their state instead of applying a delta.
type Update struct {
	MatchID  string
	Event    event.Event
	Snapshot engine.Snapshot
	Resync   bool
}

// Publisher receives accepted mutations for fan-out. Publish must not block.
type Publisher interface {
	Publish(update Update)
}

// Guard carries the per-request concurrency controls every mutation accepts.
type Guard struct {
	// ActorID is the authenticated user submitting the request.
	ActorID string
	// IdempotencyKey makes the mutation at-most-once per match.
	IdempotencyKey string
	// ClientID and ClientSeq opt in to strictly-increasing submission order.
	ClientID  string
	ClientSeq uint64
	// ExpectedVersion opts in to optimistic locking against the snapshot.
	ExpectedVersion *uint64
}

// Result is the response envelope for every operation.
type Result struct {
	Event    event.Event          `json:"event"`
	Snapshot engine.Snapshot      `json:"snapshot"`
	Allowed  authz.AllowedActions `json:"allowed_actions"`
}

// Service orchestrates scoring commands over the storage and fan-out layers.
type Service struct {
	store     storage.Store
	audit     *audit.Emitter
	publisher Publisher
	clock     func() time.Time

	writeMu    sync.Mutex
	matchWrite map[string]*sync.Mutex
}

// NewService creates a scoring service. The publisher may be nil for
// processes that do not serve subscribers.
func NewService(store storage.Store, emitter *audit.Emitter, publisher Publisher) *Service {
	return &Service{
		store:      store,
		audit:      emitter,
		publisher:  publisher,
		clock:      time.Now,
		matchWrite: make(map[string]*sync.Mutex),
	}
}

// lockWrites serializes the load-validate-append-persist section per match.
// Events must fold onto the snapshot in sequence order; a writer folding from
// a base loaded before a concurrent append would persist a snapshot missing
// that event.
func (s *Service) lockWrites(matchID string) func() {
	s.writeMu.Lock()
	l, ok := s.matchWrite[matchID]
	if !ok {
		l = &sync.Mutex{}
		s.matchWrite[matchID] = l
	}
	s.writeMu.Unlock()
	l.Lock()
	return l.Unlock
}

// SetPublisher attaches the fan-out sink after construction. The realtime
// hub reads snapshots through the service, so the two are wired in stages.
func (s *Service) SetPublisher(publisher Publisher) {
	s.publisher = publisher
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// resolveRole loads the caller's role for the match; absent grants are viewers.
func (s *Service) resolveRole(ctx context.Context, matchID, userID string) (authz.Role, error) {
	if userID == "" {
		return authz.RoleViewer, nil
	}
	rec, err := s.store.GetRole(ctx, matchID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return authz.RoleViewer, nil
		}
		return authz.RoleViewer, fmt.Errorf("resolve role: %w", err)
	}
	return authz.ParseRole(rec.Role), nil
}

// requirePermission audits and rejects callers below the needed role.
func (s *Service) requirePermission(ctx context.Context, matchID string, g Guard, action authz.Action, auditAction string) (authz.Role, error) {
	role, err := s.resolveRole(ctx, matchID, g.ActorID)
	if err != nil {
		return role, err
	}
	if !authz.HasPermission(role, action) {
		s.audit.Emit(ctx, storage.AuditRecord{
			MatchID: matchID,
			ActorID: g.ActorID,
			Action:  auditAction,
			Outcome: audit.OutcomeDenied,
			Detail:  fmt.Sprintf("role=%s", role),
		})
		return role, apperrors.WithMetadata(apperrors.CodePermissionDenied,
			"insufficient role for this action", map[string]string{
				"role":   string(role),
				"action": string(action),
			})
	}
	return role, nil
}

// checkGuards enforces the optional expected-version and client-seq controls
// against the current snapshot. It does not advance the cursor; that happens
// only after the mutation is appended.
func (s *Service) checkGuards(ctx context.Context, matchID string, g Guard, currentVersion uint64) error {
	if g.ExpectedVersion != nil && *g.ExpectedVersion != currentVersion {
		return apperrors.WithMetadata(apperrors.CodeVersionConflict,
			"snapshot version changed since the client read it", map[string]string{
				"expected": fmt.Sprintf("%d", *g.ExpectedVersion),
				"actual":   fmt.Sprintf("%d", currentVersion),
			})
	}
	if g.ClientID != "" {
		last, err := s.store.GetCursor(ctx, matchID, g.ClientID)
		if err != nil {
			return err
		}
		if g.ClientSeq <= last {
			return apperrors.WithMetadata(apperrors.CodeClientSeqOutOfOrder,
				"client sequence must be strictly increasing", map[string]string{
					"client_seq": fmt.Sprintf("%d", g.ClientSeq),
					"last":       fmt.Sprintf("%d", last),
				})
		}
	}
	return nil
}

// advanceCursor records the accepted client sequence after a mutation lands.
func (s *Service) advanceCursor(ctx context.Context, matchID string, g Guard) error {
	if g.ClientID == "" {
		return nil
	}
	return s.store.AdvanceCursor(ctx, matchID, g.ClientID, g.ClientSeq)
}

// configFor orients the match rosters around the innings' batting team.
func configFor(m storage.MatchRecord, battingTeamID string) engine.Config {
	cfg := engine.Config{Rules: m.Rules}
	if battingTeamID == m.TeamBID {
		cfg.BattingRoster = m.TeamBRoster
		cfg.BowlingRoster = m.TeamARoster
		return cfg
	}
	cfg.BattingRoster = m.TeamARoster
	cfg.BowlingRoster = m.TeamBRoster
	return cfg
}

// currentState loads the match record and the snapshot of its current innings.
func (s *Service) currentState(ctx context.Context, matchID string) (storage.MatchRecord, engine.Snapshot, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return storage.MatchRecord{}, engine.Snapshot{}, err
	}
	rec, err := s.store.GetSnapshot(ctx, matchID, m.CurrentInning)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return m, engine.Snapshot{}, apperrors.New(apperrors.CodeInningsNotStarted, "innings has not started")
		}
		return storage.MatchRecord{}, engine.Snapshot{}, err
	}
	return m, rec.Snapshot, nil
}

// replayedResult answers a reused idempotency key with the original event and
// the current state, so retries are indistinguishable from the first call.
func (s *Service) replayedResult(ctx context.Context, matchID string, stored event.Event, role authz.Role) (Result, error) {
	_, snap, err := s.currentState(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Event:    stored,
		Snapshot: snap,
		Allowed:  authz.ComputeAllowedActions(snap, role),
	}, nil
}

func (s *Service) publish(update Update) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(update)
}

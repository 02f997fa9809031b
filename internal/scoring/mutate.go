package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage"
)

// mutate runs the common command pipeline for fold-forward mutations:
// permission gate, idempotency precheck, concurrency guards, engine
// validation, append, fold, conditional persist, cursor advance, audit, and
// fan-out. Revisions (undo/edit) and innings starts have their own paths.
func (s *Service) mutate(ctx context.Context, matchID string, g Guard, action authz.Action, auditAction string, typ event.Type, payload any) (Result, error) {
	if strings.TrimSpace(g.IdempotencyKey) == "" {
		return Result{}, apperrors.New(apperrors.CodeIdempotencyKeyMissing, "idempotency key is required")
	}

	role, err := s.requirePermission(ctx, matchID, g, action, auditAction)
	if err != nil {
		return Result{}, err
	}

	unlock := s.lockWrites(matchID)
	defer unlock()

	if stored, err := s.store.GetEventByIdempotencyKey(ctx, matchID, g.IdempotencyKey); err == nil {
		return s.replayedResult(ctx, matchID, stored, role)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, err
	}

	m, snap, err := s.currentState(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	cfg := configFor(m, snap.BattingTeamID)

	if err := s.checkGuards(ctx, matchID, g, snap.Version); err != nil {
		return Result{}, err
	}

	evt := event.Event{
		MatchID:        matchID,
		Innings:        snap.Innings,
		Over:           snap.Over(),
		BallInOver:     snap.BallInOver() + 1,
		Timestamp:      s.now(),
		Type:           typ,
		ActorID:        g.ActorID,
		IdempotencyKey: g.IdempotencyKey,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Result{}, fmt.Errorf("marshal payload: %w", err)
		}
		evt.PayloadJSON = raw
	}

	if err := engine.Validate(snap, evt, cfg); err != nil {
		s.audit.Emit(ctx, storage.AuditRecord{
			MatchID: matchID,
			ActorID: g.ActorID,
			Action:  auditAction,
			Outcome: audit.OutcomeRejected,
			Detail:  err.Error(),
		})
		return Result{}, err
	}

	stored, err := s.store.AppendEvent(ctx, evt)
	if err != nil {
		return Result{}, err
	}

	next := engine.Fold(snap, stored)
	if err := s.persistSnapshot(ctx, matchID, next); err != nil {
		return Result{}, err
	}
	if err := s.advanceCursor(ctx, matchID, g); err != nil {
		return Result{}, err
	}

	s.audit.Emit(ctx, storage.AuditRecord{
		MatchID: matchID,
		ActorID: g.ActorID,
		Action:  auditAction,
		Outcome: audit.OutcomeAccepted,
		Detail:  fmt.Sprintf("seq=%d type=%s", stored.Seq, stored.Type),
	})
	s.publish(Update{MatchID: matchID, Event: stored, Snapshot: next})

	return Result{
		Event:    stored,
		Snapshot: next,
		Allowed:  authz.ComputeAllowedActions(next, role),
	}, nil
}

// persistSnapshot stores the folded snapshot; a concurrent newer write wins.
func (s *Service) persistSnapshot(ctx context.Context, matchID string, snap engine.Snapshot) error {
	err := s.store.PutSnapshot(ctx, storage.SnapshotRecord{
		MatchID:   matchID,
		Innings:   snap.Innings,
		Version:   snap.Version,
		Snapshot:  snap,
		UpdatedAt: s.now(),
	})
	if err != nil && apperrors.CodeOf(err) == apperrors.CodeVersionRegression {
		// Another append already materialized a newer snapshot.
		return nil
	}
	return err
}

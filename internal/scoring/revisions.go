package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/event"
	"github.com/louisbranch/crease/internal/match/replay"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/storage"
)

// Undo voids a prior event and rebuilds the innings snapshot from history.
// A zero targetSeq voids the latest revisable event.
func (s *Service) Undo(ctx context.Context, matchID string, g Guard, targetSeq uint64, reason string) (Result, error) {
	return s.revise(ctx, matchID, g, revision{
		action:    "undo_event",
		typ:       event.TypeEventUndone,
		targetSeq: targetSeq,
		payload:   event.UndonePayload{Reason: reason},
	})
}

// Edit supersedes a prior event's payload and rebuilds the innings snapshot.
func (s *Service) Edit(ctx context.Context, matchID string, g Guard, targetSeq uint64, replacement json.RawMessage, reason string) (Result, error) {
	if targetSeq == 0 {
		return Result{}, apperrors.New(apperrors.CodeTargetEventMissing, "edit requires a target sequence")
	}
	return s.revise(ctx, matchID, g, revision{
		action:      "edit_event",
		typ:         event.TypeEventEdited,
		targetSeq:   targetSeq,
		payload:     event.EditedPayload{Replacement: replacement, Reason: reason},
		replacement: replacement,
	})
}

type revision struct {
	action      string
	typ         event.Type
	targetSeq   uint64
	payload     any
	replacement json.RawMessage
}

// revise is the shared undo/edit pipeline. Unlike fold-forward mutations, a
// revision is resolved by a full rebuild of the innings history.
func (s *Service) revise(ctx context.Context, matchID string, g Guard, rev revision) (Result, error) {
	if strings.TrimSpace(g.IdempotencyKey) == "" {
		return Result{}, apperrors.New(apperrors.CodeIdempotencyKeyMissing, "idempotency key is required")
	}

	action := authz.ActionScore
	if rev.typ == event.TypeEventEdited {
		action = authz.ActionManage
	}
	role, err := s.requirePermission(ctx, matchID, g, action, rev.action)
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
	if snap.Locked {
		return Result{}, apperrors.New(apperrors.CodeMatchLocked, "match is locked")
	}
	cfg := configFor(m, snap.BattingTeamID)

	if err := s.checkGuards(ctx, matchID, g, snap.Version); err != nil {
		return Result{}, err
	}

	history, err := s.store.ListInningsEvents(ctx, matchID, snap.Innings)
	if err != nil {
		return Result{}, err
	}

	target, err := resolveTarget(history, rev.targetSeq, rev.typ)
	if err != nil {
		return Result{}, err
	}
	if rev.typ == event.TypeEventEdited {
		if err := validateReplacement(target, rev.replacement); err != nil {
			return Result{}, err
		}
	}

	raw, err := json.Marshal(rev.payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}
	stored, err := s.store.AppendEvent(ctx, event.Event{
		MatchID:        matchID,
		Innings:        snap.Innings,
		Timestamp:      s.now(),
		Type:           rev.typ,
		ActorID:        g.ActorID,
		IdempotencyKey: g.IdempotencyKey,
		TargetSeq:      target.Seq,
		PayloadJSON:    raw,
	})
	if err != nil {
		return Result{}, err
	}

	rebuilt, err := replay.Rebuild(append(history, stored), cfg)
	if err != nil {
		return Result{}, err
	}
	if err := s.persistSnapshot(ctx, matchID, rebuilt); err != nil {
		return Result{}, err
	}
	if err := s.advanceCursor(ctx, matchID, g); err != nil {
		return Result{}, err
	}

	s.audit.Emit(ctx, storage.AuditRecord{
		MatchID: matchID,
		ActorID: g.ActorID,
		Action:  rev.action,
		Outcome: audit.OutcomeAccepted,
		Detail:  fmt.Sprintf("seq=%d target=%d", stored.Seq, target.Seq),
	})
	s.publish(Update{MatchID: matchID, Event: stored, Snapshot: rebuilt, Resync: true})

	return Result{
		Event:    stored,
		Snapshot: rebuilt,
		Allowed:  authz.ComputeAllowedActions(rebuilt, role),
	}, nil
}

// resolveTarget finds and vets the event a revision points at. A zero
// targetSeq selects the latest revisable, not-yet-voided event.
func resolveTarget(history []event.Event, targetSeq uint64, revType event.Type) (event.Event, error) {
	voided := replay.VoidedSequences(history)

	if targetSeq == 0 {
		for i := len(history) - 1; i >= 0; i-- {
			candidate := history[i]
			if !candidate.Type.IsRevisable() {
				continue
			}
			if _, gone := voided[candidate.Seq]; gone {
				continue
			}
			return candidate, nil
		}
		return event.Event{}, apperrors.New(apperrors.CodeTargetEventMissing, "nothing to undo")
	}

	for _, candidate := range history {
		if candidate.Seq != targetSeq {
			continue
		}
		if !candidate.Type.IsRevisable() {
			code := apperrors.CodeEventNotUndoable
			if revType == event.TypeEventEdited {
				code = apperrors.CodeEventNotEditable
			}
			return event.Event{}, apperrors.WithMetadata(code,
				"event cannot be revised", map[string]string{"type": string(candidate.Type)})
		}
		if _, gone := voided[targetSeq]; gone {
			return event.Event{}, apperrors.New(apperrors.CodeEventAlreadyVoided, "event was already undone")
		}
		return candidate, nil
	}
	return event.Event{}, apperrors.WithMetadata(apperrors.CodeTargetEventMissing,
		"target event not found in this innings", map[string]string{"target_seq": fmt.Sprintf("%d", targetSeq)})
}

// validateReplacement checks an edit's replacement payload against the target
// event type before it enters the journal.
func validateReplacement(target event.Event, replacement json.RawMessage) error {
	switch target.Type {
	case event.TypeBallScored:
		var p event.BallScoredPayload
		if err := json.Unmarshal(replacement, &p); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidRuns, "decode replacement payload", err)
		}
		if p.Runs < 0 || p.Runs > 6 {
			return apperrors.New(apperrors.CodeInvalidRuns, "runs off the bat must be between 0 and 6")
		}
	case event.TypeExtraScored:
		var p event.ExtraScoredPayload
		if err := json.Unmarshal(replacement, &p); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidExtraKind, "decode replacement payload", err)
		}
		if !p.Kind.IsValid() {
			return apperrors.New(apperrors.CodeInvalidExtraKind, "unknown extra kind")
		}
		if p.Runs < 0 {
			return apperrors.New(apperrors.CodeInvalidRuns, "extra runs must not be negative")
		}
	case event.TypeWicketFallen:
		var p event.WicketFallenPayload
		if err := json.Unmarshal(replacement, &p); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidDismissalKind, "decode replacement payload", err)
		}
		if !p.Kind.IsValid() {
			return apperrors.New(apperrors.CodeInvalidDismissalKind, "unknown dismissal kind")
		}
	default:
		var probe map[string]any
		if err := json.Unmarshal(replacement, &probe); err != nil {
			return apperrors.Wrap(apperrors.CodeEventNotEditable, "decode replacement payload", err)
		}
	}
	return nil
}

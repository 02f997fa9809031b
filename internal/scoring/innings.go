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

// StartInningsParams names the opening players for an innings. BattingTeamID
// is required for the first innings; the second innings swaps sides
// automatically and chases the first innings total plus one.
type StartInningsParams struct {
	BattingTeamID string `json:"batting_team_id"`
	StrikerID     string `json:"striker_id"`
	NonStrikerID  string `json:"non_striker_id"`
	BowlerID      string `json:"bowler_id"`
}

// StartInnings opens an innings: the first for a fresh match, the second once
// the break approval has been given.
func (s *Service) StartInnings(ctx context.Context, matchID string, g Guard, p StartInningsParams) (Result, error) {
	if strings.TrimSpace(g.IdempotencyKey) == "" {
		return Result{}, apperrors.New(apperrors.CodeIdempotencyKeyMissing, "idempotency key is required")
	}

	role, err := s.requirePermission(ctx, matchID, g, authz.ActionScore, "start_innings")
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

	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return Result{}, err
	}

	innings := 1
	currentVersion := uint64(0)
	payload := event.InningsStartedPayload{
		StrikerID:    p.StrikerID,
		NonStrikerID: p.NonStrikerID,
		BowlerID:     p.BowlerID,
	}

	first, err := s.store.GetSnapshot(ctx, matchID, 1)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if p.BattingTeamID != m.TeamAID && p.BattingTeamID != m.TeamBID {
			return Result{}, apperrors.WithMetadata(apperrors.CodePlayerNotInRoster,
				"batting team is not part of this match", map[string]string{"team_id": p.BattingTeamID})
		}
		payload.BattingTeamID = p.BattingTeamID
		payload.BowlingTeamID = m.TeamBID
		if p.BattingTeamID == m.TeamBID {
			payload.BowlingTeamID = m.TeamAID
		}

	case err != nil:
		return Result{}, err

	default:
		if m.CurrentInning >= 2 {
			return Result{}, apperrors.New(apperrors.CodeInningsAlreadyStarted, "second innings already started")
		}
		if first.Snapshot.Pending != engine.PendingInningsBreak {
			return Result{}, apperrors.New(apperrors.CodePendingActionMismatch,
				"second innings requires the break approval first")
		}
		innings = 2
		currentVersion = first.Version
		payload.BattingTeamID = first.Snapshot.BowlingTeamID
		payload.BowlingTeamID = first.Snapshot.BattingTeamID
		payload.Target = first.Snapshot.Runs + 1
	}

	cfg := configFor(m, payload.BattingTeamID)
	if err := validateOpeners(cfg, payload); err != nil {
		return Result{}, err
	}

	if err := s.checkGuards(ctx, matchID, g, currentVersion); err != nil {
		return Result{}, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}
	stored, err := s.store.AppendEvent(ctx, event.Event{
		MatchID:        matchID,
		Innings:        innings,
		Timestamp:      s.now(),
		Type:           event.TypeInningsStarted,
		ActorID:        g.ActorID,
		IdempotencyKey: g.IdempotencyKey,
		PayloadJSON:    raw,
	})
	if err != nil {
		return Result{}, err
	}

	snap, err := engine.NewSnapshot(stored, m.Rules)
	if err != nil {
		return Result{}, err
	}
	if err := s.persistSnapshot(ctx, matchID, snap); err != nil {
		return Result{}, err
	}
	if innings == 2 {
		if err := s.store.SetCurrentInning(ctx, matchID, 2); err != nil {
			return Result{}, err
		}
	}
	if err := s.advanceCursor(ctx, matchID, g); err != nil {
		return Result{}, err
	}

	s.audit.Emit(ctx, storage.AuditRecord{
		MatchID: matchID,
		ActorID: g.ActorID,
		Action:  "start_innings",
		Outcome: audit.OutcomeAccepted,
		Detail:  fmt.Sprintf("innings=%d seq=%d", innings, stored.Seq),
	})
	s.publish(Update{MatchID: matchID, Event: stored, Snapshot: snap, Resync: true})

	return Result{
		Event:    stored,
		Snapshot: snap,
		Allowed:  authz.ComputeAllowedActions(snap, role),
	}, nil
}

// validateOpeners checks the opening players against the oriented rosters.
func validateOpeners(cfg engine.Config, p event.InningsStartedPayload) error {
	for _, batterID := range []string{p.StrikerID, p.NonStrikerID} {
		if !cfg.InBattingRoster(batterID) {
			return apperrors.WithMetadata(apperrors.CodePlayerNotInRoster,
				"opening batter is not in the batting roster", map[string]string{"player_id": batterID})
		}
	}
	if p.StrikerID == p.NonStrikerID {
		return apperrors.New(apperrors.CodePlayerAlreadyOnField, "striker and non-striker must differ")
	}
	if !cfg.InBowlingRoster(p.BowlerID) {
		return apperrors.WithMetadata(apperrors.CodePlayerNotInRoster,
			"opening bowler is not in the bowling roster", map[string]string{"player_id": p.BowlerID})
	}
	return nil
}

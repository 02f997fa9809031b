package scoring

import (
	"context"

	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

// RecordBall records a legal delivery and the runs scored off the bat.
func (s *Service) RecordBall(ctx context.Context, matchID string, g Guard, runs int) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionScore, "record_ball",
		event.TypeBallScored, event.BallScoredPayload{Runs: runs})
}

// RecordExtra records a wide, no-ball, bye, leg-bye, or penalty.
func (s *Service) RecordExtra(ctx context.Context, matchID string, g Guard, p event.ExtraScoredPayload) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionScore, "record_extra",
		event.TypeExtraScored, p)
}

// RecordWicket records a dismissal.
func (s *Service) RecordWicket(ctx context.Context, matchID string, g Guard, p event.WicketFallenPayload) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionScore, "record_wicket",
		event.TypeWicketFallen, p)
}

// SelectBowler resolves a pending bowler selection for the next over.
func (s *Service) SelectBowler(ctx context.Context, matchID string, g Guard, bowlerID string) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionScore, "select_bowler",
		event.TypeBowlerSelected, event.BowlerSelectedPayload{BowlerID: bowlerID})
}

// SelectBatter resolves a pending batter selection after a dismissal.
func (s *Service) SelectBatter(ctx context.Context, matchID string, g Guard, batterID string) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionScore, "select_batter",
		event.TypeBatterSelected, event.BatterSelectedPayload{BatterID: batterID})
}

// ApproveInningsTwo resolves the innings-break approval gate.
func (s *Service) ApproveInningsTwo(ctx context.Context, matchID string, g Guard) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionManage, "approve_innings_two",
		event.TypeInningsTwoApproved, nil)
}

// EndInnings manually closes the live innings.
func (s *Service) EndInnings(ctx context.Context, matchID string, g Guard, reason string) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionManage, "end_innings",
		event.TypeInningsEnded, event.InningsEndedPayload{Reason: reason})
}

// EndMatch records the final result.
func (s *Service) EndMatch(ctx context.Context, matchID string, g Guard, reason string) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionManage, "end_match",
		event.TypeMatchEnded, event.MatchEndedPayload{Reason: reason})
}

// LockMatch freezes further scoring until an unlock.
func (s *Service) LockMatch(ctx context.Context, matchID string, g Guard) (Result, error) {
	return s.mutate(ctx, matchID, g, authz.ActionManage, "lock_match",
		event.TypeMatchLocked, nil)
}

// UnlockMatch lifts a lock. Unlocking a completed match is admin-only.
func (s *Service) UnlockMatch(ctx context.Context, matchID string, g Guard) (Result, error) {
	_, snap, err := s.currentState(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	if snap.Status == engine.StatusCompleted {
		role, err := s.resolveRole(ctx, matchID, g.ActorID)
		if err != nil {
			return Result{}, err
		}
		if role != authz.RoleAdmin {
			return Result{}, apperrors.New(apperrors.CodeUnlockAdminOnly,
				"only an admin may unlock a completed match")
		}
	}
	return s.mutate(ctx, matchID, g, authz.ActionManage, "unlock_match",
		event.TypeMatchUnlocked, nil)
}

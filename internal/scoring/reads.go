package scoring

import (
	"context"

	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	"github.com/louisbranch/crease/internal/match/event"
)

// View is the read-side envelope: the current snapshot and what the caller
// may do to it.
type View struct {
	Snapshot engine.Snapshot      `json:"snapshot"`
	Allowed  authz.AllowedActions `json:"allowed_actions"`
}

// GetSnapshot returns the current innings snapshot for a match.
func (s *Service) GetSnapshot(ctx context.Context, matchID, userID string) (View, error) {
	role, err := s.resolveRole(ctx, matchID, userID)
	if err != nil {
		return View{}, err
	}
	_, snap, err := s.currentState(ctx, matchID)
	if err != nil {
		return View{}, err
	}
	return View{
		Snapshot: snap,
		Allowed:  authz.ComputeAllowedActions(snap, role),
	}, nil
}

// GetInningsSnapshot returns the snapshot of a specific innings.
func (s *Service) GetInningsSnapshot(ctx context.Context, matchID string, innings int, userID string) (View, error) {
	role, err := s.resolveRole(ctx, matchID, userID)
	if err != nil {
		return View{}, err
	}
	rec, err := s.store.GetSnapshot(ctx, matchID, innings)
	if err != nil {
		return View{}, err
	}
	return View{
		Snapshot: rec.Snapshot,
		Allowed:  authz.ComputeAllowedActions(rec.Snapshot, role),
	}, nil
}

// ListEvents returns a page of the match's event history.
func (s *Service) ListEvents(ctx context.Context, matchID string, afterSeq uint64, limit int) ([]event.Event, error) {
	return s.store.ListEvents(ctx, matchID, afterSeq, limit)
}

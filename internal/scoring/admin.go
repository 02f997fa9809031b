package scoring

import (
	"context"
	"strings"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/match/authz"
	"github.com/louisbranch/crease/internal/match/engine"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
	"github.com/louisbranch/crease/internal/platform/id"
	"github.com/louisbranch/crease/internal/storage"
)

// CreateMatchParams registers a match, its rule flags, and both rosters.
type CreateMatchParams struct {
	Name        string       `json:"name"`
	TeamAID     string       `json:"team_a_id"`
	TeamBID     string       `json:"team_b_id"`
	Rules       engine.Rules `json:"rules"`
	TeamARoster []string     `json:"team_a_roster"`
	TeamBRoster []string     `json:"team_b_roster"`
}

// CreateMatch registers a new match and grants the creator the organizer role.
func (s *Service) CreateMatch(ctx context.Context, actorID string, p CreateMatchParams) (storage.MatchRecord, error) {
	if strings.TrimSpace(p.TeamAID) == "" || strings.TrimSpace(p.TeamBID) == "" {
		return storage.MatchRecord{}, apperrors.New(apperrors.CodeInvalidRequest, "both team ids are required")
	}
	if err := p.Rules.Validate(); err != nil {
		return storage.MatchRecord{}, err
	}

	matchID, err := id.NewID()
	if err != nil {
		return storage.MatchRecord{}, err
	}
	rec := storage.MatchRecord{
		ID:            matchID,
		Name:          p.Name,
		TeamAID:       p.TeamAID,
		TeamBID:       p.TeamBID,
		Rules:         p.Rules,
		TeamARoster:   p.TeamARoster,
		TeamBRoster:   p.TeamBRoster,
		CurrentInning: 1,
		CreatedAt:     s.now(),
	}
	if err := s.store.PutMatch(ctx, rec); err != nil {
		return storage.MatchRecord{}, err
	}

	if actorID != "" {
		if err := s.store.PutRole(ctx, storage.RoleRecord{
			MatchID:   matchID,
			UserID:    actorID,
			Role:      string(authz.RoleOrganizer),
			GrantedBy: actorID,
			CreatedAt: s.now(),
		}); err != nil {
			return storage.MatchRecord{}, err
		}
	}

	s.audit.Emit(ctx, storage.AuditRecord{
		MatchID: matchID,
		ActorID: actorID,
		Action:  "create_match",
		Outcome: audit.OutcomeAccepted,
	})
	return rec, nil
}

// AssignRole grants a role to a user for a match. Only organizers and admins
// may manage roles.
func (s *Service) AssignRole(ctx context.Context, matchID, actorID, userID string, role authz.Role) error {
	g := Guard{ActorID: actorID}
	if _, err := s.requirePermission(ctx, matchID, g, authz.ActionManage, "assign_role"); err != nil {
		return err
	}
	if err := s.store.PutRole(ctx, storage.RoleRecord{
		MatchID:   matchID,
		UserID:    userID,
		Role:      string(role),
		GrantedBy: actorID,
		CreatedAt: s.now(),
	}); err != nil {
		return err
	}
	s.audit.Emit(ctx, storage.AuditRecord{
		MatchID: matchID,
		ActorID: actorID,
		Action:  "assign_role",
		Outcome: audit.OutcomeAccepted,
		Detail:  "user=" + userID + " role=" + string(role),
	})
	return nil
}

// RevokeRole removes a user's role grant for a match.
func (s *Service) RevokeRole(ctx context.Context, matchID, actorID, userID string) error {
	g := Guard{ActorID: actorID}
	if _, err := s.requirePermission(ctx, matchID, g, authz.ActionManage, "revoke_role"); err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, matchID, userID); err != nil {
		return err
	}
	s.audit.Emit(ctx, storage.AuditRecord{
		MatchID: matchID,
		ActorID: actorID,
		Action:  "revoke_role",
		Outcome: audit.OutcomeAccepted,
		Detail:  "user=" + userID,
	})
	return nil
}

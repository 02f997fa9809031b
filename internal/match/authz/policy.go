// Package authz resolves match roles into concrete scoring permissions.
package authz

import (
	"strings"

	"github.com/louisbranch/crease/internal/match/engine"
)

// Role is a caller's resolved role for one match.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleScorer    Role = "scorer"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes a stored role label; unknown labels degrade to viewer.
func ParseRole(label string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(label))) {
	case RoleScorer:
		return RoleScorer
	case RoleOrganizer:
		return RoleOrganizer
	case RoleAdmin:
		return RoleAdmin
	}
	return RoleViewer
}

// Action is a permission-gated operation class.
type Action string

const (
	// ActionScore covers ball/extra/wicket recording, selections, and undo.
	ActionScore Action = "score"
	// ActionManage covers innings/match end, edits, and locking.
	ActionManage Action = "manage"
	// ActionUnlock covers unlocking a locked match.
	ActionUnlock Action = "unlock"
)

// HasPermission reports whether the role may perform the action class.
func HasPermission(role Role, action Action) bool {
	switch action {
	case ActionScore:
		return role == RoleScorer || role == RoleOrganizer || role == RoleAdmin
	case ActionManage:
		return role == RoleOrganizer || role == RoleAdmin
	case ActionUnlock:
		return role == RoleAdmin
	}
	return false
}

// AllowedActions is the fixed control set interactive clients toggle on.
// It is derived purely from current status, pending action, lock flag, and
// role, and recomputed after every mutation.
type AllowedActions struct {
	CanScore           bool `json:"can_score"`
	CanUndo            bool `json:"can_undo"`
	CanSelectBowler    bool `json:"can_select_bowler"`
	CanSelectBatter    bool `json:"can_select_batter"`
	CanStartInningsTwo bool `json:"can_start_innings_two"`
	CanEndInnings      bool `json:"can_end_innings"`
	CanEndMatch        bool `json:"can_end_match"`
	CanLockMatch       bool `json:"can_lock_match"`
	CanUnlockMatch     bool `json:"can_unlock_match"`
	CanEdit            bool `json:"can_edit"`
}

// ComputeAllowedActions derives the control set for a snapshot and role.
func ComputeAllowedActions(snap engine.Snapshot, role Role) AllowedActions {
	var allowed AllowedActions

	canScore := HasPermission(role, ActionScore)
	canManage := HasPermission(role, ActionManage)

	if snap.Locked {
		// Unlocking a completed match is reserved for admins; an in-play
		// lock is an organizer-level pause.
		if snap.Status == engine.StatusCompleted {
			allowed.CanUnlockMatch = HasPermission(role, ActionUnlock)
		} else {
			allowed.CanUnlockMatch = canManage
		}
		return allowed
	}

	live := snap.Status == engine.StatusLive

	allowed.CanScore = canScore && live && snap.Pending == engine.PendingNone
	allowed.CanUndo = canScore && snap.Version > 0 && snap.Status != engine.StatusCompleted
	allowed.CanSelectBowler = canScore && live && snap.Pending == engine.PendingSelectBowler
	allowed.CanSelectBatter = canScore && live && snap.Pending == engine.PendingSelectBatter
	allowed.CanStartInningsTwo = canManage && snap.Pending == engine.PendingInningsTwoApproval
	allowed.CanEndInnings = canManage && live
	allowed.CanEndMatch = canManage && snap.Status != engine.StatusCompleted
	allowed.CanLockMatch = canManage
	allowed.CanEdit = canManage && snap.Status != engine.StatusCompleted
	return allowed
}

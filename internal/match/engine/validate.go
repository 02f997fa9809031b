package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

// NewSnapshot builds the zero-state snapshot for an innings from its
// mandatory innings.started event.
func NewSnapshot(evt event.Event, rules Rules) (Snapshot, error) {
	if evt.Type != event.TypeInningsStarted {
		return Snapshot{}, apperrors.New(apperrors.CodeInningsNotStarted, "innings must begin with an innings.started event")
	}
	if err := rules.Validate(); err != nil {
		return Snapshot{}, err
	}

	var payload event.InningsStartedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return Snapshot{}, apperrors.Wrap(apperrors.CodeLogCorrupt, "decode innings.started payload", err)
	}
	if strings.TrimSpace(payload.StrikerID) == "" || strings.TrimSpace(payload.NonStrikerID) == "" || strings.TrimSpace(payload.BowlerID) == "" {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerNotInRoster, "innings start requires striker, non-striker, and bowler")
	}
	if payload.StrikerID == payload.NonStrikerID {
		return Snapshot{}, apperrors.New(apperrors.CodePlayerAlreadyOnField, "striker and non-striker must differ")
	}

	snap := Snapshot{
		MatchID:       evt.MatchID,
		Innings:       evt.Innings,
		Version:       evt.Seq,
		Status:        StatusLive,
		Rules:         rules,
		BattingTeamID: payload.BattingTeamID,
		BowlingTeamID: payload.BowlingTeamID,
		Target:        payload.Target,
		StrikerID:     payload.StrikerID,
		NonStrikerID:  payload.NonStrikerID,
		BowlerID:      payload.BowlerID,
		Pending:       PendingNone,
	}
	snap.battingLine(payload.StrikerID)
	snap.battingLine(payload.NonStrikerID)
	snap.bowlingLine(payload.BowlerID)
	return snap, nil
}

// Validate rejects semantically invalid transitions before Fold runs. It is
// pure: no I/O, no mutation. A nil return means Fold will not corrupt state.
func Validate(snap Snapshot, evt event.Event, cfg Config) error {
	if !evt.Type.IsValid() {
		return apperrors.WithMetadata(apperrors.CodeUnknown, "unknown event type", map[string]string{"type": string(evt.Type)})
	}
	if evt.Type.IsRevision() {
		// Revisions rewrite history and are resolved by replay, never folded.
		return apperrors.New(apperrors.CodeUnknown, "revision events are not applied by the transition function")
	}
	if evt.Type == event.TypeInningsStarted {
		return apperrors.New(apperrors.CodeInningsAlreadyStarted, "innings already started")
	}

	if snap.Locked && evt.Type != event.TypeMatchUnlocked {
		return apperrors.New(apperrors.CodeMatchLocked, "match is locked")
	}

	switch evt.Type {
	case event.TypeBallScored:
		if err := requireScoreable(snap); err != nil {
			return err
		}
		var payload event.BallScoredPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidRuns, "decode ball payload", err)
		}
		if payload.Runs < 0 || payload.Runs > 6 {
			return apperrors.WithMetadata(apperrors.CodeInvalidRuns, "runs off the bat must be between 0 and 6", map[string]string{
				"runs": fmt.Sprintf("%d", payload.Runs),
			})
		}
		return nil

	case event.TypeExtraScored:
		if err := requireScoreable(snap); err != nil {
			return err
		}
		var payload event.ExtraScoredPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidExtraKind, "decode extra payload", err)
		}
		if !payload.Kind.IsValid() {
			return apperrors.WithMetadata(apperrors.CodeInvalidExtraKind, "unknown extra kind", map[string]string{"kind": string(payload.Kind)})
		}
		if payload.Runs < 0 {
			return apperrors.New(apperrors.CodeInvalidRuns, "extra runs must not be negative")
		}
		return nil

	case event.TypeWicketFallen:
		if err := requireScoreable(snap); err != nil {
			return err
		}
		var payload event.WicketFallenPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidDismissalKind, "decode wicket payload", err)
		}
		if !payload.Kind.IsValid() {
			return apperrors.WithMetadata(apperrors.CodeInvalidDismissalKind, "unknown dismissal kind", map[string]string{"kind": string(payload.Kind)})
		}
		if payload.BatterID != snap.StrikerID && payload.BatterID != snap.NonStrikerID {
			return apperrors.WithMetadata(apperrors.CodePlayerNotInRoster, "dismissed batter is not at the crease", map[string]string{
				"batter_id": payload.BatterID,
			})
		}
		if snap.FreeHit && !payload.Kind.ValidOnFreeHit() {
			return apperrors.WithMetadata(apperrors.CodeWicketOnFreeHit, "dismissal cannot stand on a free hit", map[string]string{"kind": string(payload.Kind)})
		}
		if payload.Runs < 0 || payload.Runs > 6 {
			return apperrors.New(apperrors.CodeInvalidRuns, "completed runs must be between 0 and 6")
		}
		return nil

	case event.TypeBowlerSelected:
		if snap.Pending != PendingSelectBowler {
			return pendingMismatch(snap, PendingSelectBowler)
		}
		var payload event.BowlerSelectedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodePlayerNotInRoster, "decode bowler selection", err)
		}
		if !cfg.InBowlingRoster(payload.BowlerID) {
			return apperrors.WithMetadata(apperrors.CodePlayerNotInRoster, "bowler is not in the bowling roster", map[string]string{"bowler_id": payload.BowlerID})
		}
		if payload.BowlerID == snap.StrikerID || payload.BowlerID == snap.NonStrikerID {
			return apperrors.New(apperrors.CodePlayerAlreadyOnField, "bowler is currently batting")
		}
		if !snap.Rules.BowlerMayContinue && payload.BowlerID == snap.LastOverBowlerID {
			return apperrors.WithMetadata(apperrors.CodeBowlerConsecutiveOver, "bowler cannot bowl consecutive overs", map[string]string{"bowler_id": payload.BowlerID})
		}
		return nil

	case event.TypeBatterSelected:
		if snap.Pending != PendingSelectBatter {
			return pendingMismatch(snap, PendingSelectBatter)
		}
		var payload event.BatterSelectedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return apperrors.Wrap(apperrors.CodePlayerNotInRoster, "decode batter selection", err)
		}
		if !cfg.InBattingRoster(payload.BatterID) {
			return apperrors.WithMetadata(apperrors.CodePlayerNotInRoster, "batter is not in the batting roster", map[string]string{"batter_id": payload.BatterID})
		}
		if snap.isDismissed(payload.BatterID) {
			return apperrors.WithMetadata(apperrors.CodePlayerDismissed, "batter was already dismissed", map[string]string{"batter_id": payload.BatterID})
		}
		if snap.onField(payload.BatterID) {
			return apperrors.WithMetadata(apperrors.CodePlayerAlreadyOnField, "batter is already on the field", map[string]string{"batter_id": payload.BatterID})
		}
		return nil

	case event.TypeInningsTwoApproved:
		if snap.Pending != PendingInningsTwoApproval {
			return pendingMismatch(snap, PendingInningsTwoApproval)
		}
		return nil

	case event.TypeInningsEnded:
		if snap.Status != StatusLive {
			return apperrors.New(apperrors.CodeMatchNotLive, "innings is not live")
		}
		return nil

	case event.TypeMatchEnded:
		if snap.Status == StatusCompleted && snap.Result != nil {
			return apperrors.New(apperrors.CodeMatchCompleted, "match already completed")
		}
		return nil

	case event.TypeMatchLocked:
		if snap.Locked {
			return apperrors.New(apperrors.CodeMatchLocked, "match is already locked")
		}
		return nil

	case event.TypeMatchUnlocked:
		if !snap.Locked {
			return apperrors.New(apperrors.CodeMatchNotLive, "match is not locked")
		}
		return nil
	}

	return apperrors.WithMetadata(apperrors.CodeUnknown, "unhandled event type", map[string]string{"type": string(evt.Type)})
}

// requireScoreable gates ball-scoring events on phase, lock, and pending state.
func requireScoreable(snap Snapshot) error {
	if snap.Status != StatusLive {
		if snap.Status == StatusCompleted {
			return apperrors.New(apperrors.CodeMatchCompleted, "match is completed")
		}
		return apperrors.New(apperrors.CodeMatchNotLive, "innings is not live")
	}
	if snap.Pending != PendingNone {
		return apperrors.WithMetadata(apperrors.CodePendingActionRequired, "a pending action blocks scoring", map[string]string{
			"pending": string(snap.Pending),
		})
	}
	return nil
}

func pendingMismatch(snap Snapshot, want PendingAction) error {
	return apperrors.WithMetadata(apperrors.CodePendingActionMismatch, "event does not resolve the current pending action", map[string]string{
		"pending": string(snap.Pending),
		"want":    string(want),
	})
}

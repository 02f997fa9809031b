package engine

import (
	"testing"

	"github.com/louisbranch/crease/internal/match/event"
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

func wantCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want code %s", code)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("error code = %s, want %s (%v)", got, code, err)
	}
}

func TestNewSnapshotRequiresStartEvent(t *testing.T) {
	_, err := NewSnapshot(event.Event{Type: event.TypeBallScored}, DefaultRules(20))
	wantCode(t, err, apperrors.CodeInningsNotStarted)
}

func TestNewSnapshotRejectsIncompleteField(t *testing.T) {
	evt := event.Event{
		Type: event.TypeInningsStarted,
		PayloadJSON: mustJSON(t, event.InningsStartedPayload{
			BattingTeamID: "team-a",
			BowlingTeamID: "team-b",
			StrikerID:     "bat1",
			NonStrikerID:  "",
			BowlerID:      "bowl1",
		}),
	}
	_, err := NewSnapshot(evt, DefaultRules(20))
	wantCode(t, err, apperrors.CodePlayerNotInRoster)
}

func TestNewSnapshotRejectsSameOpener(t *testing.T) {
	evt := event.Event{
		Type: event.TypeInningsStarted,
		PayloadJSON: mustJSON(t, event.InningsStartedPayload{
			BattingTeamID: "team-a",
			BowlingTeamID: "team-b",
			StrikerID:     "bat1",
			NonStrikerID:  "bat1",
			BowlerID:      "bowl1",
		}),
	}
	_, err := NewSnapshot(evt, DefaultRules(20))
	wantCode(t, err, apperrors.CodePlayerAlreadyOnField)
}

func TestNewSnapshotRejectsBadRules(t *testing.T) {
	evt := event.Event{
		Type: event.TypeInningsStarted,
		PayloadJSON: mustJSON(t, event.InningsStartedPayload{
			BattingTeamID: "team-a",
			BowlingTeamID: "team-b",
			StrikerID:     "bat1",
			NonStrikerID:  "bat2",
			BowlerID:      "bowl1",
		}),
	}
	_, err := NewSnapshot(evt, Rules{OversLimit: 0, PlayersPerSide: 11})
	wantCode(t, err, apperrors.CodeInvalidOversConfig)
}

func TestValidateRejectsSecondStart(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	err := h.applyErr(event.TypeInningsStarted, event.InningsStartedPayload{
		BattingTeamID: "team-a", BowlingTeamID: "team-b",
		StrikerID: "bat1", NonStrikerID: "bat2", BowlerID: "bowl1",
	})
	wantCode(t, err, apperrors.CodeInningsAlreadyStarted)
}

func TestValidateRejectsRevisionEvents(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	for _, typ := range []event.Type{event.TypeEventUndone, event.TypeEventEdited} {
		if err := h.applyErr(typ, nil); err == nil {
			t.Errorf("Apply(%s) = nil error, want rejection", typ)
		}
	}
}

func TestValidateRunsRange(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	for _, runs := range []int{-1, 7} {
		err := h.applyErr(event.TypeBallScored, event.BallScoredPayload{Runs: runs})
		wantCode(t, err, apperrors.CodeInvalidRuns)
	}
}

func TestValidateExtraKind(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	err := h.applyErr(event.TypeExtraScored, event.ExtraScoredPayload{Kind: "overthrow", Runs: 1})
	wantCode(t, err, apperrors.CodeInvalidExtraKind)

	err = h.applyErr(event.TypeExtraScored, event.ExtraScoredPayload{Kind: event.ExtraWide, Runs: -1})
	wantCode(t, err, apperrors.CodeInvalidRuns)
}

func TestValidateWicketBatterAtCrease(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	err := h.applyErr(event.TypeWicketFallen, event.WicketFallenPayload{
		Kind:     event.DismissalBowled,
		BatterID: "bat5",
	})
	wantCode(t, err, apperrors.CodePlayerNotInRoster)
}

func TestValidateWicketOnFreeHit(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	h.apply(event.TypeExtraScored, event.ExtraScoredPayload{Kind: event.ExtraNoBall})

	err := h.applyErr(event.TypeWicketFallen, event.WicketFallenPayload{
		Kind:     event.DismissalBowled,
		BatterID: "bat1",
	})
	wantCode(t, err, apperrors.CodeWicketOnFreeHit)

	// Run outs stand even on a free hit.
	h.apply(event.TypeWicketFallen, event.WicketFallenPayload{
		Kind:     event.DismissalRunOut,
		BatterID: "bat1",
	})
	if h.snap.Wickets != 1 {
		t.Errorf("Wickets = %d, want 1", h.snap.Wickets)
	}
}

func TestValidatePendingBlocksScoring(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	h.apply(event.TypeWicketFallen, event.WicketFallenPayload{Kind: event.DismissalBowled, BatterID: "bat1"})

	err := h.applyErr(event.TypeBallScored, event.BallScoredPayload{Runs: 1})
	wantCode(t, err, apperrors.CodePendingActionRequired)

	err = h.applyErr(event.TypeBowlerSelected, event.BowlerSelectedPayload{BowlerID: "bowl2"})
	wantCode(t, err, apperrors.CodePendingActionMismatch)
}

func TestValidateBatterSelection(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	h.apply(event.TypeWicketFallen, event.WicketFallenPayload{Kind: event.DismissalBowled, BatterID: "bat1"})

	tests := []struct {
		name     string
		batterID string
		want     apperrors.Code
	}{
		{"outside roster", "stranger", apperrors.CodePlayerNotInRoster},
		{"already at crease", "bat2", apperrors.CodePlayerAlreadyOnField},
		{"already dismissed", "bat1", apperrors.CodePlayerDismissed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.applyErr(event.TypeBatterSelected, event.BatterSelectedPayload{BatterID: tt.batterID})
			wantCode(t, err, tt.want)
		})
	}
}

func TestValidateBowlerSelection(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	for i := 0; i < 6; i++ {
		h.ball(0)
	}
	if h.snap.Pending != PendingSelectBowler {
		t.Fatalf("Pending = %v, want %v", h.snap.Pending, PendingSelectBowler)
	}

	err := h.applyErr(event.TypeBowlerSelected, event.BowlerSelectedPayload{BowlerID: "bowl1"})
	wantCode(t, err, apperrors.CodeBowlerConsecutiveOver)

	err = h.applyErr(event.TypeBowlerSelected, event.BowlerSelectedPayload{BowlerID: "stranger"})
	wantCode(t, err, apperrors.CodePlayerNotInRoster)

	h.apply(event.TypeBowlerSelected, event.BowlerSelectedPayload{BowlerID: "bowl2"})
	if h.snap.BowlerID != "bowl2" {
		t.Errorf("BowlerID = %s, want bowl2", h.snap.BowlerID)
	}
}

func TestValidateBowlerMayContinueRule(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.BowlerMayContinue = true
	h := newHarness(t, cfg, 0)
	for i := 0; i < 6; i++ {
		h.ball(0)
	}
	if h.snap.Pending != PendingNone {
		t.Errorf("Pending = %v, want %v when the bowler may continue", h.snap.Pending, PendingNone)
	}
	h.ball(0)
	if h.snap.Bowling[0].Balls != 7 {
		t.Errorf("bowler balls = %d, want 7", h.snap.Bowling[0].Balls)
	}
}

func TestValidateApprovalPending(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	err := h.applyErr(event.TypeInningsTwoApproved, nil)
	wantCode(t, err, apperrors.CodePendingActionMismatch)
}

func TestValidateMatchEndIdempotentGuard(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.OversLimit = 1
	cfg.Rules.BowlerMayContinue = true
	h := newHarness(t, cfg, 10)
	for i := 0; i < 6; i++ {
		h.ball(0)
	}
	if h.snap.Status != StatusCompleted {
		t.Fatalf("Status = %v, want %v", h.snap.Status, StatusCompleted)
	}
	err := h.applyErr(event.TypeMatchEnded, event.MatchEndedPayload{Reason: "again"})
	wantCode(t, err, apperrors.CodeMatchCompleted)
}

func TestValidateLockStates(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	if err := h.applyErr(event.TypeMatchUnlocked, nil); err == nil {
		t.Error("unlocking an unlocked match should fail")
	}
	h.apply(event.TypeMatchLocked, nil)
	err := h.applyErr(event.TypeMatchLocked, nil)
	wantCode(t, err, apperrors.CodeMatchLocked)
}

func TestValidateUnknownType(t *testing.T) {
	h := newHarness(t, testConfig(), 0)
	if err := h.applyErr(event.Type("over.rained_off"), nil); err == nil {
		t.Error("unknown event type should be rejected")
	}
}

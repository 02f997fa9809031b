package engine

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/crease/internal/match/event"
)

// Apply validates evt against snap and folds it in. It is the pure
// state-transition function: (snapshot, event, config) -> snapshot'.
func Apply(snap Snapshot, evt event.Event, cfg Config) (Snapshot, error) {
	if err := Validate(snap, evt, cfg); err != nil {
		return Snapshot{}, err
	}
	return Fold(snap, evt), nil
}

// Fold advances the snapshot by one already-validated event. It never
// performs I/O and never mutates its input.
func Fold(snap Snapshot, evt event.Event) Snapshot {
	next := snap.clone()
	next.Version = evt.Seq

	switch evt.Type {
	case event.TypeBallScored:
		var payload event.BallScoredPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		foldBall(&next, evt, payload)

	case event.TypeExtraScored:
		var payload event.ExtraScoredPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		foldExtra(&next, evt, payload)

	case event.TypeWicketFallen:
		var payload event.WicketFallenPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		foldWicket(&next, evt, payload)

	case event.TypeBowlerSelected:
		var payload event.BowlerSelectedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		next.BowlerID = payload.BowlerID
		next.bowlingLine(payload.BowlerID)
		next.Pending = PendingNone

	case event.TypeBatterSelected:
		var payload event.BatterSelectedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		if next.PendingSlot == SlotNonStriker {
			next.NonStrikerID = payload.BatterID
		} else {
			next.StrikerID = payload.BatterID
		}
		next.battingLine(payload.BatterID)
		next.PendingSlot = ""
		// A wicket on the over's last ball leaves the bowler pick outstanding.
		if overBoundary(next) && !next.Rules.BowlerMayContinue && next.BowlerID == next.LastOverBowlerID {
			next.Pending = PendingSelectBowler
		} else {
			next.Pending = PendingNone
		}

	case event.TypeInningsTwoApproved:
		next.Pending = PendingInningsBreak

	case event.TypeInningsEnded:
		closeInnings(&next)

	case event.TypeMatchEnded:
		next.Status = StatusCompleted
		next.Pending = PendingInningsBreak
		if next.Target > 0 && next.Result == nil {
			next.Result = computeResult(next)
		}

	case event.TypeMatchLocked:
		next.Locked = true

	case event.TypeMatchUnlocked:
		next.Locked = false
	}

	return next
}

// foldBall credits a legal delivery: striker runs, strike rotation, over and
// innings boundary checks.
func foldBall(snap *Snapshot, evt event.Event, payload event.BallScoredPayload) {
	over, ball := deliveryPosition(*snap)

	striker := snap.battingLine(snap.StrikerID)
	striker.Runs += payload.Runs
	striker.Balls++
	switch payload.Runs {
	case 4:
		striker.Fours++
	case 6:
		striker.Sixes++
	}

	bowler := snap.bowlingLine(snap.BowlerID)
	bowler.Balls++
	bowler.Runs += payload.Runs

	snap.Runs += payload.Runs
	snap.ThisOverRuns += payload.Runs
	snap.FreeHit = false

	recordDelivery(snap, evt, over, ball, payload.Runs, ballLabel(payload.Runs))

	if payload.Runs%2 == 1 {
		snap.StrikerID, snap.NonStrikerID = snap.NonStrikerID, snap.StrikerID
	}

	snap.LegalBalls++
	completeOverIfNeeded(snap)
	finishInningsIfNeeded(snap)
}

// foldExtra applies wide/no-ball/bye/leg-bye/penalty crediting rules.
func foldExtra(snap *Snapshot, evt event.Event, payload event.ExtraScoredPayload) {
	over, ball := deliveryPosition(*snap)

	legal := false
	switch payload.Kind {
	case event.ExtraWide:
		total := snap.Rules.WidePenalty + payload.Runs
		snap.Runs += total
		bowler := snap.bowlingLine(snap.BowlerID)
		bowler.Runs += total
		snap.ThisOverRuns += total
		legal = snap.Rules.WideLegalDelivery
		recordDelivery(snap, evt, over, ball, total, fmt.Sprintf("wide +%d", total))
		if payload.Runs%2 == 1 {
			snap.StrikerID, snap.NonStrikerID = snap.NonStrikerID, snap.StrikerID
		}

	case event.ExtraNoBall:
		total := snap.Rules.NoBallPenalty + payload.Runs
		snap.Runs += total
		// Bat runs off a no-ball credit the striker; the penalty does not.
		striker := snap.battingLine(snap.StrikerID)
		striker.Runs += payload.Runs
		striker.Balls++
		bowler := snap.bowlingLine(snap.BowlerID)
		bowler.Runs += total
		snap.ThisOverRuns += total
		legal = snap.Rules.NoBallLegalDelivery
		recordDelivery(snap, evt, over, ball, total, fmt.Sprintf("no ball +%d", total))
		if payload.Runs%2 == 1 {
			snap.StrikerID, snap.NonStrikerID = snap.NonStrikerID, snap.StrikerID
		}

	case event.ExtraBye, event.ExtraLegBye:
		// Byes are legal deliveries and team runs, conceded by nobody.
		snap.Runs += payload.Runs
		striker := snap.battingLine(snap.StrikerID)
		striker.Balls++
		bowler := snap.bowlingLine(snap.BowlerID)
		bowler.Balls++
		legal = true
		label := "bye"
		if payload.Kind == event.ExtraLegBye {
			label = "leg bye"
		}
		recordDelivery(snap, evt, over, ball, payload.Runs, fmt.Sprintf("%s +%d", label, payload.Runs))
		if payload.Runs%2 == 1 {
			snap.StrikerID, snap.NonStrikerID = snap.NonStrikerID, snap.StrikerID
		}

	case event.ExtraPenalty:
		snap.Runs += payload.Runs
		recordDelivery(snap, evt, over, ball, payload.Runs, fmt.Sprintf("penalty +%d", payload.Runs))
	}

	if legal {
		if payload.Kind == event.ExtraBye || payload.Kind == event.ExtraLegBye {
			snap.FreeHit = false
		}
		snap.LegalBalls++
		completeOverIfNeeded(snap)
	}
	if payload.Kind == event.ExtraNoBall {
		snap.FreeHit = true
	}
	finishInningsIfNeeded(snap)
}

// foldWicket records a dismissal, attributes it, and vacates a crease.
func foldWicket(snap *Snapshot, evt event.Event, payload event.WicketFallenPayload) {
	over, ball := deliveryPosition(*snap)

	striker := snap.battingLine(snap.StrikerID)
	striker.Runs += payload.Runs
	striker.Balls++

	bowler := snap.bowlingLine(snap.BowlerID)
	bowler.Balls++
	bowler.Runs += payload.Runs
	if payload.Kind.CreditsBowler() {
		bowler.Wickets++
	}

	snap.Runs += payload.Runs
	snap.ThisOverRuns += payload.Runs
	snap.FreeHit = false

	recordDelivery(snap, evt, over, ball, payload.Runs, fmt.Sprintf("WICKET %s", payload.Kind))

	// Completed runs rotate strike before the crease is vacated.
	if payload.Runs%2 == 1 {
		snap.StrikerID, snap.NonStrikerID = snap.NonStrikerID, snap.StrikerID
	}

	dismissed := snap.battingLine(payload.BatterID)
	dismissed.Out = true
	dismissed.Dismissal = payload.Kind
	snap.Wickets++

	if payload.BatterID == snap.NonStrikerID {
		snap.PendingSlot = SlotNonStriker
	} else {
		snap.PendingSlot = SlotStriker
	}
	snap.Pending = PendingSelectBatter

	snap.LegalBalls++
	completeOverIfNeeded(snap)
	finishInningsIfNeeded(snap)
}

// deliveryPosition is the over/ball label of the delivery about to be bowled.
func deliveryPosition(snap Snapshot) (over, ball int) {
	return snap.LegalBalls / 6, snap.LegalBalls%6 + 1
}

// overBoundary reports whether the snapshot sits exactly at the end of an over.
func overBoundary(snap Snapshot) bool {
	return snap.LegalBalls > 0 && snap.LegalBalls%6 == 0
}

// completeOverIfNeeded runs end-of-over bookkeeping once the sixth legal
// delivery is recorded: end-of-over strike swap, maiden credit, and the
// bowler pick for the next over.
func completeOverIfNeeded(snap *Snapshot) {
	if !overBoundary(*snap) {
		return
	}

	snap.StrikerID, snap.NonStrikerID = snap.NonStrikerID, snap.StrikerID
	// The swap moves an unresolved vacancy to the other crease.
	if snap.Pending == PendingSelectBatter {
		if snap.PendingSlot == SlotStriker {
			snap.PendingSlot = SlotNonStriker
		} else {
			snap.PendingSlot = SlotStriker
		}
	}

	bowler := snap.bowlingLine(snap.BowlerID)
	if snap.ThisOverRuns == 0 {
		bowler.Maidens++
	}
	snap.ThisOverRuns = 0
	snap.LastOverBowlerID = snap.BowlerID

	if snap.Pending == PendingNone && !snap.Rules.BowlerMayContinue {
		snap.Pending = PendingSelectBowler
	}
}

// finishInningsIfNeeded closes the innings when the chase succeeds, the side
// is all out, or the overs are exhausted.
func finishInningsIfNeeded(snap *Snapshot) {
	if snap.Status != StatusLive {
		return
	}

	targetReached := snap.Target > 0 && snap.Runs >= snap.Target
	allOut := snap.Wickets >= snap.Rules.PlayersPerSide-1
	oversDone := snap.LegalBalls >= snap.Rules.OversLimit*6

	if !targetReached && !allOut && !oversDone {
		return
	}
	closeInnings(snap)
}

// closeInnings transitions a live innings to its terminal state and, in the
// second innings, computes the result.
func closeInnings(snap *Snapshot) {
	snap.PendingSlot = ""
	if snap.Target > 0 {
		snap.Status = StatusCompleted
		snap.Pending = PendingInningsBreak
		if snap.Result == nil {
			snap.Result = computeResult(*snap)
		}
		return
	}
	snap.Status = StatusInningsBreak
	snap.Pending = PendingInningsTwoApproval
}

// computeResult decides the match from a finished second innings. Wickets
// remaining derive from the configured players per side, uniformly.
func computeResult(snap Snapshot) *Result {
	switch {
	case snap.Runs >= snap.Target:
		return &Result{
			WinnerTeamID: snap.BattingTeamID,
			WinType:      WinByWickets,
			Margin:       snap.Rules.PlayersPerSide - 1 - snap.Wickets,
		}
	case snap.Runs == snap.Target-1:
		return &Result{WinType: WinTied}
	default:
		return &Result{
			WinnerTeamID: snap.BowlingTeamID,
			WinType:      WinByRuns,
			Margin:       snap.Target - 1 - snap.Runs,
		}
	}
}

// recordDelivery appends to the rolling ball window and commentary tail.
func recordDelivery(snap *Snapshot, evt event.Event, over, ball, runs int, label string) {
	snap.RecentBalls = append(snap.RecentBalls, BallSummary{
		Seq:        evt.Seq,
		Over:       over,
		BallInOver: ball,
		Type:       evt.Type,
		Runs:       runs,
		Label:      label,
	})
	if len(snap.RecentBalls) > recentBallWindow {
		snap.RecentBalls = snap.RecentBalls[len(snap.RecentBalls)-recentBallWindow:]
	}

	snap.Commentary = append(snap.Commentary, fmt.Sprintf("%d.%d %s", over, ball, label))
	if len(snap.Commentary) > commentaryWindow {
		snap.Commentary = snap.Commentary[len(snap.Commentary)-commentaryWindow:]
	}
}

func ballLabel(runs int) string {
	switch runs {
	case 0:
		return "no run"
	case 1:
		return "1 run"
	case 4:
		return "FOUR"
	case 6:
		return "SIX"
	default:
		return fmt.Sprintf("%d runs", runs)
	}
}

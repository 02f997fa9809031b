package event

import "encoding/json"

// ExtraKind identifies the kind of extra delivery.
type ExtraKind string

const (
	// ExtraWide is a wide ball.
	ExtraWide ExtraKind = "wide"
	// ExtraNoBall is a no-ball; the following delivery is a free hit.
	ExtraNoBall ExtraKind = "no_ball"
	// ExtraBye is runs taken without bat contact.
	ExtraBye ExtraKind = "bye"
	// ExtraLegBye is runs taken off the batter's body.
	ExtraLegBye ExtraKind = "leg_bye"
	// ExtraPenalty is umpire-awarded penalty runs.
	ExtraPenalty ExtraKind = "penalty"
)

// IsValid reports whether the extra kind is recognized.
func (k ExtraKind) IsValid() bool {
	switch k {
	case ExtraWide, ExtraNoBall, ExtraBye, ExtraLegBye, ExtraPenalty:
		return true
	}
	return false
}

// DismissalKind identifies how a batter was dismissed.
type DismissalKind string

const (
	DismissalBowled       DismissalKind = "bowled"
	DismissalCaught       DismissalKind = "caught"
	DismissalLBW          DismissalKind = "lbw"
	DismissalStumped      DismissalKind = "stumped"
	DismissalHitWicket    DismissalKind = "hit_wicket"
	DismissalRunOut       DismissalKind = "run_out"
	DismissalRetired      DismissalKind = "retired"
	DismissalObstruction  DismissalKind = "obstructing_field"
	DismissalTimedOut     DismissalKind = "timed_out"
	DismissalHitBallTwice DismissalKind = "hit_ball_twice"
)

// IsValid reports whether the dismissal kind is recognized.
func (k DismissalKind) IsValid() bool {
	switch k {
	case DismissalBowled, DismissalCaught, DismissalLBW, DismissalStumped,
		DismissalHitWicket, DismissalRunOut, DismissalRetired,
		DismissalObstruction, DismissalTimedOut, DismissalHitBallTwice:
		return true
	}
	return false
}

// CreditsBowler reports whether the dismissal counts toward the bowler's
// wickets. Dismissals caused by fielding or running credit nobody.
func (k DismissalKind) CreditsBowler() bool {
	switch k {
	case DismissalRunOut, DismissalRetired, DismissalObstruction, DismissalTimedOut:
		return false
	}
	return k.IsValid()
}

// ValidOnFreeHit reports whether the dismissal can stand on a free-hit
// delivery. Only dismissals caused by running or obstruction survive.
func (k DismissalKind) ValidOnFreeHit() bool {
	return k == DismissalRunOut || k == DismissalObstruction
}

// InningsStartedPayload captures the payload for innings.started events.
type InningsStartedPayload struct {
	BattingTeamID string `json:"batting_team_id"`
	BowlingTeamID string `json:"bowling_team_id"`
	StrikerID     string `json:"striker_id"`
	NonStrikerID  string `json:"non_striker_id"`
	BowlerID      string `json:"bowler_id"`
	// Target is the chase target; set only for the second innings.
	Target int `json:"target,omitempty"`
}

// BallScoredPayload captures the payload for ball.scored events.
type BallScoredPayload struct {
	// Runs scored off the bat, credited to the striker.
	Runs int `json:"runs"`
}

// ExtraScoredPayload captures the payload for extra.scored events.
type ExtraScoredPayload struct {
	Kind ExtraKind `json:"kind"`
	// Runs taken in addition to any automatic penalty for the extra.
	Runs int `json:"runs"`
}

// WicketFallenPayload captures the payload for wicket.fallen events.
type WicketFallenPayload struct {
	Kind DismissalKind `json:"kind"`
	// BatterID is the dismissed batter (striker or non-striker).
	BatterID string `json:"batter_id"`
	// FielderID is the catching/stumping/throwing fielder, when relevant.
	FielderID string `json:"fielder_id,omitempty"`
	// Runs completed before the dismissal (run-outs).
	Runs int `json:"runs,omitempty"`
}

// BowlerSelectedPayload captures the payload for bowler.selected events.
type BowlerSelectedPayload struct {
	BowlerID string `json:"bowler_id"`
}

// BatterSelectedPayload captures the payload for batter.selected events.
type BatterSelectedPayload struct {
	BatterID string `json:"batter_id"`
}

// InningsEndedPayload captures the payload for innings.ended events.
type InningsEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// MatchEndedPayload captures the payload for match.ended events.
type MatchEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// UndonePayload captures the payload for event.undone events. The voided
// sequence lives in Event.TargetSeq; the payload carries operator context.
type UndonePayload struct {
	Reason string `json:"reason,omitempty"`
}

// EditedPayload captures the payload for event.edited events. Replacement is
// the payload replay substitutes for the target event's original payload.
type EditedPayload struct {
	Replacement json.RawMessage `json:"replacement"`
	Reason      string          `json:"reason,omitempty"`
}

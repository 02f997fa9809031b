package engine

import (
	apperrors "github.com/louisbranch/crease/internal/platform/errors"
)

// Rules are the per-match rule settings the transition function consults.
// Whether a no-ball or wide counts toward the over is an explicit per-match
// choice, never a hard-coded default.
type Rules struct {
	// OversLimit is the number of overs per innings.
	OversLimit int `json:"overs_limit"`
	// PlayersPerSide bounds wickets and wickets-remaining margins.
	PlayersPerSide int `json:"players_per_side"`
	// NoBallLegalDelivery counts a no-ball toward the over when true.
	NoBallLegalDelivery bool `json:"no_ball_legal_delivery"`
	// WideLegalDelivery counts a wide toward the over when true.
	WideLegalDelivery bool `json:"wide_legal_delivery"`
	// NoBallPenalty is the automatic team runs for a no-ball.
	NoBallPenalty int `json:"no_ball_penalty"`
	// WidePenalty is the automatic team runs for a wide.
	WidePenalty int `json:"wide_penalty"`
	// BowlerMayContinue allows the same bowler consecutive overs.
	BowlerMayContinue bool `json:"bowler_may_continue"`
}

// DefaultRules returns standard limited-overs settings.
func DefaultRules(overs int) Rules {
	return Rules{
		OversLimit:     overs,
		PlayersPerSide: 11,
		NoBallPenalty:  1,
		WidePenalty:    1,
	}
}

// Validate checks the rule settings are internally coherent.
func (r Rules) Validate() error {
	if r.OversLimit <= 0 {
		return apperrors.New(apperrors.CodeInvalidOversConfig, "overs limit must be positive")
	}
	if r.PlayersPerSide < 2 {
		return apperrors.New(apperrors.CodeInvalidOversConfig, "players per side must be at least 2")
	}
	if r.NoBallPenalty < 0 || r.WidePenalty < 0 {
		return apperrors.New(apperrors.CodeInvalidOversConfig, "extra penalties must not be negative")
	}
	return nil
}

// Config bundles the rule settings with roster eligibility for one match.
type Config struct {
	Rules Rules `json:"rules"`
	// BattingRoster is the eligible batting order for the innings.
	BattingRoster []string `json:"batting_roster"`
	// BowlingRoster is the eligible bowlers for the innings.
	BowlingRoster []string `json:"bowling_roster"`
}

// InBattingRoster reports whether the player may bat this innings.
func (c Config) InBattingRoster(playerID string) bool {
	return containsPlayer(c.BattingRoster, playerID)
}

// InBowlingRoster reports whether the player may bowl this innings.
func (c Config) InBowlingRoster(playerID string) bool {
	return containsPlayer(c.BowlingRoster, playerID)
}

func containsPlayer(roster []string, playerID string) bool {
	for _, entry := range roster {
		if entry == playerID {
			return true
		}
	}
	return false
}

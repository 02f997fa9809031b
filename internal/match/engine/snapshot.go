// Package engine holds the pure scoring rules: snapshot state, event
// validation, and the fold that advances a snapshot one event at a time.
package engine

import (
	"github.com/louisbranch/crease/internal/match/event"
)

// Status identifies the lifecycle phase of an innings snapshot.
type Status string

const (
	// StatusLive accepts ball-scoring events.
	StatusLive Status = "live"
	// StatusInningsBreak is the gap between the first and second innings.
	StatusInningsBreak Status = "innings_break"
	// StatusCompleted accepts no further scoring.
	StatusCompleted Status = "completed"
)

// PendingAction is the single next required input that blocks ball-scoring.
type PendingAction string

const (
	// PendingNone means scoring may proceed.
	PendingNone PendingAction = "none"
	// PendingSelectBowler blocks until the next over's bowler is chosen.
	PendingSelectBowler PendingAction = "select_bowler"
	// PendingSelectBatter blocks until the incoming batter is chosen.
	PendingSelectBatter PendingAction = "select_batter"
	// PendingInningsTwoApproval blocks until the second innings is approved.
	PendingInningsTwoApproval PendingAction = "innings_two_approval"
	// PendingInningsBreak means the innings is closed and waits for the next
	// innings to start; no input against this snapshot resolves it.
	PendingInningsBreak PendingAction = "innings_break"
)

// BatterSlot identifies which crease a dismissal vacated.
type BatterSlot string

const (
	SlotStriker    BatterSlot = "striker"
	SlotNonStriker BatterSlot = "non_striker"
)

// WinType identifies how the match was decided.
type WinType string

const (
	// WinByWickets means the chasing side reached the target.
	WinByWickets WinType = "wickets"
	// WinByRuns means the defending side kept the chase short.
	WinByRuns WinType = "runs"
	// WinTied means the second innings finished level with the first.
	WinTied WinType = "tie"
)

// BattingLine is a batter's running scorecard line.
type BattingLine struct {
	PlayerID  string              `json:"player_id"`
	Runs      int                 `json:"runs"`
	Balls     int                 `json:"balls"`
	Fours     int                 `json:"fours"`
	Sixes     int                 `json:"sixes"`
	Out       bool                `json:"out"`
	Dismissal event.DismissalKind `json:"dismissal,omitempty"`
}

// BowlingLine is a bowler's running scorecard line.
type BowlingLine struct {
	PlayerID string `json:"player_id"`
	Balls    int    `json:"balls"`
	Runs     int    `json:"runs"`
	Wickets  int    `json:"wickets"`
	Maidens  int    `json:"maidens"`
}

// BallSummary is one entry of the rolling recent-deliveries window.
type BallSummary struct {
	Seq        uint64     `json:"seq"`
	Over       int        `json:"over"`
	BallInOver int        `json:"ball_in_over"`
	Type       event.Type `json:"type"`
	Runs       int        `json:"runs"`
	Label      string     `json:"label"`
}

// Result captures the final outcome once a match completes.
type Result struct {
	WinnerTeamID string  `json:"winner_team_id,omitempty"`
	WinType      WinType `json:"win_type"`
	Margin       int     `json:"margin"`
}

// Window sizes for the rolling delivery and commentary tails.
const (
	recentBallWindow = 12
	commentaryWindow = 24
)

// Snapshot is the materialized view of one innings, derived from its event
// log. It is rebuilt wholesale by replay or advanced incrementally by Fold;
// the two paths produce identical snapshots for the same effective events.
type Snapshot struct {
	MatchID string `json:"match_id"`
	Innings int    `json:"innings"`
	// Version equals the sequence number of the most recent acknowledged
	// mutation, including undo/edit revisions. It never decreases.
	Version uint64 `json:"version"`
	Status  Status `json:"status"`
	Locked  bool   `json:"locked"`
	Rules   Rules  `json:"rules"`

	BattingTeamID string `json:"batting_team_id"`
	BowlingTeamID string `json:"bowling_team_id"`
	// Target is the chase target; zero in the first innings.
	Target int `json:"target,omitempty"`

	LegalBalls int `json:"legal_balls"`
	Runs       int `json:"runs"`
	Wickets    int `json:"wickets"`

	StrikerID    string `json:"striker_id"`
	NonStrikerID string `json:"non_striker_id"`
	BowlerID     string `json:"bowler_id"`
	// LastOverBowlerID enforces the consecutive-over rule.
	LastOverBowlerID string `json:"last_over_bowler_id,omitempty"`
	// FreeHit marks the next delivery as a free hit after a no-ball.
	FreeHit bool `json:"free_hit,omitempty"`
	// ThisOverRuns tracks bowler-conceded runs in the over for maiden counting.
	ThisOverRuns int `json:"this_over_runs"`

	Batting     []BattingLine `json:"batting"`
	Bowling     []BowlingLine `json:"bowling"`
	RecentBalls []BallSummary `json:"recent_balls,omitempty"`
	Commentary  []string      `json:"commentary,omitempty"`

	Pending PendingAction `json:"pending"`
	// PendingSlot records the vacated crease while Pending is select_batter.
	PendingSlot BatterSlot `json:"pending_slot,omitempty"`

	Result *Result `json:"result,omitempty"`
}

// Over returns the number of completed overs.
func (s Snapshot) Over() int {
	return s.LegalBalls / 6
}

// BallInOver returns the legal deliveries bowled in the current over.
func (s Snapshot) BallInOver() int {
	return s.LegalBalls % 6
}

// RunRate returns runs per over bowled so far, or zero before the first ball.
func (s Snapshot) RunRate() float64 {
	if s.LegalBalls == 0 {
		return 0
	}
	return float64(s.Runs) * 6 / float64(s.LegalBalls)
}

// RequiredRunRate returns the chase rate needed per remaining over. It is
// zero outside a live second innings.
func (s Snapshot) RequiredRunRate() float64 {
	if s.Target == 0 || s.Status != StatusLive {
		return 0
	}
	remainingBalls := s.Rules.OversLimit*6 - s.LegalBalls
	if remainingBalls <= 0 {
		return 0
	}
	need := s.Target - s.Runs
	if need <= 0 {
		return 0
	}
	return float64(need) * 6 / float64(remainingBalls)
}

// battingLine returns a pointer to the batter's line, creating it on first
// appearance so opening batters and replacements share one code path.
func (s *Snapshot) battingLine(playerID string) *BattingLine {
	for i := range s.Batting {
		if s.Batting[i].PlayerID == playerID {
			return &s.Batting[i]
		}
	}
	s.Batting = append(s.Batting, BattingLine{PlayerID: playerID})
	return &s.Batting[len(s.Batting)-1]
}

// bowlingLine returns a pointer to the bowler's line, creating it on first over.
func (s *Snapshot) bowlingLine(playerID string) *BowlingLine {
	for i := range s.Bowling {
		if s.Bowling[i].PlayerID == playerID {
			return &s.Bowling[i]
		}
	}
	s.Bowling = append(s.Bowling, BowlingLine{PlayerID: playerID})
	return &s.Bowling[len(s.Bowling)-1]
}

// isDismissed reports whether the batter has already been given out.
func (s Snapshot) isDismissed(playerID string) bool {
	for _, line := range s.Batting {
		if line.PlayerID == playerID {
			return line.Out
		}
	}
	return false
}

// onField reports whether the player currently occupies a crease or is bowling.
func (s Snapshot) onField(playerID string) bool {
	return playerID == s.StrikerID || playerID == s.NonStrikerID || playerID == s.BowlerID
}

// clone returns a deep copy so Fold never aliases the caller's slices.
func (s Snapshot) clone() Snapshot {
	out := s
	out.Batting = append([]BattingLine(nil), s.Batting...)
	out.Bowling = append([]BowlingLine(nil), s.Bowling...)
	out.RecentBalls = append([]BallSummary(nil), s.RecentBalls...)
	out.Commentary = append([]string(nil), s.Commentary...)
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return out
}

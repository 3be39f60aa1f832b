package games

import (
	"fmt"

	"github.com/gobuffalo/nulls"
)

// EventType is the type of an entry in the play-by-play log.
type EventType string

const (
	// EventTypeGameStart marks the start of a game.
	EventTypeGameStart EventType = "gameStart"
	// EventTypeGoal records a goal.
	EventTypeGoal EventType = "goal"
	// EventTypeTurnover records a turnover.
	EventTypeTurnover EventType = "turnover"
	// EventTypeTimeout records a called timeout.
	EventTypeTimeout EventType = "timeout"
	// EventTypeSubstitution records players being swapped.
	EventTypeSubstitution EventType = "substitution"
	// EventTypePenalty records a penalty.
	EventTypePenalty EventType = "penalty"
	// EventTypePeriodEnd marks the end of a period.
	EventTypePeriodEnd EventType = "periodEnd"
	// EventTypeGameEnd marks the end of a game, manual or auto-terminated.
	EventTypeGameEnd EventType = "gameEnd"
)

// Valid checks whether the EventType is a known one.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeGameStart, EventTypeGoal, EventTypeTurnover, EventTypeTimeout,
		EventTypeSubstitution, EventTypePenalty, EventTypePeriodEnd, EventTypeGameEnd:
		return true
	}
	return false
}

// TurnoverKind describes how possession was lost. Common values are exported
// as constants, other values are accepted as-is.
type TurnoverKind string

const (
	TurnoverKindDrop         TurnoverKind = "drop"
	TurnoverKindThrowaway    TurnoverKind = "throwaway"
	TurnoverKindBlock        TurnoverKind = "block"
	TurnoverKindStall        TurnoverKind = "stall"
	TurnoverKindInterception TurnoverKind = "interception"
	TurnoverKindOutOfBounds  TurnoverKind = "out-of-bounds"
)

// GameStartPayload is the payload of an EventTypeGameStart event.
type GameStartPayload struct {
	// StartingPossession is the side starting the first point with possession.
	StartingPossession Side `json:"starting_possession"`
}

// Description returns a human-readable description of the game start.
func (p GameStartPayload) Description() string {
	return fmt.Sprintf("game started, %s team on offense", p.StartingPossession)
}

// GoalPayload is the payload of an EventTypeGoal event. Player attributions
// are identifiers only, hydration is up to the caller.
type GoalPayload struct {
	// ScoringTeam is the side the goal counts for.
	ScoringTeam Side `json:"scoring_team"`
	// Scorer is the optional id of the scoring player.
	Scorer nulls.UUID `json:"scorer"`
	// Assist is the optional id of the assisting player.
	Assist nulls.UUID `json:"assist"`
	// HockeyAssist is the optional id of the player throwing the pass before the
	// assist.
	HockeyAssist nulls.UUID `json:"hockey_assist"`
}

// Description returns a human-readable description of the goal.
func (p GoalPayload) Description() string {
	return fmt.Sprintf("goal for %s team", p.ScoringTeam)
}

// TurnoverPayload is the payload of an EventTypeTurnover event.
type TurnoverPayload struct {
	// Kind describes how possession was lost.
	Kind TurnoverKind `json:"kind"`
	// LosingTeam is the side that lost possession.
	LosingTeam Side `json:"losing_team"`
	// Actor is the optional id of the player causing the turnover.
	Actor nulls.UUID `json:"actor"`
	// Forcer is the optional id of the defending player forcing the turnover.
	Forcer nulls.UUID `json:"forcer"`
}

// Description returns a human-readable description of the turnover.
func (p TurnoverPayload) Description() string {
	return fmt.Sprintf("%s by %s team, %s team gains possession", p.Kind, p.LosingTeam, p.LosingTeam.Opposite())
}

// TimeoutPayload is the payload of an EventTypeTimeout event.
type TimeoutPayload struct {
	// Team is the side that called the timeout.
	Team Side `json:"team"`
	// Remaining is the number of timeouts the side has left after this one.
	Remaining int `json:"remaining"`
}

// Description returns a human-readable description of the timeout.
func (p TimeoutPayload) Description() string {
	return fmt.Sprintf("timeout called by %s team (%d remaining)", p.Team, p.Remaining)
}

// SubstitutionPayload is the payload of an EventTypeSubstitution event.
type SubstitutionPayload struct {
	// Team is the side substituting.
	Team Side `json:"team"`
	// PlayerIn is the optional id of the entering player.
	PlayerIn nulls.UUID `json:"player_in"`
	// PlayerOut is the optional id of the leaving player.
	PlayerOut nulls.UUID `json:"player_out"`
	// Line is the optional name of the line being fielded.
	Line nulls.String `json:"line"`
}

// Description returns a human-readable description of the substitution.
func (p SubstitutionPayload) Description() string {
	return fmt.Sprintf("substitution for %s team", p.Team)
}

// PenaltyPayload is the payload of an EventTypePenalty event.
type PenaltyPayload struct {
	// Team is the side the penalty is called against.
	Team Side `json:"team"`
	// Player is the optional id of the penalized player.
	Player nulls.UUID `json:"player"`
	// Reason is the optional reason for the penalty.
	Reason nulls.String `json:"reason"`
}

// Description returns a human-readable description of the penalty.
func (p PenaltyPayload) Description() string {
	return fmt.Sprintf("penalty against %s team", p.Team)
}

// PeriodEndPayload is the payload of an EventTypePeriodEnd event.
type PeriodEndPayload struct {
	// EndedPeriod is the period that ended.
	EndedPeriod int `json:"ended_period"`
	// NextPeriod is the period play continues with.
	NextPeriod int `json:"next_period"`
}

// Description returns a human-readable description of the period end.
func (p PeriodEndPayload) Description() string {
	return fmt.Sprintf("period %d ended", p.EndedPeriod)
}

// GameEndPayload is the payload of an EventTypeGameEnd event.
type GameEndPayload struct {
	// FinalHomeScore is the home score the game ended with.
	FinalHomeScore int `json:"final_home_score"`
	// FinalAwayScore is the away score the game ended with.
	FinalAwayScore int `json:"final_away_score"`
	// AutoTerminated describes whether the engine ended the game without
	// explicit operator action.
	AutoTerminated bool `json:"auto_terminated"`
}

// Description returns a human-readable description of the game end.
func (p GameEndPayload) Description() string {
	return fmt.Sprintf("game ended %d:%d", p.FinalHomeScore, p.FinalAwayScore)
}

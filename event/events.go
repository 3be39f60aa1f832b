// Package event provides the payload types exchanged over the portal.
package event

import (
	"encoding/json"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/ultiscore/ultiscore-server/games"
	"github.com/ultiscore/ultiscore-server/store"
)

// Event is a received portal message with its already unmarshalled payload.
type Event[T any] struct {
	Publish *paho.Publish
	Payload T
}

// GameStateUpdatedPayload is published whenever a game's live state changed.
// Venue scoreboard displays render from this.
type GameStateUpdatedPayload struct {
	GameID                uuid.UUID    `json:"game_id"`
	Status                games.Status `json:"status"`
	HomeScore             int          `json:"home_score"`
	AwayScore             int          `json:"away_score"`
	Period                int          `json:"period"`
	ClockSeconds          int          `json:"clock_seconds"`
	ClockRunning          bool         `json:"clock_running"`
	Possession            games.Side   `json:"possession"`
	PointStartedWith      games.Side   `json:"point_started_with"`
	HomeTimeoutsRemaining int          `json:"home_timeouts_remaining"`
	AwayTimeoutsRemaining int          `json:"away_timeouts_remaining"`
	ActiveTimeoutTeam     nulls.String `json:"active_timeout_team"`
	ActiveTimeoutStart    nulls.Time   `json:"active_timeout_start"`
	LastUpdateTime        time.Time    `json:"last_update_time"`
}

// GameStateUpdatedPayloadFromStore builds a GameStateUpdatedPayload from the
// given snapshot and game status.
func GameStateUpdatedPayloadFromStore(status games.Status, state store.LiveState) GameStateUpdatedPayload {
	return GameStateUpdatedPayload{
		GameID:                state.GameID,
		Status:                status,
		HomeScore:             state.HomeScore,
		AwayScore:             state.AwayScore,
		Period:                state.Period,
		ClockSeconds:          state.ClockSeconds,
		ClockRunning:          state.ClockRunning,
		Possession:            state.Possession,
		PointStartedWith:      state.PointStartedWith,
		HomeTimeoutsRemaining: state.HomeTimeoutsRemaining,
		AwayTimeoutsRemaining: state.AwayTimeoutsRemaining,
		ActiveTimeoutTeam:     state.ActiveTimeoutTeam,
		ActiveTimeoutStart:    state.ActiveTimeoutStart,
		LastUpdateTime:        state.LastUpdateTime,
	}
}

// GameEventAppendedPayload is published for every appended play-by-play
// entry.
type GameEventAppendedPayload struct {
	EventID      uuid.UUID       `json:"event_id"`
	GameID       uuid.UUID       `json:"game_id"`
	Timestamp    time.Time       `json:"timestamp"`
	ClockSeconds int             `json:"clock_seconds"`
	Period       int             `json:"period"`
	Type         games.EventType `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Description  string          `json:"description"`
}

// GameEventAppendedPayloadFromStore builds a GameEventAppendedPayload from
// the given store.Event.
func GameEventAppendedPayloadFromStore(e store.Event) GameEventAppendedPayload {
	return GameEventAppendedPayload{
		EventID:      e.ID,
		GameID:       e.GameID,
		Timestamp:    e.Timestamp,
		ClockSeconds: e.ClockSeconds,
		Period:       e.Period,
		Type:         e.Type,
		Payload:      e.Payload,
		Description:  e.Description,
	}
}

// ClockUpdatePayload is received from stadium clock devices that push the
// official clock over the portal.
type ClockUpdatePayload struct {
	GameID       uuid.UUID `json:"game_id"`
	ClockSeconds int       `json:"clock_seconds"`
	ClockRunning bool      `json:"clock_running"`
}

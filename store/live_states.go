package store

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
)

// LiveState is the single current mutable snapshot of an in-progress game.
// Exactly one LiveState exists per game, created together with the game
// record. It is never mutated directly by clients, only through the engine's
// operations.
type LiveState struct {
	// GameID references the game the snapshot belongs to.
	GameID uuid.UUID
	// HomeScore is the home team's score. Monotonically non-decreasing.
	HomeScore int
	// AwayScore is the away team's score. Monotonically non-decreasing.
	AwayScore int
	// Period is the current period, starting at 1.
	Period int
	// ClockSeconds is the current clock value. Its meaning depends on the format.
	ClockSeconds int
	// ClockRunning describes whether the clock is counting.
	ClockRunning bool
	// Possession is the side currently holding the disc.
	Possession games.Side
	// PointStartedWith is the side that started the current point with
	// possession.
	PointStartedWith games.Side
	// HomeTimeoutsRemaining is the number of timeouts the home team has left.
	HomeTimeoutsRemaining int
	// AwayTimeoutsRemaining is the number of timeouts the away team has left.
	AwayTimeoutsRemaining int
	// ActiveTimeoutTeam is the side of a currently running timeout.
	ActiveTimeoutTeam nulls.String
	// ActiveTimeoutStart is when the currently running timeout started.
	ActiveTimeoutStart nulls.Time
	// HomeGenderRatio is the optional gender ratio count for the home line
	// (mixed division only).
	HomeGenderRatio nulls.Int
	// AwayGenderRatio is the optional gender ratio count for the away line
	// (mixed division only).
	AwayGenderRatio nulls.Int
	// LastUpdateTime is when the snapshot was mutated the last time.
	LastUpdateTime time.Time
	// LastUpdatedBy references the user that performed the last mutation.
	LastUpdatedBy uuid.UUID
	// Version is the optimistic-concurrency counter. It is incremented on every
	// mutation and checked on write.
	Version int
}

// liveStateColumns are the selected columns for scanLiveState in order.
var liveStateColumns = []interface{}{
	goqu.C("game_id"), goqu.C("home_score"), goqu.C("away_score"), goqu.C("period"),
	goqu.C("clock_seconds"), goqu.C("clock_running"), goqu.C("possession"),
	goqu.C("point_started_with"), goqu.C("home_timeouts_remaining"),
	goqu.C("away_timeouts_remaining"), goqu.C("active_timeout_team"),
	goqu.C("active_timeout_start"), goqu.C("home_gender_ratio"),
	goqu.C("away_gender_ratio"), goqu.C("last_update_time"),
	goqu.C("last_updated_by"), goqu.C("version"),
}

// scanLiveState scans a LiveState from the given pgx.Row.
func scanLiveState(row pgx.Row) (LiveState, error) {
	var state LiveState
	var possession, pointStartedWith string
	err := row.Scan(&state.GameID, &state.HomeScore, &state.AwayScore, &state.Period,
		&state.ClockSeconds, &state.ClockRunning, &possession, &pointStartedWith,
		&state.HomeTimeoutsRemaining, &state.AwayTimeoutsRemaining,
		&state.ActiveTimeoutTeam, &state.ActiveTimeoutStart,
		&state.HomeGenderRatio, &state.AwayGenderRatio,
		&state.LastUpdateTime, &state.LastUpdatedBy, &state.Version)
	if err != nil {
		return LiveState{}, err
	}
	state.Possession = games.Side(possession)
	state.PointStartedWith = games.Side(pointStartedWith)
	return state, nil
}

// liveStateRecord builds the goqu.Record for inserting or updating the given
// LiveState.
func liveStateRecord(state LiveState) goqu.Record {
	return goqu.Record{
		"home_score":              state.HomeScore,
		"away_score":              state.AwayScore,
		"period":                  state.Period,
		"clock_seconds":           state.ClockSeconds,
		"clock_running":           state.ClockRunning,
		"possession":              string(state.Possession),
		"point_started_with":      string(state.PointStartedWith),
		"home_timeouts_remaining": state.HomeTimeoutsRemaining,
		"away_timeouts_remaining": state.AwayTimeoutsRemaining,
		"active_timeout_team":     state.ActiveTimeoutTeam,
		"active_timeout_start":    state.ActiveTimeoutStart,
		"home_gender_ratio":       state.HomeGenderRatio,
		"away_gender_ratio":       state.AwayGenderRatio,
		"last_update_time":        state.LastUpdateTime,
		"last_updated_by":         state.LastUpdatedBy,
		"version":                 state.Version,
	}
}

// insertLiveState inserts the given LiveState using the given querier.
func insertLiveState(ctx context.Context, q querier, dialect goqu.DialectWrapper, state LiveState) error {
	record := liveStateRecord(state)
	record["game_id"] = state.GameID
	query, _, err := dialect.Insert(goqu.T("live_states")).Rows(record).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"game": state.GameID})
	}
	_, err = q.Exec(ctx, query)
	if err != nil {
		return errors.NewExecQueryError(err, query, errors.Details{"game": state.GameID})
	}
	return nil
}

// updateLiveState replaces the stored live state if its version still matches
// the expected one. A mismatch yields an error with kind
// errors.KindVersionConflict.
func updateLiveState(ctx context.Context, q querier, dialect goqu.DialectWrapper, state LiveState, expectedVersion int) error {
	query, _, err := dialect.Update(goqu.T("live_states")).
		Set(liveStateRecord(state)).
		Where(goqu.C("game_id").Eq(state.GameID), goqu.C("version").Eq(expectedVersion)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"game": state.GameID})
	}
	tag, err := q.Exec(ctx, query)
	if err != nil {
		return errors.NewExecQueryError(err, query, errors.Details{"game": state.GameID})
	}
	if tag.RowsAffected() != 1 {
		return errors.NewVersionConflictError("live state version moved on", errors.Details{
			"game":            state.GameID,
			"expectedVersion": expectedVersion,
		})
	}
	return nil
}

// LiveStateByGame retrieves the LiveState for the given game.
func (m *Mall) LiveStateByGame(ctx context.Context, gameID uuid.UUID) (LiveState, error) {
	q, _, err := m.dialect.From(goqu.T("live_states")).
		Select(liveStateColumns...).
		Where(goqu.C("game_id").Eq(gameID)).ToSQL()
	if err != nil {
		return LiveState{}, errors.NewQueryToSQLError(err, errors.Details{"game": gameID})
	}
	state, err := scanLiveState(m.db.QueryRow(ctx, q))
	if err != nil {
		if err == pgx.ErrNoRows {
			return LiveState{}, errors.NewResourceNotFoundError(fmt.Sprintf("live state for game %s not found", gameID),
				errors.Details{"game": gameID})
		}
		return LiveState{}, errors.NewScanSingleDBRowError("scan live state", err, errors.Details{"game": gameID})
	}
	return state, nil
}

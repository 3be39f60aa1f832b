package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
)

// Game is the store representation of a game record.
type Game struct {
	// ID identifies the game.
	ID uuid.UUID
	// Format is the competitive format the game is played in.
	Format games.Format
	// Status is the lifecycle status.
	Status games.Status
	// HomeTeam references the home team.
	HomeTeam uuid.UUID
	// AwayTeam references the away team.
	AwayTeam uuid.UUID
	// ScheduledStart is when the game is planned to start.
	ScheduledStart time.Time
	// ActualStart is when the game actually started.
	ActualStart nulls.Time
	// EndTime is when the game ended.
	EndTime nulls.Time
	// Venue is where the game takes place.
	Venue string
	// FieldInfo is optional field geometry information.
	FieldInfo nulls.String
	// RuleConfig is the format-specific rule configuration.
	RuleConfig games.RuleConfig
	// GenderRatioRequired describes whether gender ratio counts are tracked
	// (mixed division).
	GenderRatioRequired bool
}

// gameColumns are the selected columns for scanGame in order.
var gameColumns = []interface{}{
	goqu.C("id"), goqu.C("format"), goqu.C("status"), goqu.C("home_team"),
	goqu.C("away_team"), goqu.C("scheduled_start"), goqu.C("actual_start"),
	goqu.C("end_time"), goqu.C("venue"), goqu.C("field_info"),
	goqu.C("rule_config"), goqu.C("gender_ratio_required"),
}

// scanGame scans a Game from the given pgx.Row.
func scanGame(row pgx.Row) (Game, error) {
	var game Game
	var format, status string
	var ruleConfigRaw []byte
	err := row.Scan(&game.ID, &format, &status, &game.HomeTeam, &game.AwayTeam,
		&game.ScheduledStart, &game.ActualStart, &game.EndTime, &game.Venue,
		&game.FieldInfo, &ruleConfigRaw, &game.GenderRatioRequired)
	if err != nil {
		return Game{}, err
	}
	game.Format = games.Format(format)
	game.Status = games.Status(status)
	err = json.Unmarshal(ruleConfigRaw, &game.RuleConfig)
	if err != nil {
		return Game{}, errors.NewInternalErrorFromErr(err, "unmarshal rule config", nil)
	}
	return game, nil
}

// gameRecord builds the goqu.Record for inserting or updating the given Game.
func gameRecord(game Game) (goqu.Record, error) {
	ruleConfigRaw, err := json.Marshal(game.RuleConfig)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "marshal rule config", nil)
	}
	return goqu.Record{
		"format":                string(game.Format),
		"status":                string(game.Status),
		"home_team":             game.HomeTeam,
		"away_team":             game.AwayTeam,
		"scheduled_start":       game.ScheduledStart,
		"actual_start":          game.ActualStart,
		"end_time":              game.EndTime,
		"venue":                 game.Venue,
		"field_info":            game.FieldInfo,
		"rule_config":           string(ruleConfigRaw),
		"gender_ratio_required": game.GenderRatioRequired,
	}, nil
}

// assureTeamsExist checks that all given team ids are present in the teams
// relation. Referential validation happens here so that game creation can
// fail with a proper not-found error.
func assureTeamsExist(ctx context.Context, q querier, dialect goqu.DialectWrapper, teamIDs ...uuid.UUID) error {
	for _, teamID := range teamIDs {
		query, _, err := dialect.From(goqu.T("teams")).
			Select(goqu.COUNT(goqu.C("id"))).
			Where(goqu.C("id").Eq(teamID)).ToSQL()
		if err != nil {
			return errors.NewQueryToSQLError(err, errors.Details{"team": teamID})
		}
		count, err := scanCountRow(q.QueryRow(ctx, query), "teams")
		if err != nil {
			return errors.Wrap(err, "scan team count", nil)
		}
		if count != 1 {
			return errors.NewResourceNotFoundError(fmt.Sprintf("team %s not found", teamID),
				errors.Details{"team": teamID})
		}
	}
	return nil
}

// CreateGame inserts the given Game together with its initial LiveState in a
// single transaction. Both referenced teams must exist.
func (m *Mall) CreateGame(ctx context.Context, game Game, state LiveState) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	err = assureTeamsExist(ctx, tx, m.dialect, game.HomeTeam, game.AwayTeam)
	if err != nil {
		m.rollbackTx(ctx, tx, "assure teams exist failed")
		return errors.Wrap(err, "assure teams exist", nil)
	}
	record, err := gameRecord(game)
	if err != nil {
		m.rollbackTx(ctx, tx, "build game record failed")
		return errors.Wrap(err, "build game record", nil)
	}
	record["id"] = game.ID
	q, _, err := m.dialect.Insert(goqu.T("games")).Rows(record).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "insert game query to sql failed")
		return errors.NewQueryToSQLError(err, errors.Details{"game": game.ID})
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "insert game failed")
		return errors.NewExecQueryError(err, q, errors.Details{"game": game.ID})
	}
	err = insertLiveState(ctx, tx, m.dialect, state)
	if err != nil {
		m.rollbackTx(ctx, tx, "insert live state failed")
		return errors.Wrap(err, "insert live state", nil)
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}

// GameByID retrieves the Game with the given id.
func (m *Mall) GameByID(ctx context.Context, gameID uuid.UUID) (Game, error) {
	q, _, err := m.dialect.From(goqu.T("games")).
		Select(gameColumns...).
		Where(goqu.C("id").Eq(gameID)).ToSQL()
	if err != nil {
		return Game{}, errors.NewQueryToSQLError(err, errors.Details{"game": gameID})
	}
	game, err := scanGame(m.db.QueryRow(ctx, q))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Game{}, errors.NewResourceNotFoundError(fmt.Sprintf("game %s not found", gameID),
				errors.Details{"game": gameID})
		}
		return Game{}, errors.NewScanSingleDBRowError("scan game", err, errors.Details{"game": gameID})
	}
	return game, nil
}

// GamesByStatus retrieves all games with the given status ordered by scheduled
// start.
func (m *Mall) GamesByStatus(ctx context.Context, status games.Status) ([]Game, error) {
	q, _, err := m.dialect.From(goqu.T("games")).
		Select(gameColumns...).
		Where(goqu.C("status").Eq(string(status))).
		Order(goqu.C("scheduled_start").Asc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, errors.Details{"status": status})
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, errors.Details{"status": status})
	}
	defer rows.Close()
	gameList := make([]Game, 0)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, errors.Details{"status": status})
		}
		gameList = append(gameList, game)
	}
	return gameList, nil
}

// UpdateGameRules replaces the rule configuration of the game and applies the
// recomputed clock and timeout counts to its live state in a single
// transaction. The game row is only touched while its status is upcoming.
func (m *Mall) UpdateGameRules(ctx context.Context, gameID uuid.UUID, ruleConfig games.RuleConfig, state LiveState, expectedStateVersion int) error {
	ruleConfigRaw, err := json.Marshal(ruleConfig)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "marshal rule config", errors.Details{"game": gameID})
	}
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	q, _, err := m.dialect.Update(goqu.T("games")).
		Set(goqu.Record{"rule_config": string(ruleConfigRaw)}).
		Where(goqu.C("id").Eq(gameID), goqu.C("status").Eq(string(games.StatusUpcoming))).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "update game rules query to sql failed")
		return errors.NewQueryToSQLError(err, errors.Details{"game": gameID})
	}
	tag, err := tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "update game rules failed")
		return errors.NewExecQueryError(err, q, errors.Details{"game": gameID})
	}
	if tag.RowsAffected() != 1 {
		// Either unknown or no longer upcoming. The caller has checked both before,
		// so the game must have moved on concurrently.
		m.rollbackTx(ctx, tx, "game not upcoming anymore")
		return errors.NewInvalidStateError("update game rules", "not upcoming",
			errors.Details{"game": gameID})
	}
	err = updateLiveState(ctx, tx, m.dialect, state, expectedStateVersion)
	if err != nil {
		m.rollbackTx(ctx, tx, "update live state failed")
		return errors.Wrap(err, "update live state", nil)
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}

// updateGameRow replaces the given game row within the given transaction.
func updateGameRow(ctx context.Context, tx pgx.Tx, dialect goqu.DialectWrapper, game Game) error {
	record, err := gameRecord(game)
	if err != nil {
		return errors.Wrap(err, "build game record", nil)
	}
	q, _, err := dialect.Update(goqu.T("games")).
		Set(record).
		Where(goqu.C("id").Eq(game.ID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"game": game.ID})
	}
	tag, err := tx.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"game": game.ID})
	}
	err = assureOneRowAffectedForNotFound(tag, fmt.Sprintf("game %s not found", game.ID), "games", game.ID, q)
	if err != nil {
		return errors.Wrap(err, "assure one affected", nil)
	}
	return nil
}

// ApplyLiveStateMutation applies one scorekeeping action atomically: the live
// state is replaced if its stored version still matches expectedStateVersion,
// the given events are appended and, if a cascading status change is needed,
// the game row is replaced as well. A failed version check yields an error
// with kind errors.KindVersionConflict which callers retry on.
func (m *Mall) ApplyLiveStateMutation(ctx context.Context, state LiveState, expectedStateVersion int, events []Event, game *Game) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	err = updateLiveState(ctx, tx, m.dialect, state, expectedStateVersion)
	if err != nil {
		m.rollbackTx(ctx, tx, "update live state failed")
		return errors.Wrap(err, "update live state", nil)
	}
	err = insertEvents(ctx, tx, m.dialect, events)
	if err != nil {
		m.rollbackTx(ctx, tx, "insert events failed")
		return errors.Wrap(err, "insert events", nil)
	}
	if game != nil {
		err = updateGameRow(ctx, tx, m.dialect, *game)
		if err != nil {
			m.rollbackTx(ctx, tx, "update game failed")
			return errors.Wrap(err, "update game row", nil)
		}
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}

// DeleteGame removes the game together with its live state and all of its
// events. This is the only path that destroys events.
func (m *Mall) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	for _, table := range []string{"events", "live_states"} {
		q, _, err := m.dialect.Delete(goqu.T(table)).
			Where(goqu.C("game_id").Eq(gameID)).ToSQL()
		if err != nil {
			m.rollbackTx(ctx, tx, "delete query to sql failed")
			return errors.NewQueryToSQLError(err, errors.Details{"game": gameID, "table": table})
		}
		_, err = tx.Exec(ctx, q)
		if err != nil {
			m.rollbackTx(ctx, tx, "delete failed")
			return errors.NewExecQueryError(err, q, errors.Details{"game": gameID, "table": table})
		}
	}
	q, _, err := m.dialect.Delete(goqu.T("games")).
		Where(goqu.C("id").Eq(gameID)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "delete game query to sql failed")
		return errors.NewQueryToSQLError(err, errors.Details{"game": gameID})
	}
	tag, err := tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "delete game failed")
		return errors.NewExecQueryError(err, q, errors.Details{"game": gameID})
	}
	err = assureOneRowAffectedForNotFound(tag, fmt.Sprintf("game %s not found", gameID), "games", gameID, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "game not found")
		return errors.Wrap(err, "assure one affected", nil)
	}
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}

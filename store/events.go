package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
)

// Event is one immutable entry of a game's play-by-play log. Events are only
// ever created as side effects of engine operations and only destroyed by
// deleting the whole game. No update path exists.
type Event struct {
	// ID identifies the event.
	ID uuid.UUID
	// GameID references the game the event belongs to.
	GameID uuid.UUID
	// Timestamp is when the event was recorded.
	Timestamp time.Time
	// ClockSeconds is the clock value at the time of the event.
	ClockSeconds int
	// Period is the period at the time of the event.
	Period int
	// Type is the event type.
	Type games.EventType
	// Payload is the type-conditional payload.
	Payload json.RawMessage
	// Description is a human-readable description of the event.
	Description string
	// RecordedBy references the user that recorded the event.
	RecordedBy uuid.UUID
}

// eventColumns are the selected columns for scanning events in order.
var eventColumns = []interface{}{
	goqu.C("id"), goqu.C("game_id"), goqu.C("timestamp"), goqu.C("clock_seconds"),
	goqu.C("period"), goqu.C("type"), goqu.C("payload"), goqu.C("description"),
	goqu.C("recorded_by"),
}

// insertEvents appends the given events using the given querier.
func insertEvents(ctx context.Context, q querier, dialect goqu.DialectWrapper, events []Event) error {
	for _, e := range events {
		query, _, err := dialect.Insert(goqu.T("events")).Rows(goqu.Record{
			"id":            e.ID,
			"game_id":       e.GameID,
			"timestamp":     e.Timestamp,
			"clock_seconds": e.ClockSeconds,
			"period":        e.Period,
			"type":          string(e.Type),
			"payload":       string(e.Payload),
			"description":   e.Description,
			"recorded_by":   e.RecordedBy,
		}).ToSQL()
		if err != nil {
			return errors.NewQueryToSQLError(err, errors.Details{"event": e.ID})
		}
		_, err = q.Exec(ctx, query)
		if err != nil {
			return errors.NewExecQueryError(err, query, errors.Details{"event": e.ID})
		}
	}
	return nil
}

// EventsByGame retrieves the most recent events for the given game in
// reverse-chronological order, bounded by the given limit.
func (m *Mall) EventsByGame(ctx context.Context, gameID uuid.UUID, limit int) ([]Event, error) {
	q, _, err := m.dialect.From(goqu.T("events")).
		Select(eventColumns...).
		Where(goqu.C("game_id").Eq(gameID)).
		Order(goqu.C("timestamp").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit)).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, errors.Details{"game": gameID})
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, errors.Details{"game": gameID})
	}
	defer rows.Close()
	events := make([]Event, 0)
	for rows.Next() {
		var e Event
		var eventType string
		var payloadRaw []byte
		err = rows.Scan(&e.ID, &e.GameID, &e.Timestamp, &e.ClockSeconds, &e.Period,
			&eventType, &payloadRaw, &e.Description, &e.RecordedBy)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, errors.Details{"game": gameID})
		}
		e.Type = games.EventType(eventType)
		e.Payload = payloadRaw
		events = append(events, e)
	}
	return events, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/ultiscore/ultiscore-server/errors"
	"go.uber.org/zap"
)

// Mall implements all database operations.
type Mall struct {
	logger *zap.Logger
	// db is the actual database to perform operations in.
	db *pgxpool.Pool
	// dialect is the SQL dialect for building queries.
	dialect goqu.DialectWrapper
}

// NewMall creates a new Mall using the given database. It uses the PostgreSQL
// dialect for queries.
func NewMall(logger *zap.Logger, db *pgxpool.Pool) *Mall {
	return &Mall{
		logger:  logger,
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

// querier is satisfied by pgxpool.Pool as well as pgx.Tx so that single
// queries can run standalone or as part of a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// rollbackTx rolls back the given pgx.Tx. The encapsulation is needed because
// rolling back might return an error which does not need to be returned but
// definitely logged with the original reason the rollback was performed.
func (m *Mall) rollbackTx(ctx context.Context, tx pgx.Tx, reason string) {
	err := tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		errors.Log(m.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDBRollback,
			Message: "rollback tx",
			Err:     err,
			Details: errors.Details{"rollbackReason": reason},
		})
	}
}

// assureOneRowAffectedForNotFound makes sure that exactly one row for the
// given pgconn.CommandTag is affected. Otherwise, an errors.ErrNotFound error
// is returned with the given details.
func assureOneRowAffectedForNotFound(tag pgconn.CommandTag, notFoundMessage string, table string, id interface{}, q string) error {
	if tag.RowsAffected() != 1 {
		return errors.NewResourceNotFoundError(notFoundMessage, errors.Details{
			"table":        table,
			"id":           id,
			"query":        q,
			"rowsAffected": tag.RowsAffected(),
		})
	}
	return nil
}

// scanCountRow scans a single count value from the given pgx.Row.
func scanCountRow(row pgx.Row, what string) (int, error) {
	var count int
	err := row.Scan(&count)
	if err != nil {
		return -1, errors.NewScanSingleDBRowError(fmt.Sprintf("scan %s count", what), err, nil)
	}
	return count, nil
}

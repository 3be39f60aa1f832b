package store

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/ultiscore/ultiscore-server/errors"
)

// User holds information regarding a registered user.
type User struct {
	// ID identifies the user.
	ID uuid.UUID
	// CallSign is how the user is called.
	CallSign string
	// Token is the API token the user authenticates with.
	Token string
	// ManageGames describes whether the user holds the manage-games capability
	// needed for lifecycle operations.
	ManageGames bool
	// JoinDate is when the user was created.
	JoinDate time.Time
}

// UserByToken retrieves the User that authenticates with the given token.
func (m *Mall) UserByToken(ctx context.Context, token string) (User, error) {
	q, _, err := m.dialect.From(goqu.T("users")).
		Select(goqu.C("id"), goqu.C("call_sign"), goqu.C("token"),
			goqu.C("manage_games"), goqu.C("join_date")).
		Where(goqu.C("token").Eq(token)).ToSQL()
	if err != nil {
		return User{}, errors.NewQueryToSQLError(err, nil)
	}
	var user User
	err = m.db.QueryRow(ctx, q).Scan(&user.ID, &user.CallSign, &user.Token,
		&user.ManageGames, &user.JoinDate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return User{}, errors.NewResourceNotFoundError("user not found", nil)
		}
		return User{}, errors.NewScanSingleDBRowError("scan user", err, nil)
	}
	return user, nil
}

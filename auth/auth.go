// Package auth resolves authentication tokens to permission-bearing users and
// provides capability checks.
package auth

import (
	"context"

	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
)

// CapabilityManageGames is required for all game lifecycle operations like
// creating games or driving status transitions.
const CapabilityManageGames = "manage-games"

// UserStore are the persistence dependencies needed for Service.
type UserStore interface {
	// UserByToken retrieves the store.User that authenticates with the given
	// token.
	UserByToken(ctx context.Context, token string) (store.User, error)
}

// Service resolves tokens to users.
type Service struct {
	logger *zap.Logger
	store  UserStore
}

// NewService creates a new Service ready to use.
func NewService(logger *zap.Logger, store UserStore) *Service {
	return &Service{
		logger: logger,
		store:  store,
	}
}

// Authenticate resolves the given token to a store.User. A missing or unknown
// token fails with an errors.ErrAuthentication error.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, errors.NewAuthenticationError("missing token", nil)
	}
	user, err := s.store.UserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return store.User{}, errors.NewAuthenticationError("unknown token", nil)
		}
		return store.User{}, errors.Wrap(err, "user by token", nil)
	}
	return user, nil
}

// RequireManageGames checks that the given user holds the manage-games
// capability and fails with an errors.ErrForbidden error otherwise.
func RequireManageGames(user store.User) error {
	if !user.ManageGames {
		return errors.NewForbiddenError(CapabilityManageGames, errors.Details{"user": user.ID})
	}
	return nil
}

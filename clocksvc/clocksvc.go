// Package clocksvc feeds official clock updates from stadium clock devices
// into the game state engine. Devices publish to the clock topic on the venue
// MQTT broker and authenticate with a shared device token.
package clocksvc

import (
	"context"

	"github.com/google/uuid"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/event"
	"github.com/ultiscore/ultiscore-server/portal"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
)

// ClockUpdater is the engine dependency clock updates are handed to.
type ClockUpdater interface {
	// UpdateClock sets the clock of the given game.
	UpdateClock(ctx context.Context, user store.User, gameID uuid.UUID, clockSeconds int, clockRunning bool) error
}

// Authenticator resolves the device token to a user.
type Authenticator interface {
	// Authenticate resolves the given token to a store.User.
	Authenticate(ctx context.Context, token string) (store.User, error)
}

// Service subscribes to clock updates and applies them. Run it with Run.
type Service struct {
	logger  *zap.Logger
	portal  portal.Portal
	auth    Authenticator
	updater ClockUpdater
	// deviceToken is the token clock devices authenticate with.
	deviceToken string
}

// NewService creates a new Service ready to run.
func NewService(logger *zap.Logger, p portal.Portal, auth Authenticator, updater ClockUpdater, deviceToken string) *Service {
	return &Service{
		logger:      logger,
		portal:      p,
		auth:        auth,
		updater:     updater,
		deviceToken: deviceToken,
	}
}

// Run subscribes to the clock topic and applies received updates until the
// given context.Context is done.
func (s *Service) Run(ctx context.Context) error {
	newsletter := portal.Subscribe[event.ClockUpdatePayload](ctx, s.portal, portal.TopicGameClock)
	defer newsletter.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, more := <-newsletter.Receive:
			if !more {
				return nil
			}
			s.handleClockUpdate(ctx, e.Payload)
		}
	}
}

// handleClockUpdate applies a single received update. Failures are logged and
// never stop the service, the next device tick carries fresh values anyways.
func (s *Service) handleClockUpdate(ctx context.Context, payload event.ClockUpdatePayload) {
	user, err := s.auth.Authenticate(ctx, s.deviceToken)
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "authenticate clock device", nil))
		return
	}
	err = s.updater.UpdateClock(ctx, user, payload.GameID, payload.ClockSeconds, payload.ClockRunning)
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "apply clock update", errors.Details{
			"game":         payload.GameID,
			"clockSeconds": payload.ClockSeconds,
		}))
		return
	}
}

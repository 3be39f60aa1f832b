package ws

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const hubTestTimeout = 5 * time.Second

// HubSuite tests Hub.
type HubSuite struct {
	suite.Suite
	hub      *Hub
	lifetime context.Context
	shutdown context.CancelFunc
}

func (suite *HubSuite) SetupTest() {
	suite.hub = NewHub(zap.NewNop())
	suite.lifetime, suite.shutdown = context.WithTimeout(context.Background(), hubTestTimeout)
	go suite.hub.Run(suite.lifetime)
}

func (suite *HubSuite) TearDownTest() {
	suite.shutdown()
}

// newClient creates a Client that is already registered with the hub.
func (suite *HubSuite) newClient(sendBuffer int) *Client {
	c := &Client{
		ID:   uuid.New(),
		hub:  suite.hub,
		Send: make(chan []byte, sendBuffer),
	}
	select {
	case <-suite.lifetime.Done():
		suite.Fail("register client", "timeout while registering client")
	case suite.hub.register <- c:
	}
	return c
}

// subscribe requests a game subscription for the given client.
func (suite *HubSuite) subscribe(c *Client, gameID uuid.UUID) {
	select {
	case <-suite.lifetime.Done():
		suite.Fail("subscribe client", "timeout while subscribing client")
	case suite.hub.subscriptionRequests <- subscriptionRequest{
		client:    c,
		gameID:    gameID,
		subscribe: true,
	}:
	}
}

// TestBroadcastToSubscriber assures that a subscribed client receives
// broadcasts for its game. Broadcasting is repeated because the subscription
// request is applied asynchronously by the hub.
func (suite *HubSuite) TestBroadcastToSubscriber() {
	gameID := uuid.New()
	c := suite.newClient(16)
	suite.subscribe(c, gameID)
	received := atomic.NewInt32(0)
	go func() {
		for range c.Send {
			received.Inc()
		}
	}()
	suite.Eventually(func() bool {
		suite.hub.BroadcastToGame(suite.lifetime, gameID, []byte(`{"hello":"world"}`))
		return received.Load() > 0
	}, hubTestTimeout, 10*time.Millisecond, "subscribed client should receive broadcasts")
}

// TestNoBroadcastToOtherGame assures that broadcasts only reach subscribers of
// the broadcast game.
func (suite *HubSuite) TestNoBroadcastToOtherGame() {
	subscribedGame := uuid.New()
	otherGame := uuid.New()
	subscriber := suite.newClient(16)
	bystander := suite.newClient(16)
	suite.subscribe(subscriber, subscribedGame)
	suite.subscribe(bystander, otherGame)
	subscriberReceived := atomic.NewInt32(0)
	go func() {
		for range subscriber.Send {
			subscriberReceived.Inc()
		}
	}()
	suite.Eventually(func() bool {
		suite.hub.BroadcastToGame(suite.lifetime, subscribedGame, []byte("update"))
		return subscriberReceived.Load() > 0
	}, hubTestTimeout, 10*time.Millisecond, "subscriber should receive broadcasts")
	select {
	case <-bystander.Send:
		suite.Fail("unexpected broadcast", "bystander should not receive broadcasts for other games")
	default:
	}
}

// TestSlowClientSkipped assures that a client that does not read its
// send-channel does not block delivery to others.
func (suite *HubSuite) TestSlowClientSkipped() {
	gameID := uuid.New()
	slow := suite.newClient(0)
	healthy := suite.newClient(16)
	suite.subscribe(slow, gameID)
	suite.subscribe(healthy, gameID)
	healthyReceived := atomic.NewInt32(0)
	go func() {
		for range healthy.Send {
			healthyReceived.Inc()
		}
	}()
	suite.Eventually(func() bool {
		suite.hub.BroadcastToGame(suite.lifetime, gameID, []byte("update"))
		return healthyReceived.Load() > 0
	}, hubTestTimeout, 10*time.Millisecond, "healthy client should receive broadcasts despite slow client")
}

// TestUnregisterClosesSend assures that unregistering a client closes its
// send-channel and drops its subscriptions.
func (suite *HubSuite) TestUnregisterClosesSend() {
	gameID := uuid.New()
	c := suite.newClient(16)
	suite.subscribe(c, gameID)
	select {
	case <-suite.lifetime.Done():
		suite.Fail("unregister client", "timeout while unregistering client")
	case suite.hub.unregister <- c:
	}
	suite.Eventually(func() bool {
		select {
		case _, ok := <-c.Send:
			return !ok
		default:
			return false
		}
	}, hubTestTimeout, 10*time.Millisecond, "send-channel should be closed after unregistering")
}

func TestHub(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

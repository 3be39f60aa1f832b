package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/ultiscore/ultiscore-server/event"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeout = 3 * time.Second

// mqttRouterStub mocks mqttRouter.
type mqttRouterStub struct {
	mock.Mock
}

func (s *mqttRouterStub) RegisterHandler(topic string, handler paho.MessageHandler) {
	s.Called(topic, handler)
}

func (s *mqttRouterStub) UnregisterHandler(topic string) {
	s.Called(topic)
}

func TestNewDispatcher(t *testing.T) {
	d := newDispatcher(zap.New(zapcore.NewNopCore()), &mqttRouterStub{})
	assert.NotNil(t, d.fanouts, "should have initialized fanouts")
}

// dispatcherListenSuite tests dispatcher.listen.
type dispatcherListenSuite struct {
	suite.Suite
	dispatcher *dispatcher
	mqttStub   *mqttRouterStub
}

func (suite *dispatcherListenSuite) SetupTest() {
	suite.mqttStub = &mqttRouterStub{}
	suite.dispatcher = newDispatcher(zap.New(zapcore.NewNopCore()), suite.mqttStub)
}

// TestFirstListener expects the dispatcher to create a fanout and register in
// the MQTT router.
func (suite *dispatcherListenSuite) TestFirstListener() {
	unregisterTimeout, cancelUnregisterTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelUnregisterTimeout()
	suite.mqttStub.On("RegisterHandler", "scores", mock.Anything).Once()
	suite.mqttStub.On("UnregisterHandler", "scores").Run(func(_ mock.Arguments) {
		cancelUnregisterTimeout()
	}).Once()
	defer suite.mqttStub.AssertExpectations(suite.T())
	// Listen.
	lifetime, cancel := context.WithCancel(context.Background())
	forward := make(chan event.Event[any])
	suite.dispatcher.listen(lifetime, "scores", forward)
	// Check if everything ok.
	suite.Require().Contains(suite.dispatcher.fanouts, Topic("scores"), "should have created fanout for the topic")
	fanout := suite.dispatcher.fanouts["scores"]
	fanout.listenersMutex.RLock()
	suite.Len(fanout.listeners, 1, "should have added listener")
	fanout.listenersMutex.RUnlock()
	// Cancel subscription and wait until unregistered.
	cancel()
	<-unregisterTimeout.Done()
	suite.Equal(context.Canceled, unregisterTimeout.Err(), "should not time out")
}

// TestExistingTopic assures that the handler is not registered again for the
// same topic if a listener already exists.
func (suite *dispatcherListenSuite) TestExistingTopic() {
	initialListener := &listener{
		lifetime: context.Background(),
		forward:  nil,
	}
	suite.dispatcher.fanouts["scores"] = &topicFanout{
		listeners: map[*listener]struct{}{
			initialListener: {},
		},
	}
	suite.mqttStub.On("RegisterHandler", mock.Anything, mock.Anything).Run(func(_ mock.Arguments) {
		suite.Fail("should not call register")
	}).Maybe()
	lifetime, cancel := context.WithCancel(context.Background())
	defer cancel()
	forward := make(chan event.Event[any])
	suite.dispatcher.listen(lifetime, "scores", forward)
	fanout := suite.dispatcher.fanouts["scores"]
	fanout.listenersMutex.RLock()
	suite.Len(fanout.listeners, 2, "should have added listener to existing fanout")
	fanout.listenersMutex.RUnlock()
}

// TestForward assures that received publishes are forwarded to all listeners.
func (suite *dispatcherListenSuite) TestForward() {
	var registeredHandlerFn paho.MessageHandler
	suite.mqttStub.On("RegisterHandler", "scores", mock.Anything).
		Run(func(args mock.Arguments) {
			registeredHandlerFn = args.Get(1).(paho.MessageHandler)
		}).Once()
	suite.mqttStub.On("UnregisterHandler", "scores").Maybe()
	lifetime, cancel := context.WithCancel(context.Background())
	defer cancel()
	forward := make(chan event.Event[any])
	suite.dispatcher.listen(lifetime, "scores", forward)
	suite.Require().NotNil(registeredHandlerFn, "should have registered handler")
	publish := &paho.Publish{Topic: "scores", Payload: []byte(`{"home":1}`)}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		registeredHandlerFn(publish)
	}()
	receiveTimeout, cancelReceiveTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelReceiveTimeout()
	select {
	case <-receiveTimeout.Done():
		suite.Fail("timeout while waiting for forwarded publish")
	case e := <-forward:
		suite.Equal(publish, e.Publish, "should forward the original publish")
	}
	wg.Wait()
}

// TestDropClosesForward assures that the forward channel is closed once the
// listener's lifetime is done so that rangers over it stop.
func (suite *dispatcherListenSuite) TestDropClosesForward() {
	suite.mqttStub.On("RegisterHandler", "scores", mock.Anything).Once()
	suite.mqttStub.On("UnregisterHandler", "scores").Once()
	lifetime, cancel := context.WithCancel(context.Background())
	forward := make(chan event.Event[any])
	suite.dispatcher.listen(lifetime, "scores", forward)
	cancel()
	closedTimeout, cancelClosedTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelClosedTimeout()
	select {
	case <-closedTimeout.Done():
		suite.Fail("timeout while waiting for forward channel to close")
	case _, more := <-forward:
		suite.False(more, "forward channel should be closed")
	}
}

// TestRelistenAfterDrop assures that a topic whose last listener was dropped
// is registered in the MQTT router again on the next listen.
func (suite *dispatcherListenSuite) TestRelistenAfterDrop() {
	suite.mqttStub.On("RegisterHandler", "scores", mock.Anything).Twice()
	unregisterTimeout, cancelUnregisterTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelUnregisterTimeout()
	suite.mqttStub.On("UnregisterHandler", "scores").Run(func(_ mock.Arguments) {
		cancelUnregisterTimeout()
	}).Once()
	defer suite.mqttStub.AssertExpectations(suite.T())
	firstLifetime, cancelFirst := context.WithCancel(context.Background())
	suite.dispatcher.listen(firstLifetime, "scores", make(chan event.Event[any]))
	cancelFirst()
	<-unregisterTimeout.Done()
	suite.Require().Equal(context.Canceled, unregisterTimeout.Err(), "should not time out")
	secondLifetime, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()
	suite.dispatcher.listen(secondLifetime, "scores", make(chan event.Event[any]))
}

func TestDispatcherListen(t *testing.T) {
	suite.Run(t, new(dispatcherListenSuite))
}

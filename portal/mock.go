package portal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/mock"
	"github.com/ultiscore/ultiscore-server/event"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stub mocks Portal for services under test.
type Stub struct {
	mock.Mock
	// logger is returned by Logger. Defaults to a nop logger when unset.
	logger *zap.Logger
}

// Subscribe to the given Topic. Calls mock.Mock.
func (s *Stub) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	return s.Called(ctx, topic).Get(0).(*Newsletter[any])
}

// Publish the given serializable payload to a topic. Calls mock.Mock.
func (s *Stub) Publish(ctx context.Context, topic Topic, payload interface{}) {
	s.Called(ctx, topic, payload)
}

// Logger returns the logger set for the Stub or a nop-logger when unset.
func (s *Stub) Logger() *zap.Logger {
	if s.logger == nil {
		return zap.New(zapcore.NewNopCore())
	}
	return s.logger
}

// NewSelfClosingMockNewsletter returns a Newsletter that never receives and
// closes itself once the given context.Context is done. Manually
// unsubscribing works, too.
func NewSelfClosingMockNewsletter(ctx context.Context) *Newsletter[any] {
	lifetime, cancel := context.WithCancel(ctx)
	receive := make(chan event.Event[any])
	go func() {
		<-lifetime.Done()
		close(receive)
	}()
	return &Newsletter[any]{
		unregisterFn: cancel,
		Receive:      receive,
	}
}

// NewSelfClosingReceivingMockNewsletter returns a Newsletter fed from the
// given channel. Each received event's payload is marshalled into the
// publish-payload the way a real broker message would arrive, so generic
// Subscribe wrappers can parse it again. The Newsletter closes once the given
// context.Context is done or the feed channel is closed.
func NewSelfClosingReceivingMockNewsletter(ctx context.Context, feed <-chan event.Event[any]) *Newsletter[any] {
	lifetime, cancel := context.WithCancel(ctx)
	receive := make(chan event.Event[any])
	go func() {
		defer close(receive)
		for {
			select {
			case <-lifetime.Done():
				return
			case e, more := <-feed:
				if !more {
					return
				}
				select {
				case <-lifetime.Done():
					return
				case receive <- asBrokerEvent(e):
				}
			}
		}
	}()
	return &Newsletter[any]{
		unregisterFn: cancel,
		Receive:      receive,
	}
}

// asBrokerEvent moves the event's payload into the raw publish-payload like a
// message received from the broker.
func asBrokerEvent(e event.Event[any]) event.Event[any] {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		panic(fmt.Sprintf("marshal payload: %v", err))
	}
	if e.Publish == nil {
		e.Publish = &paho.Publish{}
	}
	e.Publish.Payload = raw
	e.Payload = nil
	return e
}

package portal

import (
	"context"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/event"
	"go.uber.org/zap"
)

// mqttRouter is the part of paho.Router the dispatcher needs for topic
// matching.
type mqttRouter interface {
	RegisterHandler(topic string, handler paho.MessageHandler)
	UnregisterHandler(topic string)
}

// listener forwards publishes for one topic to a subscriber until its
// lifetime is done.
type listener struct {
	// lifetime ends the subscription when done.
	lifetime context.Context
	// forward receives all publishes for the topic. Closed by the dispatcher
	// once the listener is dropped.
	forward chan<- event.Event[any]
}

// topicFanout holds all listeners of one topic.
type topicFanout struct {
	// listenersMutex locks listeners. Held for reading during delivery so that
	// dropping a listener cannot race a pending send on its forward channel.
	listenersMutex sync.RWMutex
	listeners      map[*listener]struct{}
}

// deliver hands the publish to every listener. Delivery is sequential which
// keeps the per-topic order of publishes for each listener. Listeners with an
// ended lifetime are skipped.
func (fanout *topicFanout) deliver(publish *paho.Publish) {
	fanout.listenersMutex.RLock()
	defer fanout.listenersMutex.RUnlock()
	for l := range fanout.listeners {
		select {
		case <-l.lifetime.Done():
		case l.forward <- event.Event[any]{Publish: publish}:
		}
	}
}

// dispatcher multiplexes MQTT subscriptions. Exactly one paho handler is
// registered per subscribed topic, fanning out received publishes to any
// number of listeners.
type dispatcher struct {
	logger *zap.Logger
	// mqtt performs the actual topic matching.
	mqtt mqttRouter
	// fanoutsMutex locks fanouts.
	fanoutsMutex sync.Mutex
	// fanouts holds the topicFanout per subscribed topic.
	fanouts map[Topic]*topicFanout
}

func newDispatcher(logger *zap.Logger, mqtt mqttRouter) *dispatcher {
	return &dispatcher{
		logger:  logger,
		mqtt:    mqtt,
		fanouts: make(map[Topic]*topicFanout),
	}
}

// listen subscribes the given forward channel to the Topic until the lifetime
// is done. The channel is closed once the listener is dropped.
func (d *dispatcher) listen(lifetime context.Context, topic Topic, forward chan<- event.Event[any]) {
	d.fanoutsMutex.Lock()
	defer d.fanoutsMutex.Unlock()
	fanout, ok := d.fanouts[topic]
	if !ok {
		fanout = &topicFanout{listeners: make(map[*listener]struct{})}
		d.fanouts[topic] = fanout
		d.mqtt.RegisterHandler(string(topic), fanout.deliver)
		d.logger.Debug("subscribed to topic", zap.Any("topic", topic))
	}
	l := &listener{
		lifetime: lifetime,
		forward:  forward,
	}
	fanout.listenersMutex.Lock()
	fanout.listeners[l] = struct{}{}
	fanout.listenersMutex.Unlock()
	// Drop when the lifetime is done.
	go func() {
		<-lifetime.Done()
		d.drop(topic, l)
	}()
}

// drop removes the listener, closes its forward channel and unregisters the
// topic handler once no listeners for the topic are left. Only listen
// schedules this!
func (d *dispatcher) drop(topic Topic, l *listener) {
	d.fanoutsMutex.Lock()
	defer d.fanoutsMutex.Unlock()
	fanout, ok := d.fanouts[topic]
	if !ok {
		errors.Log(d.logger, errors.NewInternalError("drop listener for unknown topic",
			errors.Details{"topic": topic}))
		return
	}
	fanout.listenersMutex.Lock()
	defer fanout.listenersMutex.Unlock()
	if _, ok := fanout.listeners[l]; !ok {
		errors.Log(d.logger, errors.NewInternalError("drop unknown listener for topic",
			errors.Details{"topic": topic}))
		return
	}
	delete(fanout.listeners, l)
	// No delivery can be pending for the listener as deliver holds the read lock
	// while sending, so closing is safe. Rangers over the channel stop now.
	close(l.forward)
	if len(fanout.listeners) > 0 {
		return
	}
	delete(d.fanouts, topic)
	d.mqtt.UnregisterHandler(string(topic))
}

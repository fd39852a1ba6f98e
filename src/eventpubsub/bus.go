package eventpubsub

import (
	"fmt"

	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"
)

// Bus is an in-process topic bus. Subscribers registered with Subscribe run
// asynchronously and serially per handler.
type Bus struct {
	bus EventBus.Bus
}

func New() *Bus {
	return &Bus{bus: EventBus.New()}
}

func (b *Bus) Publish(topic string, event interface{}) {
	b.bus.Publish(topic, event)
}

func (b *Bus) Subscribe(topic string, callbackFn interface{}) error {
	if err := b.bus.SubscribeAsync(topic, callbackFn, true); err != nil {
		return fmt.Errorf("Bus.Subscribe: %s: %w", topic, err)
	}

	log.Infof("Subscribed to topic %s", topic)
	return nil
}

func (b *Bus) SubscribeSync(topic string, callbackFn interface{}) error {
	if err := b.bus.Subscribe(topic, callbackFn); err != nil {
		return fmt.Errorf("Bus.SubscribeSync: %s: %w", topic, err)
	}

	log.Infof("Subscribed to topic %s", topic)
	return nil
}

func (b *Bus) Unsubscribe(topic string, callbackFn interface{}) error {
	return b.bus.Unsubscribe(topic, callbackFn)
}

func (b *Bus) HasSubscribers(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Wait blocks until all asynchronous handlers have returned.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventcache"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/eventsources"
)

const subscriptionName = "ingestion-coordinator"

// EventRecorder is told about every event that reaches the cache.
type EventRecorder interface {
	RecordEventIngested(category eventmodels.Category)
}

type subscriber struct {
	name    string
	handler eventsources.Handler
}

type Coordinator struct {
	registry  *eventsources.Registry
	processor *Processor
	cache     *eventcache.Cache
	recorder  EventRecorder

	mu          sync.RWMutex
	subscribers []subscriber
	running     bool
}

func NewCoordinator(registry *eventsources.Registry, processor *Processor, cache *eventcache.Cache) *Coordinator {
	if registry == nil {
		registry = eventsources.NewRegistry()
	}
	if processor == nil {
		processor = NewProcessor()
	}
	if cache == nil {
		cache = eventcache.New(nil)
	}

	return &Coordinator{
		registry:  registry,
		processor: processor,
		cache:     cache,
	}
}

func (c *Coordinator) SetRecorder(r EventRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recorder = r
}

func (c *Coordinator) Registry() *eventsources.Registry {
	return c.registry
}

func (c *Coordinator) Cache() *eventcache.Cache {
	return c.cache
}

func (c *Coordinator) Processor() *Processor {
	return c.processor
}

// Register adds the source to the registry and routes its events through
// HandleEvent.
func (c *Coordinator) Register(src eventsources.Source) error {
	if err := c.registry.Register(src); err != nil {
		return fmt.Errorf("Coordinator.Register: %w", err)
	}

	src.Subscribe(subscriptionName, c.HandleEvent)
	return nil
}

func (c *Coordinator) Unregister(ctx context.Context, name string) bool {
	src, found := c.registry.Unregister(name)
	if !found {
		return false
	}

	src.Unsubscribe(subscriptionName)
	src.StopStreaming()
	src.Disconnect(ctx)
	return true
}

// Subscribe adds a downstream handler. Handlers run in registration order.
func (c *Coordinator) Subscribe(name string, h eventsources.Handler) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.subscribers {
		if s.name == name {
			return false
		}
	}

	c.subscribers = append(c.subscribers, subscriber{name: name, handler: h})
	log.Infof("new ingestion subscriber: %s", name)
	return true
}

func (c *Coordinator) Unsubscribe(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.subscribers {
		if s.name == name {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// HandleEvent runs the processor chain, caches the survivor and fans it out.
// It never returns an error so a source always keeps delivering.
func (c *Coordinator) HandleEvent(ctx context.Context, ev eventmodels.Event) error {
	processed, ok := c.processor.Process(ctx, ev)
	if !ok {
		eventsDropped.WithLabelValues(string(ev.Category)).Inc()
		return nil
	}

	c.cache.Put(processed)
	eventsIngested.WithLabelValues(string(processed.Category)).Inc()

	c.mu.RLock()
	recorder := c.recorder
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.RUnlock()

	if recorder != nil {
		recorder.RecordEventIngested(processed.Category)
	}

	for _, s := range subs {
		if err := notify(ctx, s, processed); err != nil {
			subscriberFailures.Inc()
			log.WithField("subscriber", s.name).Errorf("failed to handle %s: %v", processed, err)
		}
	}

	return nil
}

func notify(ctx context.Context, s subscriber, ev eventmodels.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return s.handler(ctx, ev)
}

// Start starts every registered source. Sources failing on configuration are
// reported in the returned error; transport failures are only logged.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	failures := c.registry.StartAll(ctx)

	var errs []error
	for name, err := range failures {
		if errors.Is(err, eventmodels.ErrConfig) {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	log.Infof("ingestion started: %d sources, %d failed", len(c.registry.List()), len(failures))
	return errors.Join(errs...)
}

func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.registry.StopAll(ctx)
	log.Info("ingestion stopped")
}

func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.running
}

// SubscribeKey adds key to every source that supports it and can change
// keys at runtime.
func (c *Coordinator) SubscribeKey(ctx context.Context, key string) (int, error) {
	added := 0
	var errs []error

	for _, src := range c.registry.List() {
		ks, ok := src.(eventsources.KeySubscriber)
		if !ok || !supports(src, key) {
			continue
		}

		if err := ks.SubscribeKey(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		added++
	}

	return added, errors.Join(errs...)
}

func (c *Coordinator) UnsubscribeKey(ctx context.Context, key string) (int, error) {
	removed := 0
	var errs []error

	for _, src := range c.registry.List() {
		ks, ok := src.(eventsources.KeySubscriber)
		if !ok {
			continue
		}

		if err := ks.UnsubscribeKey(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

func supports(src eventsources.Source, key string) bool {
	keys := src.SupportedKeys()
	if len(keys) == 0 {
		return true
	}

	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func (c *Coordinator) Status() eventmodels.IngestStatus {
	sources := c.registry.HealthCheckAll()

	issues := []string{}
	for _, h := range sources {
		if !h.Running {
			issues = append(issues, fmt.Sprintf("source %s is not running", h.Name))
		} else if !h.Healthy {
			issues = append(issues, fmt.Sprintf("source %s is unhealthy", h.Name))
		}
		if h.Error != "" {
			issues = append(issues, fmt.Sprintf("source %s: %s", h.Name, h.Error))
		}
	}

	return eventmodels.IngestStatus{
		Running: c.IsRunning(),
		Sources: sources,
		Issues:  issues,
	}
}

package eventsources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type subscription struct {
	name    string
	handler Handler
}

// BaseSource carries the subscriber set and the running gate shared by every
// concrete source.
type BaseSource struct {
	name       string
	categories []eventmodels.Category
	now        func() time.Time

	subMu       sync.RWMutex
	subscribers []subscription

	// gate is held for reading while handlers run, so StopStreaming waits
	// for in-flight deliveries before returning.
	gate    sync.RWMutex
	running bool
	healthy bool
	lastErr error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBaseSource(name string, categories ...eventmodels.Category) *BaseSource {
	return &BaseSource{
		name:       name,
		categories: categories,
		now:        time.Now,
		healthy:    true,
	}
}

func (b *BaseSource) Name() string {
	return b.name
}

func (b *BaseSource) Categories() []eventmodels.Category {
	out := make([]eventmodels.Category, len(b.categories))
	copy(out, b.categories)
	return out
}

// Subscribe registers h under name. Registering an existing name is a no-op
// and returns false.
func (b *BaseSource) Subscribe(name string, h Handler) bool {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	for _, s := range b.subscribers {
		if s.name == name {
			return false
		}
	}

	b.subscribers = append(b.subscribers, subscription{name: name, handler: h})
	return true
}

func (b *BaseSource) Unsubscribe(name string) bool {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	for i, s := range b.subscribers {
		if s.name == name {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return true
		}
	}

	return false
}

func (b *BaseSource) SubscriberCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	return len(b.subscribers)
}

// Notify delivers ev to every subscriber in registration order while the
// source is running. It returns the number of handlers that succeeded.
func (b *BaseSource) Notify(ctx context.Context, ev eventmodels.Event) int {
	b.gate.RLock()
	defer b.gate.RUnlock()

	if !b.running {
		return 0
	}

	b.subMu.RLock()
	subs := make([]subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	b.subMu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if err := deliver(ctx, s, ev); err != nil {
			log.WithField("source", b.name).Errorf("subscriber %s failed: %v", s.name, err)
			continue
		}
		delivered++
	}

	return delivered
}

func deliver(ctx context.Context, s subscription, ev eventmodels.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return s.handler(ctx, ev)
}

func (b *BaseSource) IsRunning() bool {
	b.gate.RLock()
	defer b.gate.RUnlock()

	return b.running
}

// startLoop flips the source to running and launches loop in its own
// goroutine with a cancellable context.
func (b *BaseSource) startLoop(ctx context.Context, loop func(ctx context.Context)) error {
	b.gate.Lock()
	defer b.gate.Unlock()

	if b.running {
		return fmt.Errorf("%s: %w", b.name, eventmodels.ErrAlreadyRunning)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.healthy = true
	b.lastErr = nil
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		loop(loopCtx)
	}()

	log.WithField("source", b.name).Info("streaming started")
	return nil
}

func (b *BaseSource) StopStreaming() {
	b.gate.Lock()
	wasRunning := b.running
	b.running = false
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gate.Unlock()

	if wasRunning {
		log.WithField("source", b.name).Info("streaming stopped")
	}
}

// markFailed stops the source and records it as unhealthy. Only the
// producer loop calls it.
func (b *BaseSource) markFailed(reason string) {
	b.gate.Lock()
	b.running = false
	b.healthy = false
	b.lastErr = errors.New(reason)
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gate.Unlock()

	log.WithField("source", b.name).Errorf("source stopped: %s", reason)
}

func (b *BaseSource) setLastError(err error) {
	b.gate.Lock()
	defer b.gate.Unlock()

	b.lastErr = err
}

// LastError returns the most recent connect or poll failure with its wrap
// chain intact, or nil.
func (b *BaseSource) LastError() error {
	b.gate.RLock()
	defer b.gate.RUnlock()

	return b.lastErr
}

// waitLoop blocks until the producer goroutine has returned.
func (b *BaseSource) waitLoop() {
	b.wg.Wait()
}

func (b *BaseSource) HealthCheck() eventmodels.SourceHealth {
	b.gate.RLock()
	running, healthy, lastErr := b.running, b.healthy, b.lastErr
	b.gate.RUnlock()

	return eventmodels.SourceHealth{
		Name:            b.name,
		Running:         running,
		Healthy:         healthy,
		SubscriberCount: b.SubscriberCount(),
		Timestamp:       b.now().UTC(),
		Error:           errString(lastErr),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

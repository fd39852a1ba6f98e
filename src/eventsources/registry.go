package eventsources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// Registry owns the active sources in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

func (r *Registry) Register(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.sources[src.Name()]; found {
		return fmt.Errorf("Registry.Register: source %s already registered", src.Name())
	}

	r.sources[src.Name()] = src
	r.order = append(r.order, src.Name())
	log.Infof("registered source %s", src.Name())
	return nil
}

func (r *Registry) Unregister(name string) (Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, found := r.sources[name]
	if !found {
		return nil, false
	}

	delete(r.sources, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return src, true
}

func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, found := r.sources[name]
	return src, found
}

func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// StartAll connects and starts every source. A failing source is logged and
// skipped; the returned map holds the failure per source name.
func (r *Registry) StartAll(ctx context.Context) map[string]error {
	failures := make(map[string]error)

	for _, src := range r.List() {
		logger := log.WithField("source", src.Name())

		if !src.Connect(ctx) {
			err := connectError(src)
			logger.Error(err)
			failures[src.Name()] = err
			continue
		}

		if err := src.StartStreaming(ctx); err != nil {
			if errors.Is(err, eventmodels.ErrAlreadyRunning) {
				continue
			}
			logger.Errorf("start failed: %v", err)
			failures[src.Name()] = err
		}
	}

	return failures
}

// connectError keeps the source's own cause in the chain. Causes that are
// neither config nor transport failures are classed as transport.
func connectError(src Source) error {
	var cause error
	if reporter, ok := src.(ErrorReporter); ok {
		cause = reporter.LastError()
	}

	switch {
	case cause == nil:
		return fmt.Errorf("connect failed: %w", eventmodels.ErrTransport)
	case errors.Is(cause, eventmodels.ErrConfig), errors.Is(cause, eventmodels.ErrTransport):
		return fmt.Errorf("connect failed: %w", cause)
	default:
		return fmt.Errorf("connect failed: %w: %w", cause, eventmodels.ErrTransport)
	}
}

func (r *Registry) StopAll(ctx context.Context) {
	sources := r.List()
	for i := len(sources) - 1; i >= 0; i-- {
		src := sources[i]
		src.StopStreaming()
		if !src.Disconnect(ctx) {
			log.WithField("source", src.Name()).Warn("disconnect reported failure")
		}
	}
}

func (r *Registry) HealthCheckAll() []eventmodels.SourceHealth {
	sources := r.List()
	out := make([]eventmodels.SourceHealth, 0, len(sources))
	for _, src := range sources {
		out = append(out, src.HealthCheck())
	}
	return out
}

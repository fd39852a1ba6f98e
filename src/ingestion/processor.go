package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// Step transforms an event. Returning a nil event drops it.
type Step func(ctx context.Context, ev eventmodels.Event) (*eventmodels.Event, error)

type namedStep struct {
	name string
	fn   Step
}

// Processor runs the ordered steps registered for an event's category.
type Processor struct {
	mu    sync.RWMutex
	steps map[eventmodels.Category][]namedStep
}

func NewProcessor() *Processor {
	return &Processor{
		steps: make(map[eventmodels.Category][]namedStep),
	}
}

func (p *Processor) Register(category eventmodels.Category, name string, step Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.steps[category] = append(p.steps[category], namedStep{name: name, fn: step})
	log.Debugf("registered %s step %s", category, name)
}

func (p *Processor) Steps(category eventmodels.Category) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.steps[category]))
	for _, s := range p.steps[category] {
		names = append(names, s.name)
	}
	return names
}

// Process returns the transformed event and false when a step dropped it.
func (p *Processor) Process(ctx context.Context, ev eventmodels.Event) (eventmodels.Event, bool) {
	p.mu.RLock()
	steps := p.steps[ev.Category]
	p.mu.RUnlock()

	current := ev
	for _, step := range steps {
		next, err := runStep(ctx, step, current)
		if err != nil {
			log.WithField("step", step.name).Warnf("dropping %s: %v", current, err)
			return current, false
		}

		if next == nil {
			return current, false
		}

		current = *next
	}

	return current, true
}

func runStep(ctx context.Context, step namedStep, ev eventmodels.Event) (out *eventmodels.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	return step.fn(ctx, ev)
}

// RequireFields drops events missing any numeric payload field.
func RequireFields(fields ...string) Step {
	return func(_ context.Context, ev eventmodels.Event) (*eventmodels.Event, error) {
		for _, f := range fields {
			if _, ok := ev.Float(f); !ok {
				return nil, fmt.Errorf("missing field %s: %w", f, eventmodels.ErrData)
			}
		}
		return &ev, nil
	}
}

// MinFloat drops events whose field is below min.
func MinFloat(field string, min float64) Step {
	return func(_ context.Context, ev eventmodels.Event) (*eventmodels.Event, error) {
		v, ok := ev.Float(field)
		if !ok || v < min {
			return nil, nil
		}
		return &ev, nil
	}
}

// StampReceived records the local arrival time in the event metadata.
func StampReceived(now func() time.Time) Step {
	return func(_ context.Context, ev eventmodels.Event) (*eventmodels.Event, error) {
		out := ev.WithMetadata("received_at", now().UTC().Format(time.RFC3339Nano))
		return &out, nil
	}
}

// RegisterDefaults installs the standard validation chain for every category.
func RegisterDefaults(p *Processor, relevanceFloor float64) {
	p.Register(eventmodels.CategoryMarket, "require-close", func(ctx context.Context, ev eventmodels.Event) (*eventmodels.Event, error) {
		if ev.Metadata["data_subtype"] == "ticker" {
			return RequireFields("last")(ctx, ev)
		}
		return RequireFields("open", "high", "low", "close")(ctx, ev)
	})
	p.Register(eventmodels.CategoryNews, "relevance-floor", MinFloat("relevance_score", relevanceFloor))
	p.Register(eventmodels.CategoryLargeTransaction, "require-amount", RequireFields("amount_usd"))

	for _, c := range eventmodels.AllCategories {
		p.Register(c, "stamp-received", StampReceived(time.Now))
	}
}

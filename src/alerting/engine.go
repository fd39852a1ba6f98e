package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/eventpubsub"
	"github.com/jiaming2012/market-sentinel/src/store"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultActiveLimit = 100
)

// Notifier delivers a triggered alert to the named channels and reports the
// outcome per channel.
type Notifier interface {
	SendAlert(ctx context.Context, alert *eventmodels.Alert, channels []string) map[string]bool
}

type Publisher interface {
	Publish(topic string, event interface{})
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// MetricCache serves recent samples from memory ahead of the store.
type MetricCache interface {
	Latest(name string) (eventmodels.MetricSample, bool)
}

func WithMetricCache(c MetricCache) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// Engine evaluates active rules against the latest stored metric values on
// a fixed tick.
type Engine struct {
	store     store.Store
	notifier  Notifier
	publisher Publisher
	metrics   MetricCache
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastFired map[uuid.UUID]time.Time

	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		interval:  DefaultInterval,
		now:       time.Now,
		lastFired: make(map[uuid.UUID]time.Time),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) Start(ctx context.Context) error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.cancel != nil {
		return fmt.Errorf("Engine.Start: %w", eventmodels.ErrAlreadyRunning)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := e.Evaluate(loopCtx); err != nil {
					log.Errorf("alert evaluation failed: %v", err)
				}
			}
		}
	}()

	log.Infof("alert engine started, interval %s", e.interval)
	return nil
}

func (e *Engine) Stop() {
	e.loopMu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.loopMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	e.wg.Wait()
	log.Info("alert engine stopped")
}

func (e *Engine) IsRunning() bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	return e.cancel != nil
}

// Evaluate runs one evaluation pass over the active rules and returns the
// alerts it created. A rule that cannot be evaluated is skipped for this tick.
func (e *Engine) Evaluate(ctx context.Context) ([]*eventmodels.Alert, error) {
	ctx, span := otel.Tracer("AlertEngine").Start(ctx, "AlertEngine.Evaluate")
	defer span.End()

	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list rules")
		return nil, fmt.Errorf("Engine.Evaluate: failed to list rules: %w", err)
	}

	var triggered []*eventmodels.Alert
	for _, rule := range rules {
		alert, err := e.evaluateRule(ctx, rule)
		if err != nil {
			log.WithField("rule", rule.Name).Warn(err)
			continue
		}

		if alert != nil {
			triggered = append(triggered, alert)
		}
	}

	span.SetAttributes(attribute.Int("rules", len(rules)), attribute.Int("triggered", len(triggered)))
	span.SetStatus(codes.Ok, "evaluation completed")
	return triggered, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule *eventmodels.AlertRule) (*eventmodels.Alert, error) {
	now := e.now()
	if e.inCooldown(rule, now) {
		return nil, nil
	}

	value, err := e.metricValue(ctx, rule.MetricName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", eventmodels.ErrRuleEvaluation, err)
	}

	ok, err := rule.Operator.Evaluate(value, rule.Threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", eventmodels.ErrRuleEvaluation, err)
	}

	if !ok {
		return nil, nil
	}

	return e.trigger(ctx, rule, value, now)
}

// metricValue resolves a namespaced metric name such as system.cpu_usage.
func (e *Engine) metricValue(ctx context.Context, name string) (float64, error) {
	ns, _, found := strings.Cut(name, ".")
	if !found || (ns != eventmodels.SystemNamespace && ns != eventmodels.ApplicationNamespace) {
		return 0, fmt.Errorf("unknown metric %q: %w", name, eventmodels.ErrMetricNotFound)
	}

	if e.metrics != nil {
		if sample, ok := e.metrics.Latest(name); ok {
			return sample.Value, nil
		}
	}

	sample, err := e.store.LatestMetricValue(ctx, name)
	if err != nil {
		return 0, err
	}

	return sample.Value, nil
}

func (e *Engine) inCooldown(rule *eventmodels.AlertRule, now time.Time) bool {
	e.mu.Lock()
	last, found := e.lastFired[rule.ID]
	e.mu.Unlock()

	if !found {
		if rule.LastTriggered == nil {
			return false
		}
		last = *rule.LastTriggered
	}

	return now.Sub(last) < rule.Cooldown()
}

func (e *Engine) trigger(ctx context.Context, rule *eventmodels.AlertRule, value float64, now time.Time) (*eventmodels.Alert, error) {
	alert := eventmodels.NewAlert(rule, value, now)
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	e.mu.Lock()
	e.lastFired[rule.ID] = now
	e.mu.Unlock()

	rule.TriggerCount++
	rule.LastTriggered = &now
	if err := e.store.SaveRule(ctx, rule); err != nil {
		log.WithField("rule", rule.Name).Errorf("failed to update rule stats: %v", err)
	}

	log.WithField("rule", rule.Name).Warnf("alert triggered: %v %s %v", value, rule.Operator, rule.Threshold)

	if e.notifier != nil && len(rule.NotificationChannels) > 0 {
		e.notify(ctx, alert, rule.NotificationChannels)
	}

	if e.publisher != nil {
		e.publisher.Publish(eventpubsub.AlertTriggeredEvent, *alert)
	}

	return alert, nil
}

func (e *Engine) notify(ctx context.Context, alert *eventmodels.Alert, channels []string) {
	results := e.notifier.SendAlert(ctx, alert, channels)

	var failed []string
	for _, ch := range channels {
		if !results[ch] {
			failed = append(failed, ch)
		}
	}

	alert.NotificationSent = len(failed) < len(channels)
	if len(failed) > 0 {
		alert.NotificationError = fmt.Sprintf("delivery failed: %s", strings.Join(failed, ", "))
		log.WithField("alert", alert.ID).Warn(alert.NotificationError)
	}

	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		log.WithField("alert", alert.ID).Errorf("failed to record notification result: %v", err)
	}
}

// Resolve marks an active alert as resolved. It reports false without error
// when the alert was already resolved.
func (e *Engine) Resolve(ctx context.Context, id uuid.UUID, by, notes string) (bool, error) {
	alert, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return false, fmt.Errorf("Engine.Resolve: %w", err)
	}

	if !alert.IsActive() {
		log.WithField("alert", id).Infof("alert already %s", alert.Status)
		return false, nil
	}

	resolvedAt := e.now()
	alert.Status = eventmodels.AlertStatusResolved
	alert.ResolvedAt = &resolvedAt
	alert.ResolvedBy = by
	alert.ResolutionNotes = notes

	if err := e.store.UpdateAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("Engine.Resolve: %w", err)
	}

	log.Infof("alert resolved: %s by %s", alert.Title, by)

	if e.publisher != nil {
		e.publisher.Publish(eventpubsub.AlertResolvedEvent, *alert)
	}

	return true, nil
}

func (e *Engine) ListActiveAlerts(ctx context.Context, limit int) ([]*eventmodels.Alert, error) {
	if limit <= 0 {
		limit = DefaultActiveLimit
	}

	return e.store.ListAlerts(ctx, store.AlertFilter{Status: eventmodels.AlertStatusActive, Limit: limit})
}

func (e *Engine) ListAlerts(ctx context.Context, filter store.AlertFilter) ([]*eventmodels.Alert, error) {
	return e.store.ListAlerts(ctx, filter)
}

// UpsertRule creates a rule or updates the one with the same name, keeping
// its trigger history.
func (e *Engine) UpsertRule(ctx context.Context, rule *eventmodels.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("Engine.UpsertRule: %w", err)
	}

	existing, err := e.store.GetRuleByName(ctx, rule.Name)
	switch {
	case err == nil:
		rule.ID = existing.ID
		rule.TriggerCount = existing.TriggerCount
		rule.LastTriggered = existing.LastTriggered
		rule.CreatedAt = existing.CreatedAt
	case errors.Is(err, eventmodels.ErrRuleNotFound):
		rule.ID = uuid.New()
	default:
		return fmt.Errorf("Engine.UpsertRule: %w", err)
	}

	if err := e.store.SaveRule(ctx, rule); err != nil {
		return fmt.Errorf("Engine.UpsertRule: %w", err)
	}
	return nil
}

// SeedRules upserts every rule, continuing past invalid ones.
func (e *Engine) SeedRules(ctx context.Context, rules []eventmodels.AlertRule) error {
	var errs []error
	for i := range rules {
		rule := rules[i]
		if err := e.UpsertRule(ctx, &rule); err != nil {
			errs = append(errs, err)
			continue
		}
	}

	if len(rules) > 0 {
		log.Infof("seeded %d alert rules, %d rejected", len(rules)-len(errs), len(errs))
	}
	return errors.Join(errs...)
}

func (e *Engine) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	rule, err := e.store.GetRule(ctx, id)
	if err != nil {
		return fmt.Errorf("Engine.SetRuleActive: %w", err)
	}

	rule.IsActive = active
	if err := e.store.SaveRule(ctx, rule); err != nil {
		return fmt.Errorf("Engine.SetRuleActive: %w", err)
	}
	return nil
}

func (e *Engine) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := e.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("Engine.DeleteRule: %w", err)
	}

	e.mu.Lock()
	delete(e.lastFired, id)
	e.mu.Unlock()
	return nil
}

func (e *Engine) ListRules(ctx context.Context) ([]*eventmodels.AlertRule, error) {
	return e.store.ListRules(ctx, false)
}

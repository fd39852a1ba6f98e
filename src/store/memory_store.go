package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// MemoryStore is a Store kept entirely in process memory. Returned records
// are copies.
type MemoryStore struct {
	mu      sync.RWMutex
	alerts  map[uuid.UUID]eventmodels.Alert
	rules   map[uuid.UUID]eventmodels.AlertRule
	samples map[string][]eventmodels.MetricSample
	nextID  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:  make(map[uuid.UUID]eventmodels.Alert),
		rules:   make(map[uuid.UUID]eventmodels.AlertRule),
		samples: make(map[string][]eventmodels.MetricSample),
	}
}

func (s *MemoryStore) CreateAlert(_ context.Context, alert *eventmodels.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if _, found := s.alerts[alert.ID]; found {
		return fmt.Errorf("MemoryStore.CreateAlert: duplicate id %s", alert.ID)
	}

	s.alerts[alert.ID] = *alert
	return nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id uuid.UUID) (*eventmodels.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, found := s.alerts[id]
	if !found {
		return nil, fmt.Errorf("MemoryStore.GetAlert: %s: %w", id, eventmodels.ErrAlertNotFound)
	}
	return &alert, nil
}

func (s *MemoryStore) UpdateAlert(_ context.Context, alert *eventmodels.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.alerts[alert.ID]; !found {
		return fmt.Errorf("MemoryStore.UpdateAlert: %s: %w", alert.ID, eventmodels.ErrAlertNotFound)
	}

	s.alerts[alert.ID] = *alert
	return nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, filter AlertFilter) ([]*eventmodels.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*eventmodels.Alert{}
	for _, a := range s.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.RuleID != nil && a.RuleID != *filter.RuleID {
			continue
		}
		if !filter.Since.IsZero() && a.TriggeredAt.Before(filter.Since) {
			continue
		}

		alert := a
		out = append(out, &alert)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveRule(_ context.Context, rule *eventmodels.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.rules {
		if r.Name == rule.Name && id != rule.ID {
			return fmt.Errorf("MemoryStore.SaveRule: rule name %s already exists", rule.Name)
		}
	}

	now := time.Now().UTC()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	stored := *rule
	stored.NotificationChannels = append([]string(nil), rule.NotificationChannels...)
	s.rules[rule.ID] = stored
	return nil
}

func (s *MemoryStore) GetRule(_ context.Context, id uuid.UUID) (*eventmodels.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, found := s.rules[id]
	if !found {
		return nil, fmt.Errorf("MemoryStore.GetRule: %s: %w", id, eventmodels.ErrRuleNotFound)
	}
	return &rule, nil
}

func (s *MemoryStore) GetRuleByName(_ context.Context, name string) (*eventmodels.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if r.Name == name {
			rule := r
			return &rule, nil
		}
	}
	return nil, fmt.Errorf("MemoryStore.GetRuleByName: %s: %w", name, eventmodels.ErrRuleNotFound)
}

func (s *MemoryStore) ListRules(_ context.Context, activeOnly bool) ([]*eventmodels.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*eventmodels.AlertRule{}
	for _, r := range s.rules {
		if activeOnly && !r.IsActive {
			continue
		}
		rule := r
		out = append(out, &rule)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.rules[id]; !found {
		return fmt.Errorf("MemoryStore.DeleteRule: %s: %w", id, eventmodels.ErrRuleNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) SaveMetricSamples(_ context.Context, samples []eventmodels.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		s.nextID++
		sample.ID = s.nextID
		s.samples[sample.Name] = append(s.samples[sample.Name], sample)
	}
	return nil
}

func (s *MemoryStore) LatestMetricValue(_ context.Context, name string) (eventmodels.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest eventmodels.MetricSample
	found := false
	for _, sample := range s.samples[name] {
		if !found || !sample.Timestamp.Before(latest.Timestamp) {
			latest = sample
			found = true
		}
	}

	if !found {
		return latest, fmt.Errorf("MemoryStore.LatestMetricValue: %s: %w", name, eventmodels.ErrMetricNotFound)
	}
	return latest, nil
}

func (s *MemoryStore) ListMetricSamples(_ context.Context, name string, since time.Time) ([]eventmodels.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []eventmodels.MetricSample{}
	for _, sample := range s.samples[name] {
		if !sample.Timestamp.Before(since) {
			out = append(out, sample)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) DeleteMetricSamplesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for name, samples := range s.samples {
		kept := samples[:0]
		for _, sample := range samples {
			if sample.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, sample)
		}
		s.samples[name] = kept
	}
	return deleted, nil
}

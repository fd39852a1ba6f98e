package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type AlertFilter struct {
	Status   eventmodels.AlertStatus
	Severity eventmodels.Severity
	RuleID   *uuid.UUID
	Since    time.Time
	Limit    int
}

// Store persists alerts, rules and metric samples. Lookups that miss return
// an error wrapping the matching eventmodels sentinel.
type Store interface {
	CreateAlert(ctx context.Context, alert *eventmodels.Alert) error
	GetAlert(ctx context.Context, id uuid.UUID) (*eventmodels.Alert, error)
	UpdateAlert(ctx context.Context, alert *eventmodels.Alert) error
	// ListAlerts returns matching alerts, newest first.
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*eventmodels.Alert, error)

	SaveRule(ctx context.Context, rule *eventmodels.AlertRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*eventmodels.AlertRule, error)
	GetRuleByName(ctx context.Context, name string) (*eventmodels.AlertRule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]*eventmodels.AlertRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error

	SaveMetricSamples(ctx context.Context, samples []eventmodels.MetricSample) error
	LatestMetricValue(ctx context.Context, name string) (eventmodels.MetricSample, error)
	ListMetricSamples(ctx context.Context, name string, since time.Time) ([]eventmodels.MetricSample, error)
	DeleteMetricSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

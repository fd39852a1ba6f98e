package collectors

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type MetricPruner interface {
	DeleteMetricSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention deletes metric samples older than the configured number of
// days, once a day.
type Retention struct {
	worker
	pruner MetricPruner
	days   int
	now    func() time.Time
}

func NewRetention(pruner MetricPruner, days int) *Retention {
	if days <= 0 {
		days = 30
	}

	return &Retention{
		worker: worker{name: "retention", interval: 24 * time.Hour, immediate: true},
		pruner: pruner,
		days:   days,
		now:    time.Now,
	}
}

func (r *Retention) Start(ctx context.Context) error {
	return r.start(ctx, func(ctx context.Context) {
		if _, err := r.Prune(ctx); err != nil {
			log.WithField("collector", r.name).Errorf("prune failed: %v", err)
		}
	})
}

func (r *Retention) Stop() {
	r.stop()
}

func (r *Retention) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -r.days)

	deleted, err := r.pruner.DeleteMetricSamplesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		log.WithField("collector", r.name).Infof("pruned %d samples older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

package collectors

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/logger"
)

// reentrantWriter records a query timing on the collector it is flushing for,
// the way a database-backed store does through its query logger.
type reentrantWriter struct {
	app *ApplicationCollector
}

func (w *reentrantWriter) SaveMetricSamples(context.Context, []eventmodels.MetricSample) error {
	w.app.RecordDBQuery(5*time.Millisecond, false, nil)
	return nil
}

type gormSampleWriter struct {
	db *gorm.DB
}

func (w *gormSampleWriter) SaveMetricSamples(ctx context.Context, samples []eventmodels.MetricSample) error {
	return w.db.WithContext(ctx).CreateInBatches(samples, 100).Error
}

func flushWithin(t *testing.T, c *ApplicationCollector, d time.Duration) (eventmodels.ApplicationSnapshot, error) {
	t.Helper()

	type result struct {
		snap eventmodels.ApplicationSnapshot
		err  error
	}

	done := make(chan result, 1)
	go func() {
		snap, err := c.Flush(context.Background())
		done <- result{snap, err}
	}()

	select {
	case r := <-done:
		return r.snap, r.err
	case <-time.After(d):
		require.FailNow(t, "flush did not return")
		return eventmodels.ApplicationSnapshot{}, nil
	}
}

func TestApplicationCollectorFlushWithQueryObserver(t *testing.T) {
	t.Run("writer that records db timings does not block the flush", func(t *testing.T) {
		// arrange
		w := &reentrantWriter{}
		c := NewApplicationCollector(w, time.Minute)
		w.app = c
		c.RecordAPIRequest(true, 10*time.Millisecond)

		// act
		snap, err := flushWithin(t, c, 3*time.Second)

		// assert
		require.NoError(t, err)
		assert.Equal(t, 1.0, snap.APIRequestsTotal)
		assert.Zero(t, snap.DBQueriesTotal)

		next := c.Snapshot()
		assert.Zero(t, next.APIRequestsTotal)
		assert.Equal(t, 1.0, next.DBQueriesTotal)
	})

	t.Run("gorm writer logging through the logrus adapter", func(t *testing.T) {
		// arrange
		var c *ApplicationCollector
		observer := func(elapsed time.Duration, slow bool, err error) {
			c.RecordDBQuery(elapsed, slow, err)
		}

		db, err := gorm.Open(postgres.New(postgres.Config{
			DSN: "host=localhost user=sentinel dbname=sentinel sslmode=disable",
		}), &gorm.Config{
			DryRun:               true,
			DisableAutomaticPing: true,
			Logger:               logger.NewLogrusLogger(log.StandardLogger(), observer),
		})
		require.NoError(t, err)

		c = NewApplicationCollector(&gormSampleWriter{db: db}, time.Minute)
		c.RecordAPIRequest(false, 20*time.Millisecond)

		// act
		snap, err := flushWithin(t, c, 3*time.Second)

		// assert
		require.NoError(t, err)
		assert.Equal(t, 1.0, snap.APIRequestsError)
		assert.Equal(t, 1.0, c.Snapshot().DBQueriesTotal)

		_, _, flushed := c.LastFlush()
		assert.True(t, flushed)
	})

	t.Run("failed write merges the taken counters with newer ones", func(t *testing.T) {
		// arrange
		c := NewApplicationCollector(failingWriter{}, time.Minute)
		c.RecordAPIRequest(true, time.Millisecond)

		// act
		_, err := c.Flush(context.Background())
		c.RecordAPIRequest(false, 3*time.Millisecond)

		// assert
		require.Error(t, err)
		snap := c.Snapshot()
		assert.Equal(t, 2.0, snap.APIRequestsTotal)
		assert.Equal(t, 1.0, snap.APIRequestsError)
		assert.InDelta(t, 2.0, snap.APIResponseTimeAvg, 1e-9)
	})
}

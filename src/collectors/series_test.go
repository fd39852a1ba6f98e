package collectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/store"
)

func TestSeries(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("each series keeps its 1000 most recent samples", func(t *testing.T) {
		// arrange
		s := NewSeries(0)

		// act
		for i := 0; i < 1500; i++ {
			ts := t0.Add(time.Duration(i) * time.Second)
			s.Add(
				eventmodels.NewMetricSample(eventmodels.SystemNamespace, "cpu_usage", float64(i), ts),
				eventmodels.NewMetricSample(eventmodels.SystemNamespace, "memory_usage", float64(i)*2, ts),
			)
		}

		// assert
		cpu := s.Window("system.cpu_usage")
		require.Len(t, cpu, SeriesWindowSize)
		assert.Equal(t, 500.0, cpu[0].Value)
		assert.Equal(t, 1499.0, cpu[len(cpu)-1].Value)
		assert.Len(t, s.Window("system.memory_usage"), SeriesWindowSize)

		latest, ok := s.Latest("system.memory_usage")
		require.True(t, ok)
		assert.Equal(t, 2998.0, latest.Value)
		assert.Equal(t, []string{"system.cpu_usage", "system.memory_usage"}, s.Names())
	})

	t.Run("unknown series is empty", func(t *testing.T) {
		s := NewSeries(10)

		_, ok := s.Latest("app.api_requests_total")

		assert.False(t, ok)
		assert.Nil(t, s.Window("app.api_requests_total"))
	})

	t.Run("writer records only after the store accepted the samples", func(t *testing.T) {
		// arrange
		s := NewSeries(10)
		ok := s.Writer(store.NewMemoryStore())
		failing := s.Writer(failingWriter{})
		sample := eventmodels.NewMetricSample(eventmodels.ApplicationNamespace, "api_requests_total", 3, t0)

		// act
		errFailed := failing.SaveMetricSamples(context.Background(), []eventmodels.MetricSample{sample})
		_, before := s.Latest(sample.Name)
		errOK := ok.SaveMetricSamples(context.Background(), []eventmodels.MetricSample{sample})

		// assert
		require.Error(t, errFailed)
		assert.False(t, before)
		require.NoError(t, errOK)
		latest, found := s.Latest(sample.Name)
		require.True(t, found)
		assert.Equal(t, 3.0, latest.Value)
	})

	t.Run("application flushes land in the window", func(t *testing.T) {
		// arrange
		s := NewSeries(0)
		c := NewApplicationCollector(s.Writer(nil), time.Minute)
		c.RecordAPIRequest(true, 40*time.Millisecond)

		// act
		_, err := c.Flush(context.Background())

		// assert
		require.NoError(t, err)
		latest, found := s.Latest("app.api_requests_total")
		require.True(t, found)
		assert.Equal(t, 1.0, latest.Value)
	})
}

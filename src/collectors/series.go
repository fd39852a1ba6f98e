package collectors

import (
	"context"
	"sort"
	"sync"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/ringbuffer"
)

const SeriesWindowSize = 1000

// Series keeps the most recent samples of every metric name in memory,
// capped per name.
type Series struct {
	capacity int

	mu      sync.RWMutex
	windows map[string]*ringbuffer.Ring[eventmodels.MetricSample]
}

func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = SeriesWindowSize
	}

	return &Series{
		capacity: capacity,
		windows:  make(map[string]*ringbuffer.Ring[eventmodels.MetricSample]),
	}
}

func (s *Series) Add(samples ...eventmodels.MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		w, ok := s.windows[sample.Name]
		if !ok {
			w = ringbuffer.New[eventmodels.MetricSample](s.capacity)
			s.windows[sample.Name] = w
		}
		w.Push(sample)
	}
}

// Latest returns the newest sample recorded for name.
func (s *Series) Latest(name string) (eventmodels.MetricSample, bool) {
	s.mu.RLock()
	w, ok := s.windows[name]
	s.mu.RUnlock()

	if !ok {
		return eventmodels.MetricSample{}, false
	}
	return w.Last()
}

// Window returns the retained samples for name, oldest first.
func (s *Series) Window(name string) []eventmodels.MetricSample {
	s.mu.RLock()
	w, ok := s.windows[name]
	s.mu.RUnlock()

	if !ok {
		return nil
	}
	return w.All()
}

func (s *Series) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.windows))
	for name := range s.windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Writer returns a MetricWriter that persists through next and then records
// the samples in the window. A nil next only records.
func (s *Series) Writer(next MetricWriter) MetricWriter {
	return &seriesWriter{series: s, next: next}
}

type seriesWriter struct {
	series *Series
	next   MetricWriter
}

func (w *seriesWriter) SaveMetricSamples(ctx context.Context, samples []eventmodels.MetricSample) error {
	if w.next != nil {
		if err := w.next.SaveMetricSamples(ctx, samples); err != nil {
			return err
		}
	}

	w.series.Add(samples...)
	return nil
}

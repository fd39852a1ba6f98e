package collectors

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// MetricWriter persists collected samples.
type MetricWriter interface {
	SaveMetricSamples(ctx context.Context, samples []eventmodels.MetricSample) error
}

// worker runs a function on a fixed interval until stopped.
type worker struct {
	name      string
	interval  time.Duration
	immediate bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (w *worker) start(ctx context.Context, tick func(ctx context.Context)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return eventmodels.ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		if w.immediate {
			tick(loopCtx)
		}
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				tick(loopCtx)
			}
		}
	}()

	log.WithField("collector", w.name).Infof("started, interval %s", w.interval)
	return nil
}

func (w *worker) stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	w.wg.Wait()
	log.WithField("collector", w.name).Info("stopped")
}

func (w *worker) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cancel != nil
}

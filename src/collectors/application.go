package collectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kataras/go-events"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/ringbuffer"
)

const (
	DefaultApplicationInterval = 60 * time.Second
	RollingWindowSize          = 1000
)

// appCounters is the state accumulated between two flushes.
type appCounters struct {
	apiTotal       int
	apiSuccess     int
	apiError       int
	responseTimes  *ringbuffer.Ring[float64]
	websocket      map[events.EventName]int
	dbTotal        int
	dbSlow         int
	dbTimes        *ringbuffer.Ring[float64]
	eventsIngested int
}

func newAppCounters() *appCounters {
	return &appCounters{
		responseTimes: ringbuffer.New[float64](RollingWindowSize),
		websocket:     make(map[events.EventName]int),
		dbTimes:       ringbuffer.New[float64](RollingWindowSize),
	}
}

// merge folds older counters in front of c. The rolling windows keep the
// newest RollingWindowSize values across both.
func (c *appCounters) merge(older *appCounters) *appCounters {
	out := newAppCounters()
	out.apiTotal = older.apiTotal + c.apiTotal
	out.apiSuccess = older.apiSuccess + c.apiSuccess
	out.apiError = older.apiError + c.apiError
	out.dbTotal = older.dbTotal + c.dbTotal
	out.dbSlow = older.dbSlow + c.dbSlow
	out.eventsIngested = older.eventsIngested + c.eventsIngested

	for _, src := range []*appCounters{older, c} {
		for _, v := range src.responseTimes.All() {
			out.responseTimes.Push(v)
		}
		for _, v := range src.dbTimes.All() {
			out.dbTimes.Push(v)
		}
		for k, n := range src.websocket {
			out.websocket[k] += n
		}
	}

	return out
}

// ApplicationCollector accumulates in-process counters and flushes a derived
// snapshot on a fixed interval. Counters reset after every successful flush.
type ApplicationCollector struct {
	worker
	writer MetricWriter
	now    func() time.Time

	// flushMu serializes flushes. The write runs without mu held: the
	// writer may record its own DB timings back into this collector.
	flushMu sync.Mutex

	mu       sync.Mutex
	counters *appCounters
	inFlight *appCounters

	startedAt time.Time
	lastFlush time.Time
	last      *eventmodels.ApplicationSnapshot
}

func NewApplicationCollector(writer MetricWriter, interval time.Duration) *ApplicationCollector {
	if interval <= 0 {
		interval = DefaultApplicationInterval
	}

	return &ApplicationCollector{
		worker:    worker{name: "application", interval: interval},
		writer:    writer,
		now:       time.Now,
		counters:  newAppCounters(),
		startedAt: time.Now(),
	}
}

func (c *ApplicationCollector) Start(ctx context.Context) error {
	return c.start(ctx, func(ctx context.Context) {
		if _, err := c.Flush(ctx); err != nil {
			log.WithField("collector", c.name).Errorf("flush failed: %v", err)
		}
	})
}

// Stop halts the loop and flushes whatever has accumulated.
func (c *ApplicationCollector) Stop(ctx context.Context) {
	c.stop()

	if _, err := c.Flush(ctx); err != nil {
		log.WithField("collector", c.name).Errorf("final flush failed: %v", err)
	}
}

func (c *ApplicationCollector) RecordAPIRequest(success bool, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters.apiTotal++
	if success {
		c.counters.apiSuccess++
	} else {
		c.counters.apiError++
	}
	c.counters.responseTimes.Push(millis(elapsed))
}

func (c *ApplicationCollector) RecordWebsocketEvent(kind events.EventName) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters.websocket[kind]++
}

// RecordDBQuery has the logger.QueryObserver signature.
func (c *ApplicationCollector) RecordDBQuery(elapsed time.Duration, slow bool, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters.dbTotal++
	if slow {
		c.counters.dbSlow++
	}
	c.counters.dbTimes.Push(millis(elapsed))
}

func (c *ApplicationCollector) RecordEventIngested(eventmodels.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters.eventsIngested++
}

// Listen counts the websocket events published on emitter.
func (c *ApplicationCollector) Listen(emitter events.EventEmmiter) {
	for _, name := range eventmodels.AllWebsocketEvents {
		name := name
		emitter.On(name, func(...interface{}) {
			c.RecordWebsocketEvent(name)
		})
	}
}

// Snapshot derives the current snapshot without resetting anything. Counters
// taken by a flush still in progress are included.
func (c *ApplicationCollector) Snapshot() eventmodels.ApplicationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := c.counters
	if c.inFlight != nil {
		counters = c.counters.merge(c.inFlight)
	}
	return c.snapshotOf(counters)
}

func (c *ApplicationCollector) snapshotOf(a *appCounters) eventmodels.ApplicationSnapshot {
	times := stats.Float64Data(a.responseTimes.All())

	return eventmodels.ApplicationSnapshot{
		Timestamp:                 c.now().UTC(),
		APIRequestsTotal:          float64(a.apiTotal),
		APIRequestsSuccess:        float64(a.apiSuccess),
		APIRequestsError:          float64(a.apiError),
		APIResponseTimeAvg:        mean(times),
		APIResponseTimeP95:        Percentile(times, 95),
		APIResponseTimeP99:        Percentile(times, 99),
		WebsocketConnections:      float64(a.websocket[eventmodels.WebsocketConnected]),
		WebsocketMessagesSent:     float64(a.websocket[eventmodels.WebsocketMessageSent]),
		WebsocketMessagesReceived: float64(a.websocket[eventmodels.WebsocketMessageReceived]),
		WebsocketErrors:           float64(a.websocket[eventmodels.WebsocketError]),
		DBQueriesTotal:            float64(a.dbTotal),
		DBQueriesSlow:             float64(a.dbSlow),
		DBQueryTimeAvg:            mean(stats.Float64Data(a.dbTimes.All())),
		EventsIngested:            float64(a.eventsIngested),
	}
}

// Flush persists the current snapshot and resets the counters. On a write
// failure the counters are kept for the next attempt.
func (c *ApplicationCollector) Flush(ctx context.Context) (eventmodels.ApplicationSnapshot, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	taken := c.counters
	c.counters = newAppCounters()
	c.inFlight = taken
	snap := c.snapshotOf(taken)
	c.mu.Unlock()

	var err error
	if c.writer != nil {
		err = c.writer.SaveMetricSamples(ctx, snap.Samples())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = nil
	if err != nil {
		c.counters = c.counters.merge(taken)
		return snap, fmt.Errorf("ApplicationCollector.Flush: %w", err)
	}

	c.last = &snap
	c.lastFlush = snap.Timestamp
	return snap, nil
}

// LastFlush returns the most recently persisted snapshot.
func (c *ApplicationCollector) LastFlush() (eventmodels.ApplicationSnapshot, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return eventmodels.ApplicationSnapshot{}, time.Time{}, false
	}
	return *c.last, c.lastFlush, true
}

func (c *ApplicationCollector) Uptime() time.Duration {
	return c.now().Sub(c.startedAt)
}

// Percentile returns the nearest-rank percentile, or 0 for an empty window.
func Percentile(values stats.Float64Data, percent float64) float64 {
	if len(values) == 0 {
		return 0
	}

	p, err := stats.PercentileNearestRank(values, percent)
	if err != nil {
		return 0
	}
	return p
}

func mean(values stats.Float64Data) float64 {
	if len(values) == 0 {
		return 0
	}

	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

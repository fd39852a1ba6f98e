package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_events_ingested_total",
		Help: "Events that passed processing and were cached",
	}, []string{"category"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_events_dropped_total",
		Help: "Events dropped by a processing step",
	}, []string{"category"})

	subscriberFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_subscriber_failures_total",
		Help: "Downstream subscriber callbacks that returned an error or panicked",
	})
)

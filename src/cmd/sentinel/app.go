package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/alerting"
	"github.com/jiaming2012/market-sentinel/src/api"
	"github.com/jiaming2012/market-sentinel/src/collectors"
	"github.com/jiaming2012/market-sentinel/src/config"
	"github.com/jiaming2012/market-sentinel/src/eventcache"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/eventpubsub"
	"github.com/jiaming2012/market-sentinel/src/eventsources"
	"github.com/jiaming2012/market-sentinel/src/ingestion"
	"github.com/jiaming2012/market-sentinel/src/logger"
	"github.com/jiaming2012/market-sentinel/src/notifier"
	"github.com/jiaming2012/market-sentinel/src/pushhub"
	"github.com/jiaming2012/market-sentinel/src/sinks"
	"github.com/jiaming2012/market-sentinel/src/store"
)

type sink interface {
	io.Closer
	Name() string
	HandleEvent(ctx context.Context, ev eventmodels.Event) error
}

// app owns every long-running component of `sentinel serve`.
type app struct {
	cfg         *config.Config
	store       store.Store
	closeStore  func() error
	bus         *eventpubsub.Bus
	coordinator *ingestion.Coordinator
	system      *collectors.SystemCollector
	application *collectors.ApplicationCollector
	series      *collectors.Series
	retention   *collectors.Retention
	health      *collectors.HealthChecker
	engine      *alerting.Engine
	dispatcher  *notifier.Dispatcher
	hub         *pushhub.Hub
	sinks       []sink
	server      *api.Server
}

// openStore returns postgres when a database url is configured and an
// in-memory store otherwise. observer receives every query timing.
func openStore(cfg *config.Config, observer logger.QueryObserver) (store.Store, func() error, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured: alerts and metrics are kept in memory")
		return store.NewMemoryStore(), func() error { return nil }, nil
	}

	db, err := store.InitPostgresWithUrl(cfg.Database.URL, logger.NewLogrusLogger(log.StandardLogger(), observer))
	if err != nil {
		return nil, nil, fmt.Errorf("openStore: %w", err)
	}

	return db, db.Close, nil
}

func buildSources(cfg *config.Config) ([]eventsources.Source, error) {
	var sources []eventsources.Source

	if cfg.Sources.Market.Enabled {
		var opts []eventsources.MarketOption
		if cfg.Sources.Market.PolygonAPIKey != "" {
			log.Info("market history served by polygon")
			opts = append(opts, eventsources.WithHistoryProvider(eventsources.NewPolygonHistory(cfg.Sources.Market.PolygonAPIKey)))
		}
		sources = append(sources, eventsources.NewMarketSource("okx", cfg.Sources.Market.SourceConfig(), opts...))
	}

	if cfg.Sources.News.Enabled {
		news, err := eventsources.NewNewsSource("news", cfg.Sources.News.SourceConfig())
		if err != nil {
			return nil, fmt.Errorf("buildSources: %w", err)
		}
		sources = append(sources, news)
	}

	if cfg.Sources.Whale.Enabled {
		whaleCfg, err := cfg.Sources.Whale.SourceConfig()
		if err != nil {
			return nil, fmt.Errorf("buildSources: %w", err)
		}
		sources = append(sources, eventsources.NewWhaleSource("whale-alert", whaleCfg))
	}

	return sources, nil
}

func buildSinks(cfg *config.Config) ([]sink, error) {
	var out []sink

	if k := cfg.Sinks.Kafka; k != nil {
		s, err := sinks.NewKafkaSink(k.Brokers, k.Topic)
		if err != nil {
			return nil, fmt.Errorf("buildSinks: %w", err)
		}
		out = append(out, s)
	}

	if n := cfg.Sinks.NATS; n != nil {
		s, err := sinks.ConnectNATS(n.URL, n.SubjectPrefix)
		if err != nil {
			for _, o := range out {
				o.Close()
			}
			return nil, fmt.Errorf("buildSinks: %w", err)
		}
		out = append(out, s)
	}

	return out, nil
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, bus: eventpubsub.New()}

	db, closeStore, err := openStore(cfg, func(elapsed time.Duration, slow bool, err error) {
		if a.application != nil {
			a.application.RecordDBQuery(elapsed, slow, err)
		}
	})
	if err != nil {
		return nil, err
	}
	a.store, a.closeStore = db, closeStore

	sources, err := buildSources(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}

	a.sinks, err = buildSinks(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}

	processor := ingestion.NewProcessor()
	ingestion.RegisterDefaults(processor, cfg.Sources.News.RelevanceFloor)
	a.coordinator = ingestion.NewCoordinator(nil, processor, eventcache.New(cfg.Cache))
	for _, src := range sources {
		if err := a.coordinator.Register(src); err != nil {
			closeStore()
			return nil, err
		}
	}

	a.series = collectors.NewSeries(collectors.SeriesWindowSize)
	a.application = collectors.NewApplicationCollector(a.series.Writer(a.store), cfg.Collectors.ApplicationInterval)
	a.system = collectors.NewSystemCollector(collectors.GopsutilSampler{DiskPath: cfg.Collectors.DiskPath}, a.series.Writer(a.store), cfg.Collectors.SystemInterval)
	a.retention = collectors.NewRetention(a.store, cfg.Collectors.RetentionDays)
	a.health = collectors.NewHealthChecker(a.system, a.application, a.coordinator, collectors.DefaultThresholds())
	a.coordinator.SetRecorder(a.application)

	a.dispatcher = notifier.NewDispatcherFromConfig(cfg.Notifications)
	a.engine = alerting.NewEngine(a.store,
		alerting.WithNotifier(a.dispatcher),
		alerting.WithPublisher(a.bus),
		alerting.WithMetricCache(a.series),
		alerting.WithInterval(cfg.Alerts.Interval),
	)

	a.hub = pushhub.NewHub(nil)
	a.application.Listen(a.hub.Emitter())

	a.server = api.NewServer(api.Deps{
		Ingestion: a.coordinator,
		Alerts:    a.engine,
		Channels:  a.dispatcher,
		Health:    a.health,
		Recorder:  a.application,
		Hub:       a.hub,
		Reports:   a.store,
	})

	return a, nil
}

// wire connects downstream consumers before anything starts producing.
func (a *app) wire(ctx context.Context) error {
	if err := a.engine.SeedRules(ctx, a.cfg.Alerts.Rules); err != nil {
		log.Warnf("some alert rules were not seeded: %v", err)
	}

	if err := a.hub.Attach(a.bus); err != nil {
		return err
	}

	a.coordinator.Subscribe("push-hub", a.hub.HandleEvent)
	for _, s := range a.sinks {
		a.coordinator.Subscribe(s.Name(), s.HandleEvent)
	}

	return nil
}

func (a *app) start(ctx context.Context) error {
	if err := a.system.Start(ctx); err != nil {
		return err
	}
	if err := a.application.Start(ctx); err != nil {
		return err
	}
	if err := a.retention.Start(ctx); err != nil {
		return err
	}

	if err := a.coordinator.Start(ctx); err != nil {
		log.Errorf("some sources are misconfigured: %v", err)
	}

	return a.engine.Start(ctx)
}

// shutdown stops components in the reverse order of start.
func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.engine.Stop()
	a.coordinator.Stop(ctx)
	a.retention.Stop()
	a.application.Stop(ctx)
	a.system.Stop()
	a.hub.Close()
	a.bus.Wait()

	var errs []error
	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	if err := a.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	return errors.Join(errs...)
}

// run blocks until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	if err := a.wire(ctx); err != nil {
		return err
	}

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	if len(a.dispatcher.ListChannels()) > 0 {
		go a.dispatcher.SendSystemNotification(ctx, "startup", "market sentinel started", eventmodels.SeverityLow)
	}

	log.Infof("operator api listening on %s", a.cfg.HTTP.Addr)
	serveErr := a.server.ListenAndServe(ctx, a.cfg.HTTP.Addr)

	log.Info("shutting down")
	return errors.Join(serveErr, a.shutdown())
}

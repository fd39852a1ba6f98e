package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jiaming2012/market-sentinel/src/collectors"
	"github.com/jiaming2012/market-sentinel/src/eventcache"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/store"
)

type IngestService interface {
	Status() eventmodels.IngestStatus
	Cache() *eventcache.Cache
}

type AlertService interface {
	ListActiveAlerts(ctx context.Context, limit int) ([]*eventmodels.Alert, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]*eventmodels.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID, by, notes string) (bool, error)
	ListRules(ctx context.Context) ([]*eventmodels.AlertRule, error)
}

type ChannelService interface {
	ListChannels() []string
	TestChannel(ctx context.Context, name string) (bool, error)
}

type HealthService interface {
	Check() eventmodels.HealthReport
}

// Deps are the services behind the operator surface. Hub and Reports are optional.
type Deps struct {
	Ingestion IngestService
	Alerts    AlertService
	Channels  ChannelService
	Health    HealthService
	Recorder  RequestRecorder
	Hub       http.Handler
	Reports   collectors.ReportSource
}

type Server struct {
	deps    Deps
	router  *mux.Router
	decoder *schema.Decoder
	now     func() time.Time
}

func NewServer(deps Deps) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:    deps,
		router:  mux.NewRouter(),
		decoder: decoder,
		now:     time.Now,
	}

	s.router.Use(recoverPanics, recordRequests(deps.Recorder))
	s.routes()
	return s
}

// handleFunc registers f and tags its spans with the route pattern.
func (s *Server) handleFunc(pattern string, f func(http.ResponseWriter, *http.Request), methods ...string) {
	handler := otelhttp.WithRouteTag(pattern, http.HandlerFunc(f))
	s.router.Handle(pattern, handler).Methods(methods...)
}

func (s *Server) routes() {
	s.handleFunc("/health", s.handleHealth, http.MethodGet)
	s.handleFunc("/sources", s.handleSources, http.MethodGet)
	s.handleFunc("/cache", s.handleCacheStats, http.MethodGet)
	s.handleFunc("/cache/{key:.+}", s.handleCache, http.MethodGet)
	s.handleFunc("/alerts", s.handleAlerts, http.MethodGet)
	s.handleFunc("/alerts/{id}/resolve", s.handleResolve, http.MethodPost)
	s.handleFunc("/rules", s.handleRules, http.MethodGet)
	s.handleFunc("/channels", s.handleChannels, http.MethodGet)
	s.handleFunc("/channels/{name}/test", s.handleTestChannel, http.MethodPost)

	if s.deps.Reports != nil {
		s.handleFunc("/report", s.handleReport, http.MethodGet)
	}

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if s.deps.Hub != nil {
		s.router.Handle("/ws", s.deps.Hub).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped with HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "sentinel-api")
}

// ListenAndServe blocks until ctx is cancelled, then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("Server.ListenAndServe: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("Server.ListenAndServe: shutdown: %w", err)
	}

	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/collectors"
	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/store"
)

const (
	defaultCacheCount = 10
	maxCacheCount     = 1000
)

type cacheQuery struct {
	Count int `schema:"count"`
}

type alertsQuery struct {
	Limit    int    `schema:"limit"`
	Status   string `schema:"status"`
	Severity string `schema:"severity"`
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Check()

	status := http.StatusOK
	if report.Status == eventmodels.HealthCritical {
		status = http.StatusServiceUnavailable
	}

	if err := setResponseWithStatus(status, report, w); err != nil {
		log.Errorf("handleHealth: %v", err)
	}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if err := setResponse(s.deps.Ingestion.Status(), w); err != nil {
		log.Errorf("handleSources: %v", err)
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"keys": s.deps.Ingestion.Cache().Stats(),
	}

	if err := setResponse(response, w); err != nil {
		log.Errorf("handleCacheStats: %v", err)
	}
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	var query cacheQuery
	if err := s.decoder.Decode(&query, r.URL.Query()); err != nil {
		setErrorResponse("handleCache: invalid query", http.StatusBadRequest, err, w)
		return
	}

	count := query.Count
	if count <= 0 {
		count = defaultCacheCount
	}
	if count > maxCacheCount {
		count = maxCacheCount
	}

	key := mux.Vars(r)["key"]
	events := s.deps.Ingestion.Cache().GetLatest(key, count)

	response := map[string]interface{}{
		"key":    key,
		"count":  len(events),
		"events": events,
	}

	if err := setResponse(response, w); err != nil {
		log.Errorf("handleCache: %v", err)
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var query alertsQuery
	if err := s.decoder.Decode(&query, r.URL.Query()); err != nil {
		setErrorResponse("handleAlerts: invalid query", http.StatusBadRequest, err, w)
		return
	}

	alerts, webErr := s.listAlerts(r.Context(), query)
	if webErr != nil {
		setWebErrorResponse("handleAlerts", webErr, w)
		return
	}

	response := map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	}

	if err := setResponse(response, w); err != nil {
		log.Errorf("handleAlerts: %v", err)
	}
}

func (s *Server) listAlerts(ctx context.Context, query alertsQuery) ([]*eventmodels.Alert, *eventmodels.WebError) {
	severity := eventmodels.Severity(query.Severity)
	if severity != "" && !severity.Valid() {
		return nil, eventmodels.NewWebError(http.StatusBadRequest, "invalid severity", fmt.Errorf("unknown severity %q", query.Severity))
	}

	if (query.Status == "" || query.Status == string(eventmodels.AlertStatusActive)) && severity == "" {
		alerts, err := s.deps.Alerts.ListActiveAlerts(ctx, query.Limit)
		if err != nil {
			return nil, eventmodels.NewWebError(http.StatusInternalServerError, "failed to list alerts", err)
		}
		return alerts, nil
	}

	filter := store.AlertFilter{Severity: severity, Limit: query.Limit}
	switch query.Status {
	case "", string(eventmodels.AlertStatusActive):
		filter.Status = eventmodels.AlertStatusActive
	case string(eventmodels.AlertStatusResolved):
		filter.Status = eventmodels.AlertStatusResolved
	case "all":
	default:
		return nil, eventmodels.NewWebError(http.StatusBadRequest, "invalid status", fmt.Errorf("unknown status %q", query.Status))
	}

	alerts, err := s.deps.Alerts.ListAlerts(ctx, filter)
	if err != nil {
		return nil, eventmodels.NewWebError(http.StatusInternalServerError, "failed to list alerts", err)
	}

	return alerts, nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		setErrorResponse("handleResolve: invalid alert id", http.StatusBadRequest, err, w)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		setErrorResponse("handleResolve: invalid body", http.StatusBadRequest, err, w)
		return
	}

	if req.ResolvedBy == "" {
		req.ResolvedBy = "api"
	}

	resolved, err := s.deps.Alerts.Resolve(r.Context(), id, req.ResolvedBy, req.Notes)
	if err != nil {
		if errors.Is(err, eventmodels.ErrAlertNotFound) {
			setErrorResponse("handleResolve: alert not found", http.StatusNotFound, err, w)
			return
		}

		setErrorResponse("handleResolve: failed to resolve alert", http.StatusInternalServerError, err, w)
		return
	}

	if !resolved {
		setErrorResponse("handleResolve: alert already resolved", http.StatusConflict, fmt.Errorf("alert %s is not active", id), w)
		return
	}

	if err := setResponse(map[string]interface{}{"id": id, "resolved": true}, w); err != nil {
		log.Errorf("handleResolve: %v", err)
	}
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Alerts.ListRules(r.Context())
	if err != nil {
		setErrorResponse("handleRules: failed to list rules", http.StatusInternalServerError, err, w)
		return
	}

	if err := setResponse(map[string]interface{}{"rules": rules}, w); err != nil {
		log.Errorf("handleRules: %v", err)
	}
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if err := setResponse(map[string]interface{}{"channels": s.deps.Channels.ListChannels()}, w); err != nil {
		log.Errorf("handleChannels: %v", err)
	}
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	sent, err := s.deps.Channels.TestChannel(r.Context(), name)
	if errors.Is(err, eventmodels.ErrUnknownChannel) {
		setErrorResponse("handleTestChannel: unknown channel", http.StatusNotFound, err, w)
		return
	}

	response := map[string]interface{}{
		"channel": name,
		"sent":    sent,
	}

	status := http.StatusOK
	if err != nil {
		response["error"] = err.Error()
		status = http.StatusBadGateway
	}

	if err := setResponseWithStatus(status, response, w); err != nil {
		log.Errorf("handleTestChannel: %v", err)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	report, err := collectors.BuildReport(ctx, s.deps.Reports, s.now())
	if err != nil {
		setErrorResponse("handleReport: failed to build report", http.StatusInternalServerError, err, w)
		return
	}

	if err := setResponse(report, w); err != nil {
		log.Errorf("handleReport: %v", err)
	}
}

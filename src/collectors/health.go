package collectors

import (
	"fmt"
	"time"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type Thresholds struct {
	CPUWarning       float64
	CPUCritical      float64
	MemoryWarning    float64
	MemoryCritical   float64
	DiskWarning      float64
	DiskCritical     float64
	ErrorRateWarning float64
	ErrorRateCrit    float64
	ResponseTimeMs   float64
	SlowQueryRate    float64
	StaleAfter       time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarning:       80,
		CPUCritical:      90,
		MemoryWarning:    85,
		MemoryCritical:   95,
		DiskWarning:      90,
		DiskCritical:     95,
		ErrorRateWarning: 0.10,
		ErrorRateCrit:    0.20,
		ResponseTimeMs:   1000,
		SlowQueryRate:    0.10,
		StaleAfter:       10 * time.Minute,
	}
}

// StatusProvider reports ingestion status.
type StatusProvider interface {
	Status() eventmodels.IngestStatus
}

// HealthChecker aggregates the collectors and ingestion status into one
// report. The overall status is the worst component status.
type HealthChecker struct {
	system     *SystemCollector
	app        *ApplicationCollector
	ingestion  StatusProvider
	thresholds Thresholds
	now        func() time.Time
}

func NewHealthChecker(system *SystemCollector, app *ApplicationCollector, ingestion StatusProvider, thresholds Thresholds) *HealthChecker {
	return &HealthChecker{
		system:     system,
		app:        app,
		ingestion:  ingestion,
		thresholds: thresholds,
		now:        time.Now,
	}
}

func (h *HealthChecker) Check() eventmodels.HealthReport {
	report := eventmodels.HealthReport{
		Status:     eventmodels.HealthHealthy,
		Components: map[string]eventmodels.ComponentHealth{},
		Issues:     []string{},
		Timestamp:  h.now().UTC(),
	}

	add := func(name string, c eventmodels.ComponentHealth) {
		report.Components[name] = c
		report.Status = report.Status.Worse(c.Status)
		for _, issue := range c.Issues {
			report.Issues = append(report.Issues, fmt.Sprintf("%s: %s", name, issue))
		}
	}

	if h.system != nil {
		add("system", h.checkSystem())
	}
	if h.app != nil {
		add("application", h.checkApplication())
	}
	if h.ingestion != nil {
		add("data_sources", h.checkIngestion())
	}

	return report
}

func level(value, warning, critical float64) eventmodels.HealthStatus {
	switch {
	case value >= critical:
		return eventmodels.HealthCritical
	case value > warning:
		return eventmodels.HealthWarning
	}
	return eventmodels.HealthHealthy
}

func (h *HealthChecker) checkSystem() eventmodels.ComponentHealth {
	c := eventmodels.ComponentHealth{Status: eventmodels.HealthHealthy, Issues: []string{}}

	snap, ok := h.system.Latest()
	if !ok {
		c.Status = eventmodels.HealthWarning
		c.Issues = append(c.Issues, "no system metrics collected yet")
		return c
	}

	t := h.thresholds
	gauges := []struct {
		label             string
		value             float64
		warning, critical float64
	}{
		{"cpu usage", snap.CPUUsage, t.CPUWarning, t.CPUCritical},
		{"memory usage", snap.MemoryUsage, t.MemoryWarning, t.MemoryCritical},
		{"disk usage", snap.DiskUsage, t.DiskWarning, t.DiskCritical},
	}

	for _, g := range gauges {
		if s := level(g.value, g.warning, g.critical); s != eventmodels.HealthHealthy {
			c.Status = c.Status.Worse(s)
			c.Issues = append(c.Issues, fmt.Sprintf("%s high: %.1f%%", g.label, g.value))
		}
	}

	c.Details = map[string]interface{}{
		"cpu_usage":           snap.CPUUsage,
		"memory_usage":        snap.MemoryUsage,
		"disk_usage":          snap.DiskUsage,
		"available_memory_gb": snap.MemoryAvailable / (1 << 30),
		"available_disk_gb":   snap.DiskFree / (1 << 30),
	}
	return c
}

func (h *HealthChecker) checkApplication() eventmodels.ComponentHealth {
	c := eventmodels.ComponentHealth{Status: eventmodels.HealthHealthy, Issues: []string{}}

	snap, flushedAt, ok := h.app.LastFlush()
	if !ok {
		snap = h.app.Snapshot()
		flushedAt = h.now()
	}

	t := h.thresholds
	if snap.APIRequestsTotal > 0 {
		rate := snap.APIRequestsError / snap.APIRequestsTotal
		if s := level(rate, t.ErrorRateWarning, t.ErrorRateCrit); s != eventmodels.HealthHealthy {
			c.Status = c.Status.Worse(s)
			c.Issues = append(c.Issues, fmt.Sprintf("api error rate high: %.1f%%", rate*100))
		}
	}

	if snap.APIResponseTimeAvg > t.ResponseTimeMs {
		c.Status = c.Status.Worse(eventmodels.HealthWarning)
		c.Issues = append(c.Issues, fmt.Sprintf("api response time slow: %.0fms", snap.APIResponseTimeAvg))
	}

	if snap.DBQueriesTotal > 0 && snap.DBQueriesSlow/snap.DBQueriesTotal > t.SlowQueryRate {
		c.Status = c.Status.Worse(eventmodels.HealthWarning)
		c.Issues = append(c.Issues, fmt.Sprintf("slow query rate high: %.1f%%", snap.DBQueriesSlow/snap.DBQueriesTotal*100))
	}

	if age := h.now().Sub(flushedAt); age > t.StaleAfter {
		c.Status = c.Status.Worse(eventmodels.HealthWarning)
		c.Issues = append(c.Issues, fmt.Sprintf("application metrics stale: last flush %s ago", age.Round(time.Second)))
	}

	c.Details = map[string]interface{}{
		"api_requests_total":    snap.APIRequestsTotal,
		"api_response_time_avg": snap.APIResponseTimeAvg,
		"db_queries_total":      snap.DBQueriesTotal,
		"uptime_seconds":        h.app.Uptime().Seconds(),
	}
	return c
}

func (h *HealthChecker) checkIngestion() eventmodels.ComponentHealth {
	c := eventmodels.ComponentHealth{Status: eventmodels.HealthHealthy, Issues: []string{}}

	status := h.ingestion.Status()
	if !status.Running {
		c.Status = eventmodels.HealthWarning
		c.Issues = append(c.Issues, "ingestion is not running")
	}

	if len(status.Issues) > 0 {
		c.Status = c.Status.Worse(eventmodels.HealthWarning)
		c.Issues = append(c.Issues, status.Issues...)
	}

	running := 0
	for _, s := range status.Sources {
		if s.Running {
			running++
		}
	}

	c.Details = map[string]interface{}{
		"sources":         len(status.Sources),
		"running_sources": running,
	}
	return c
}

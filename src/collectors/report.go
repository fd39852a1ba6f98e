package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/store"
)

type ReportSource interface {
	ListMetricSamples(ctx context.Context, name string, since time.Time) ([]eventmodels.MetricSample, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]*eventmodels.Alert, error)
}

type DailyReport struct {
	From                time.Time                    `json:"from"`
	To                  time.Time                    `json:"to"`
	SystemSamples       int                          `json:"system_samples"`
	ApplicationSamples  int                          `json:"application_samples"`
	AvgCPUUsage         float64                      `json:"avg_cpu_usage"`
	AvgMemoryUsage      float64                      `json:"avg_memory_usage"`
	AvgDiskUsage        float64                      `json:"avg_disk_usage"`
	TotalAPIRequests    float64                      `json:"total_api_requests"`
	TotalAPIErrors      float64                      `json:"total_api_errors"`
	AvgResponseTimeMs   float64                      `json:"avg_response_time_ms"`
	TotalEventsIngested float64                      `json:"total_events_ingested"`
	AlertsBySeverity    map[eventmodels.Severity]int `json:"alerts_by_severity"`
}

// BuildReport summarises the 24 hours ending at now.
func BuildReport(ctx context.Context, src ReportSource, now time.Time) (*DailyReport, error) {
	from := now.Add(-24 * time.Hour)
	report := &DailyReport{
		From:             from,
		To:               now,
		AlertsBySeverity: map[eventmodels.Severity]int{},
	}

	load := func(name string) (stats.Float64Data, error) {
		samples, err := src.ListMetricSamples(ctx, name, from)
		if err != nil {
			return nil, fmt.Errorf("BuildReport: %s: %w", name, err)
		}

		values := make(stats.Float64Data, 0, len(samples))
		for _, s := range samples {
			if s.Timestamp.After(now) {
				continue
			}
			values = append(values, s.Value)
		}
		return values, nil
	}

	cpu, err := load("system.cpu_usage")
	if err != nil {
		return nil, err
	}
	memory, err := load("system.memory_usage")
	if err != nil {
		return nil, err
	}
	disk, err := load("system.disk_usage")
	if err != nil {
		return nil, err
	}

	report.SystemSamples = len(cpu)
	report.AvgCPUUsage = mean(cpu)
	report.AvgMemoryUsage = mean(memory)
	report.AvgDiskUsage = mean(disk)

	requests, err := load("app.api_requests_total")
	if err != nil {
		return nil, err
	}
	apiErrors, err := load("app.api_requests_error")
	if err != nil {
		return nil, err
	}
	responseTimes, err := load("app.api_response_time_avg")
	if err != nil {
		return nil, err
	}
	ingested, err := load("app.events_ingested")
	if err != nil {
		return nil, err
	}

	report.ApplicationSamples = len(requests)
	report.TotalAPIRequests = sum(requests)
	report.TotalAPIErrors = sum(apiErrors)
	report.TotalEventsIngested = sum(ingested)
	report.AvgResponseTimeMs = mean(responseTimes)

	alerts, err := src.ListAlerts(ctx, store.AlertFilter{Since: from})
	if err != nil {
		return nil, fmt.Errorf("BuildReport: alerts: %w", err)
	}
	for _, a := range alerts {
		if a.TriggeredAt.After(now) {
			continue
		}
		report.AlertsBySeverity[a.Severity]++
	}

	return report, nil
}

func sum(values stats.Float64Data) float64 {
	if len(values) == 0 {
		return 0
	}

	total, err := stats.Sum(values)
	if err != nil {
		return 0
	}
	return total
}

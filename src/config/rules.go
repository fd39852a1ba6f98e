package config

import "github.com/jiaming2012/market-sentinel/src/eventmodels"

// DefaultRules are seeded when the config file does not list any.
func DefaultRules() []eventmodels.AlertRule {
	return []eventmodels.AlertRule{
		{
			Name:            "high_cpu_usage",
			Description:     "CPU usage above 80%",
			Category:        "system",
			MetricName:      "system.cpu_usage",
			Operator:        eventmodels.OperatorGreaterThan,
			Threshold:       80,
			Severity:        eventmodels.SeverityHigh,
			IsActive:        true,
			CooldownMinutes: 30,
		},
		{
			Name:            "high_memory_usage",
			Description:     "Memory usage above 85%",
			Category:        "system",
			MetricName:      "system.memory_usage",
			Operator:        eventmodels.OperatorGreaterThan,
			Threshold:       85,
			Severity:        eventmodels.SeverityHigh,
			IsActive:        true,
			CooldownMinutes: 30,
		},
		{
			Name:            "disk_almost_full",
			Description:     "Disk usage above 90%",
			Category:        "system",
			MetricName:      "system.disk_usage",
			Operator:        eventmodels.OperatorGreaterThan,
			Threshold:       90,
			Severity:        eventmodels.SeverityCritical,
			IsActive:        true,
			CooldownMinutes: 60,
		},
		{
			Name:            "slow_api_responses",
			Description:     "API p95 response time above 1s",
			Category:        "application",
			MetricName:      "app.api_response_time_p95",
			Operator:        eventmodels.OperatorGreaterThan,
			Threshold:       1000,
			Severity:        eventmodels.SeverityMedium,
			IsActive:        true,
			CooldownMinutes: 60,
		},
		{
			Name:            "api_errors",
			Description:     "API errors in the last flush window",
			Category:        "application",
			MetricName:      "app.api_requests_error",
			Operator:        eventmodels.OperatorGreaterThan,
			Threshold:       50,
			Severity:        eventmodels.SeverityMedium,
			IsActive:        true,
			CooldownMinutes: 60,
		},
	}
}

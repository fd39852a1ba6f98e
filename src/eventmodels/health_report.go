package eventmodels

import "time"

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

func (s HealthStatus) rank() int {
	switch s {
	case HealthWarning:
		return 1
	case HealthCritical:
		return 2
	}

	return 0
}

// Worse returns whichever status is more severe.
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if other.rank() > s.rank() {
		return other
	}

	return s
}

type ComponentHealth struct {
	Status  HealthStatus           `json:"status"`
	Issues  []string               `json:"issues"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Issues     []string                   `json:"issues"`
	Timestamp  time.Time                  `json:"timestamp"`
}

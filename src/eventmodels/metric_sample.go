package eventmodels

import (
	"strings"
	"time"
)

const (
	SystemNamespace      = "system"
	ApplicationNamespace = "app"
)

type MetricSample struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Name      string    `gorm:"index:idx_metric_name_ts,priority:1;not null" json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `gorm:"index:idx_metric_name_ts,priority:2;index" json:"timestamp"`
}

func NewMetricSample(namespace, field string, value float64, ts time.Time) MetricSample {
	return MetricSample{
		Name:      namespace + "." + field,
		Value:     value,
		Timestamp: ts,
	}
}

func (m MetricSample) Namespace() string {
	if i := strings.IndexByte(m.Name, '.'); i > 0 {
		return m.Name[:i]
	}

	return ""
}

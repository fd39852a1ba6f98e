package eventmodels

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert is one triggered instance of an AlertRule.
type Alert struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID            uuid.UUID   `gorm:"type:uuid;index" json:"rule_id"`
	Title             string      `json:"title"`
	Message           string      `json:"message"`
	Severity          Severity    `gorm:"size:16;index" json:"severity"`
	MetricName        string      `json:"metric_name"`
	MetricValue       float64     `json:"metric_value"`
	Threshold         float64     `json:"threshold"`
	Status            AlertStatus `gorm:"size:16;index" json:"status"`
	NotificationSent  bool        `json:"notification_sent"`
	NotificationError string      `json:"notification_error,omitempty"`
	TriggeredAt       time.Time   `gorm:"index" json:"triggered_at"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy        string      `json:"resolved_by,omitempty"`
	ResolutionNotes   string      `json:"resolution_notes,omitempty"`
}

func NewAlert(rule *AlertRule, value float64, triggeredAt time.Time) *Alert {
	description := rule.Description
	if description == "" {
		description = rule.Name
	}

	return &Alert{
		ID:          uuid.New(),
		RuleID:      rule.ID,
		Title:       fmt.Sprintf("Alert: %s", rule.Name),
		Message:     fmt.Sprintf("%s - value: %v, threshold: %v", description, value, rule.Threshold),
		Severity:    rule.Severity,
		MetricName:  rule.MetricName,
		MetricValue: value,
		Threshold:   rule.Threshold,
		Status:      AlertStatusActive,
		TriggeredAt: triggeredAt,
	}
}

func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusActive
}

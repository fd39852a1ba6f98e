package eventmodels

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DefaultCooldownMinutes = 60

type AlertRule struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id" yaml:"-"`
	Name                 string     `gorm:"uniqueIndex;not null" json:"name" yaml:"name"`
	Description          string     `json:"description" yaml:"description"`
	Category             string     `json:"category" yaml:"category"`
	MetricName           string     `gorm:"index;not null" json:"metric_name" yaml:"metric_name"`
	Operator             Operator   `gorm:"size:2;not null" json:"operator" yaml:"operator"`
	Threshold            float64    `json:"threshold" yaml:"threshold"`
	Severity             Severity   `gorm:"size:16;not null" json:"severity" yaml:"severity"`
	IsActive             bool       `gorm:"index" json:"is_active" yaml:"is_active"`
	NotificationChannels []string   `gorm:"serializer:json" json:"notification_channels" yaml:"notification_channels"`
	CooldownMinutes      int        `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	TriggerCount         int        `json:"trigger_count" yaml:"-"`
	LastTriggered        *time.Time `json:"last_triggered,omitempty" yaml:"-"`
	CreatedAt            time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt            time.Time  `json:"updated_at" yaml:"-"`
}

func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("AlertRule.Validate: missing name: %w", ErrConfig)
	}

	if r.MetricName == "" {
		return fmt.Errorf("AlertRule.Validate: rule %s: missing metric name: %w", r.Name, ErrConfig)
	}

	if _, err := r.Operator.Evaluate(0, 0); err != nil {
		return fmt.Errorf("AlertRule.Validate: rule %s: %w", r.Name, err)
	}

	if !r.Severity.Valid() {
		return fmt.Errorf("AlertRule.Validate: rule %s: invalid severity %q: %w", r.Name, r.Severity, ErrConfig)
	}

	if r.CooldownMinutes < 0 {
		return fmt.Errorf("AlertRule.Validate: rule %s: negative cooldown: %w", r.Name, ErrConfig)
	}

	return nil
}

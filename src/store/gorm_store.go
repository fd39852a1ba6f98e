package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type GormStore struct {
	db *gorm.DB
}

// InitPostgresWithUrl opens a postgres connection and migrates the schema.
func InitPostgresWithUrl(url string, l gormlogger.Interface) (*GormStore, error) {
	if l == nil {
		l = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: l,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&eventmodels.AlertRule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.AutoMigrate(&eventmodels.Alert{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.AutoMigrate(&eventmodels.MetricSample{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateAlert(ctx context.Context, alert *eventmodels.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("GormStore.CreateAlert: %w", err)
	}
	return nil
}

func (s *GormStore) GetAlert(ctx context.Context, id uuid.UUID) (*eventmodels.Alert, error) {
	var alert eventmodels.Alert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("GormStore.GetAlert: %s: %w", id, eventmodels.ErrAlertNotFound)
		}
		return nil, fmt.Errorf("GormStore.GetAlert: %w", err)
	}
	return &alert, nil
}

func (s *GormStore) UpdateAlert(ctx context.Context, alert *eventmodels.Alert) error {
	if err := s.db.WithContext(ctx).Save(alert).Error; err != nil {
		return fmt.Errorf("GormStore.UpdateAlert: %w", err)
	}
	return nil
}

func (s *GormStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*eventmodels.Alert, error) {
	q := s.db.WithContext(ctx).Model(&eventmodels.Alert{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}
	if filter.RuleID != nil {
		q = q.Where("rule_id = ?", *filter.RuleID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("triggered_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var alerts []*eventmodels.Alert
	if err := q.Order("triggered_at desc").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("GormStore.ListAlerts: %w", err)
	}
	return alerts, nil
}

func (s *GormStore) SaveRule(ctx context.Context, rule *eventmodels.AlertRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("GormStore.SaveRule: %w", err)
	}
	return nil
}

func (s *GormStore) GetRule(ctx context.Context, id uuid.UUID) (*eventmodels.AlertRule, error) {
	var rule eventmodels.AlertRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("GormStore.GetRule: %s: %w", id, eventmodels.ErrRuleNotFound)
		}
		return nil, fmt.Errorf("GormStore.GetRule: %w", err)
	}
	return &rule, nil
}

func (s *GormStore) GetRuleByName(ctx context.Context, name string) (*eventmodels.AlertRule, error) {
	var rule eventmodels.AlertRule
	if err := s.db.WithContext(ctx).First(&rule, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("GormStore.GetRuleByName: %s: %w", name, eventmodels.ErrRuleNotFound)
		}
		return nil, fmt.Errorf("GormStore.GetRuleByName: %w", err)
	}
	return &rule, nil
}

func (s *GormStore) ListRules(ctx context.Context, activeOnly bool) ([]*eventmodels.AlertRule, error) {
	q := s.db.WithContext(ctx).Model(&eventmodels.AlertRule{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var rules []*eventmodels.AlertRule
	if err := q.Order("name asc").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("GormStore.ListRules: %w", err)
	}
	return rules, nil
}

func (s *GormStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&eventmodels.AlertRule{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("GormStore.DeleteRule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("GormStore.DeleteRule: %s: %w", id, eventmodels.ErrRuleNotFound)
	}
	return nil
}

func (s *GormStore) SaveMetricSamples(ctx context.Context, samples []eventmodels.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).CreateInBatches(samples, 100).Error; err != nil {
		return fmt.Errorf("GormStore.SaveMetricSamples: %w", err)
	}
	return nil
}

func (s *GormStore) LatestMetricValue(ctx context.Context, name string) (eventmodels.MetricSample, error) {
	var sample eventmodels.MetricSample
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Order("timestamp desc").
		First(&sample).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sample, fmt.Errorf("GormStore.LatestMetricValue: %s: %w", name, eventmodels.ErrMetricNotFound)
		}
		return sample, fmt.Errorf("GormStore.LatestMetricValue: %w", err)
	}
	return sample, nil
}

func (s *GormStore) ListMetricSamples(ctx context.Context, name string, since time.Time) ([]eventmodels.MetricSample, error) {
	var samples []eventmodels.MetricSample
	err := s.db.WithContext(ctx).
		Where("name = ? AND timestamp >= ?", name, since).
		Order("timestamp asc").
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("GormStore.ListMetricSamples: %w", err)
	}
	return samples, nil
}

func (s *GormStore) DeleteMetricSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&eventmodels.MetricSample{})
	if res.Error != nil {
		return 0, fmt.Errorf("GormStore.DeleteMetricSamplesBefore: %w", res.Error)
	}
	return res.RowsAffected, nil
}

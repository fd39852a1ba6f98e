package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/eventsources"
	"github.com/jiaming2012/market-sentinel/src/notifier"
)

type Config struct {
	HTTP          HTTPConfig                   `yaml:"http"`
	Logging       LoggingConfig                `yaml:"logging"`
	Database      DatabaseConfig               `yaml:"database"`
	Sources       SourcesConfig                `yaml:"sources"`
	Cache         map[eventmodels.Category]int `yaml:"cache"`
	Collectors    CollectorsConfig             `yaml:"collectors"`
	Alerts        AlertsConfig                 `yaml:"alerts"`
	Notifications notifier.Config              `yaml:"notifications"`
	Sinks         SinksConfig                  `yaml:"sinks"`
	Telemetry     TelemetryConfig              `yaml:"telemetry"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the store. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type SourcesConfig struct {
	Market MarketSourceConfig `yaml:"market"`
	News   NewsSourceConfig   `yaml:"news"`
	Whale  WhaleSourceConfig  `yaml:"whale"`
}

type MarketSourceConfig struct {
	Enabled              bool     `yaml:"enabled"`
	StreamURL            string   `yaml:"stream_url"`
	RestURL              string   `yaml:"rest_url"`
	Symbols              []string `yaml:"symbols"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	PolygonAPIKey        string   `yaml:"polygon_api_key"`
}

func (c MarketSourceConfig) SourceConfig() eventsources.MarketConfig {
	return eventsources.MarketConfig{
		StreamURL:            c.StreamURL,
		RestURL:              c.RestURL,
		Symbols:              c.Symbols,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
	}
}

type NewsSourceConfig struct {
	Enabled        bool                `yaml:"enabled"`
	Feeds          []eventsources.Feed `yaml:"feeds"`
	PollInterval   time.Duration       `yaml:"poll_interval"`
	ErrorWait      time.Duration       `yaml:"error_wait"`
	RelevanceFloor float64             `yaml:"relevance_floor"`
}

func (c NewsSourceConfig) SourceConfig() eventsources.NewsConfig {
	return eventsources.NewsConfig{
		Feeds:          c.Feeds,
		PollInterval:   c.PollInterval,
		ErrorWait:      c.ErrorWait,
		RelevanceFloor: c.RelevanceFloor,
	}
}

type WhaleSourceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	MinValueUSD    float64       `yaml:"min_value_usd"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	AddressBookCSV string        `yaml:"address_book_csv"`
}

// SourceConfig loads the optional address-book CSV on top of the built-in wallets.
func (c WhaleSourceConfig) SourceConfig() (eventsources.WhaleConfig, error) {
	book := eventsources.DefaultAddressBook()
	if c.AddressBookCSV != "" {
		if _, err := book.LoadCSV(c.AddressBookCSV); err != nil {
			return eventsources.WhaleConfig{}, fmt.Errorf("WhaleSourceConfig.SourceConfig: %w", err)
		}
	}

	return eventsources.WhaleConfig{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		MinValueUSD:  c.MinValueUSD,
		PollInterval: c.PollInterval,
		AddressBook:  book,
	}, nil
}

type CollectorsConfig struct {
	SystemInterval      time.Duration `yaml:"system_interval"`
	ApplicationInterval time.Duration `yaml:"application_interval"`
	RetentionDays       int           `yaml:"retention_days"`
	DiskPath            string        `yaml:"disk_path"`
}

type AlertsConfig struct {
	Interval time.Duration           `yaml:"interval"`
	Rules    []eventmodels.AlertRule `yaml:"rules"`
}

type SinksConfig struct {
	Kafka *KafkaSinkConfig `yaml:"kafka"`
	NATS  *NATSSinkConfig  `yaml:"nats"`
}

type KafkaSinkConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NATSSinkConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sources: SourcesConfig{
			Market: MarketSourceConfig{Enabled: true, Symbols: eventsources.DefaultMarketSymbols, MaxReconnectAttempts: 5},
			News:   NewsSourceConfig{Enabled: true, PollInterval: 300 * time.Second, ErrorWait: 60 * time.Second, RelevanceFloor: 0.3},
			Whale:  WhaleSourceConfig{Enabled: true, MinValueUSD: 1_000_000, PollInterval: 60 * time.Second},
		},
		Cache: map[eventmodels.Category]int{
			eventmodels.CategoryMarket:           1000,
			eventmodels.CategoryNews:             500,
			eventmodels.CategoryLargeTransaction: 200,
		},
		Collectors: CollectorsConfig{
			SystemInterval:      60 * time.Second,
			ApplicationInterval: 60 * time.Second,
			RetentionDays:       30,
			DiskPath:            "/",
		},
		Alerts:        AlertsConfig{Interval: 60 * time.Second, Rules: DefaultRules()},
		Notifications: notifier.Config{Timeout: 30 * time.Second},
		Telemetry:     TelemetryConfig{ServiceName: "market-sentinel"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: %v: %w", err, eventmodels.ErrConfig)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: %s: %v: %w", path, err, eventmodels.ErrConfig)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, fmt.Errorf("missing http.addr: %w", eventmodels.ErrConfig))
	}

	if c.Sinks.Kafka != nil && (len(c.Sinks.Kafka.Brokers) == 0 || c.Sinks.Kafka.Topic == "") {
		errs = append(errs, fmt.Errorf("kafka sink needs brokers and a topic: %w", eventmodels.ErrConfig))
	}

	if c.Sinks.NATS != nil && c.Sinks.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("nats sink needs a url: %w", eventmodels.ErrConfig))
	}

	seen := map[string]bool{}
	for i := range c.Alerts.Rules {
		rule := &c.Alerts.Rules[i]
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[rule.Name] {
			errs = append(errs, fmt.Errorf("duplicate alert rule %q: %w", rule.Name, eventmodels.ErrConfig))
		}
		seen[rule.Name] = true
	}

	return errors.Join(errs...)
}

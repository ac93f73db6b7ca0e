package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Carrier    CarrierConfig    `yaml:"carrier"`
	Origin     OriginConfig     `yaml:"origin"`
	Packaging  PackagingConfig  `yaml:"packaging"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Rates      RatesConfig      `yaml:"rates"`
	ShipBox    ShipBoxConfig    `yaml:"shipbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
	OrderPlacedTopicName   string `yaml:"order_placed_topic_name"`
	ConsumerGroup          string `yaml:"consumer_group"`
}

// Disabled reports whether no broker is configured.
func (k KafkaConfig) Disabled() bool { return k.Host == "" }

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Disabled() bool { return r.Host == "" }

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

type CarrierConfig struct {
	// Mode is "correios" or "fake".
	Mode         string `yaml:"mode"`
	Environment  string `yaml:"environment"`
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	PostageCard  string `yaml:"postage_card"`

	TimeoutSeconds      int `yaml:"timeout_seconds"`
	LabelTimeoutSeconds int `yaml:"label_timeout_seconds"`
	MaxRetries          int `yaml:"max_retries"`
	BatchConcurrency    int `yaml:"batch_concurrency"`

	PACServiceCode   string `yaml:"pac_service_code"`
	SEDEXServiceCode string `yaml:"sedex_service_code"`
	DefaultService   string `yaml:"default_service"`
}

type OriginConfig struct {
	Name         string `yaml:"name"`
	Street       string `yaml:"street"`
	Number       string `yaml:"number"`
	Complement   string `yaml:"complement"`
	Neighborhood string `yaml:"neighborhood"`
	City         string `yaml:"city"`
	State        string `yaml:"state"`
	PostalCode   string `yaml:"postal_code"`
	Document     string `yaml:"document"`
	Phone        string `yaml:"phone"`
	Email        string `yaml:"email"`
}

type PackagingConfig struct {
	FormatCode         string `yaml:"format_code"`
	HeightCm           int    `yaml:"height_cm"`
	WidthCm            int    `yaml:"width_cm"`
	LengthCm           int    `yaml:"length_cm"`
	ContentDescription string `yaml:"content_description"`
}

type ReconcilerConfig struct {
	Enabled                 *bool `yaml:"enabled"`
	IntervalMinutes         int   `yaml:"interval_minutes"`
	BatchSize               int   `yaml:"batch_size"`
	CarrierBatchesPerMinute int   `yaml:"carrier_batches_per_minute"`
}

func (r ReconcilerConfig) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

func (r ReconcilerConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

type RatesConfig struct {
	CacheTTLSeconds      int `yaml:"cache_ttl_seconds"`
	LiveTimeoutSeconds   int `yaml:"live_timeout_seconds"`
	LookupTimeoutSeconds int `yaml:"lookup_timeout_seconds"`
}

type ShipBoxConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	SwaggerPath string `yaml:"swagger_path"`
}

// secrets are read from the environment on top of the file.
type secrets struct {
	CarrierClientID     string `envconfig:"CARRIER_CLIENT_ID"`
	CarrierClientSecret string `envconfig:"CARRIER_CLIENT_SECRET"`
	CarrierPostageCard  string `envconfig:"CARRIER_POSTAGE_CARD"`
	DatabasePassword    string `envconfig:"DATABASE_PASSWORD"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() error {
	var s secrets
	if err := envconfig.Process("", &s); err != nil {
		return fmt.Errorf("failed to read env overrides: %w", err)
	}
	if s.CarrierClientID != "" {
		c.Carrier.ClientID = s.CarrierClientID
	}
	if s.CarrierClientSecret != "" {
		c.Carrier.ClientSecret = s.CarrierClientSecret
	}
	if s.CarrierPostageCard != "" {
		c.Carrier.PostageCard = s.CarrierPostageCard
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.Kafka.StatusChangedTopicName == "" {
		c.Kafka.StatusChangedTopicName = "shipment.status_changed"
	}
	if c.Kafka.OrderPlacedTopicName == "" {
		c.Kafka.OrderPlacedTopicName = "order.placed"
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "shipbox-worker"
	}

	if c.Carrier.Mode == "" {
		c.Carrier.Mode = "correios"
	}
	if c.Carrier.Environment == "" {
		c.Carrier.Environment = "staging"
	}
	if c.Carrier.TimeoutSeconds <= 0 {
		c.Carrier.TimeoutSeconds = 30
	}
	if c.Carrier.LabelTimeoutSeconds <= 0 {
		c.Carrier.LabelTimeoutSeconds = 60
	}
	if c.Carrier.MaxRetries <= 0 {
		c.Carrier.MaxRetries = 3
	}
	if c.Carrier.PACServiceCode == "" {
		c.Carrier.PACServiceCode = "03298"
	}
	if c.Carrier.SEDEXServiceCode == "" {
		c.Carrier.SEDEXServiceCode = "03220"
	}
	if c.Carrier.DefaultService == "" {
		c.Carrier.DefaultService = c.Carrier.PACServiceCode
	}

	if c.Packaging.FormatCode == "" {
		c.Packaging.FormatCode = "2"
	}
	if c.Packaging.HeightCm <= 0 {
		c.Packaging.HeightCm = 10
	}
	if c.Packaging.WidthCm <= 0 {
		c.Packaging.WidthCm = 15
	}
	if c.Packaging.LengthCm <= 0 {
		c.Packaging.LengthCm = 20
	}
	if c.Packaging.ContentDescription == "" {
		c.Packaging.ContentDescription = "Mercadorias diversas"
	}

	if c.Reconciler.IntervalMinutes <= 0 {
		c.Reconciler.IntervalMinutes = 60
	}
	if c.Reconciler.BatchSize <= 0 {
		c.Reconciler.BatchSize = 50
	}

	if c.Rates.CacheTTLSeconds <= 0 {
		c.Rates.CacheTTLSeconds = 30 * 60
	}
	if c.Rates.LiveTimeoutSeconds <= 0 {
		c.Rates.LiveTimeoutSeconds = 10
	}
	if c.Rates.LookupTimeoutSeconds <= 0 {
		c.Rates.LookupTimeoutSeconds = 3
	}

	if c.ShipBox.HTTPAddr == "" {
		c.ShipBox.HTTPAddr = ":8082"
	}
	if c.ShipBox.LogLevel == "" {
		c.ShipBox.LogLevel = "info"
	}
	if c.ShipBox.SwaggerPath == "" {
		c.ShipBox.SwaggerPath = "api/shipbox-worker.swagger.json"
	}
}

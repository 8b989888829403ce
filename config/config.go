package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Courier       CourierConfig       `yaml:"courier"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Database      DatabaseConfig      `yaml:"database"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Journal       JournalConfig       `yaml:"journal"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	WSURL          string `yaml:"ws_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Либо email/password, либо заранее выданный access_token.
	Email        string `yaml:"email"`
	Password     string `yaml:"password"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

type CourierConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	DefaultLatitude  float64 `yaml:"default_latitude"`
	DefaultLongitude float64 `yaml:"default_longitude"`
	DefaultRadiusKm  float64 `yaml:"default_radius_km"`
	// dev_mode: radius filter is skipped, as on a developer machine without geolocation.
	DevMode bool `yaml:"dev_mode"`

	AvailableSuccessBannerMs int `yaml:"available_success_banner_ms"`
	AvailableErrorBannerMs   int `yaml:"available_error_banner_ms"`
	ActiveBannerMs           int `yaml:"active_banner_ms"`

	DashboardCacheTTLSeconds int `yaml:"dashboard_cache_ttl_seconds"`
	MutationRateLimitPerMin  int `yaml:"mutation_rate_limit_per_minute"`
}

type NotificationsConfig struct {
	Enabled              *bool `yaml:"enabled"`
	ConnectTimeoutMs     int   `yaml:"connect_timeout_ms"`
	ReconnectIntervalMs  int   `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts int   `yaml:"max_reconnect_attempts"`
	MaxInboxPages        int   `yaml:"max_inbox_pages"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	ActionsTopicName string `yaml:"actions_topic_name"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type JournalConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
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

	return &config, nil
}

// PostgresDSN собирает строку подключения; sslmode по умолчанию disable.
func (c DatabaseConfig) PostgresDSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

func (c KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NotificationsEnabled is true unless explicitly switched off.
func (c NotificationsConfig) NotificationsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

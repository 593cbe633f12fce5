package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by all validation failures
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	NATS        NATSConfig        `yaml:"nats"`
	Remote      RemoteConfig      `yaml:"remote"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Scan        ScanConfig        `yaml:"scan"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig represents server identity
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents REST API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig represents the gateway SQLite database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig represents the telemetry broker configuration
type MQTTConfig struct {
	BrokerURL      string        `yaml:"broker_url"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Topic          string        `yaml:"topic"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// NATSConfig represents NATS configuration. An empty URL disables eventing.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// RemoteConfig represents the remote gateway the coordinator polls
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryCount     int           `yaml:"retry_count"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// CoordinatorConfig represents the adaptive scheduler configuration
type CoordinatorConfig struct {
	MinScanInterval             time.Duration `yaml:"min_scan_interval"`
	MaxScanInterval             time.Duration `yaml:"max_scan_interval"`
	AdaptiveEnabled             bool          `yaml:"adaptive_enabled"`
	FixedInterval               time.Duration `yaml:"fixed_interval"`
	QuietPollsPerDecay          int           `yaml:"quiet_polls_per_decay"`
	FailureBackoffFactor        float64       `yaml:"failure_backoff_factor"`
	ConsecutiveFailureThreshold int           `yaml:"consecutive_failure_threshold"`
	PriorityIdentifiers         []string      `yaml:"priority_identifiers"`
	SummaryFilter               string        `yaml:"summary_filter"`
}

// ScanConfig represents local scan invocation configuration
type ScanConfig struct {
	Command string        `yaml:"command"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("GATEWAY_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if broker := os.Getenv("MQTT_BROKER_URL"); broker != "" {
		c.MQTT.BrokerURL = broker
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if remote := os.Getenv("REMOTE_BASE_URL"); remote != "" {
		c.Remote.BaseURL = remote
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// applyDefaults fills zero values with working defaults
func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "gateway.db"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "sensors/+/data"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}

	if c.Remote.RequestTimeout == 0 {
		c.Remote.RequestTimeout = 10 * time.Second
	}
	if c.Remote.RetryCount == 0 {
		c.Remote.RetryCount = 3
	}
	if c.Remote.RetryDelay == 0 {
		c.Remote.RetryDelay = time.Second
	}
	if c.Remote.CacheTTL == 0 {
		c.Remote.CacheTTL = 5 * time.Second
	}

	if c.Coordinator.MinScanInterval == 0 {
		c.Coordinator.MinScanInterval = 30 * time.Second
	}
	if c.Coordinator.MaxScanInterval == 0 {
		c.Coordinator.MaxScanInterval = 5 * time.Minute
	}
	if c.Coordinator.QuietPollsPerDecay == 0 {
		c.Coordinator.QuietPollsPerDecay = 3
	}
	if c.Coordinator.FailureBackoffFactor == 0 {
		c.Coordinator.FailureBackoffFactor = 1.5
	}
	if c.Coordinator.ConsecutiveFailureThreshold == 0 {
		c.Coordinator.ConsecutiveFailureThreshold = 3
	}
	if c.Coordinator.FixedInterval == 0 {
		c.Coordinator.FixedInterval = c.Coordinator.MinScanInterval
	}

	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = 60 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Coordinator.MinScanInterval > c.Coordinator.MaxScanInterval {
		return fmt.Errorf("%w: min_scan_interval %s exceeds max_scan_interval %s",
			ErrInvalidConfig, c.Coordinator.MinScanInterval, c.Coordinator.MaxScanInterval)
	}

	if c.Coordinator.FailureBackoffFactor < 1 {
		return fmt.Errorf("%w: failure_backoff_factor must be >= 1, got %g",
			ErrInvalidConfig, c.Coordinator.FailureBackoffFactor)
	}

	// The cache must expire within one polling cycle or staleness could
	// mask real changes across polls.
	if c.Remote.CacheTTL >= c.Coordinator.MinScanInterval {
		return fmt.Errorf("%w: remote cache_ttl %s must be shorter than min_scan_interval %s",
			ErrInvalidConfig, c.Remote.CacheTTL, c.Coordinator.MinScanInterval)
	}

	if c.Remote.RetryCount < 1 {
		return fmt.Errorf("%w: remote retry_count must be >= 1, got %d",
			ErrInvalidConfig, c.Remote.RetryCount)
	}

	return nil
}

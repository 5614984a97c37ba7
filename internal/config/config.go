package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Hostname string `yaml:"hostname"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 30s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // default: 60s
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// GatewayProvider identifies an SMS gateway implementation. The set is
// closed; provider selection happens here, not by runtime string lookup.
type GatewayProvider string

const (
	ProviderSandbox   GatewayProvider = "sandbox"
	ProviderKavenegar GatewayProvider = "kavenegar"
	ProviderSMSIR     GatewayProvider = "smsir"
)

// GatewayConfig contains SMS gateway settings
type GatewayConfig struct {
	Provider     GatewayProvider `yaml:"provider"`
	APIKey       string          `yaml:"api_key"`
	SenderNumber string          `yaml:"sender_number"`
	BaseURL      string          `yaml:"base_url"` // override provider endpoint
	Timeout      time.Duration   `yaml:"timeout"`  // per-request timeout (default: 30s)

	// Sandbox provider settings
	FailureRate float64 `yaml:"failure_rate"` // 0.0 to 1.0, sandbox only
}

// DispatchConfig contains campaign dispatcher settings
type DispatchConfig struct {
	Workers     int           `yaml:"workers"`      // concurrent campaign dispatches (default: 4)
	SendTimeout time.Duration `yaml:"send_timeout"` // per-message gateway timeout (default: 30s)
	CostPerSMS  int64         `yaml:"cost_per_sms"` // Rials, for cost estimation (default: 500)
}

// ReconcileConfig contains delivery status reconciler settings
type ReconcileConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"` // cron spec (default: every 5 minutes)
	Lookback time.Duration `yaml:"lookback"` // how far back to poll sent reports (default: 24h)
}

// SchedulerConfig contains campaign scheduler settings
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec (default: every minute)
}

// RetentionConfig contains delivery report retention settings
type RetentionConfig struct {
	ReportMaxAge    time.Duration `yaml:"report_max_age"`   // delete terminal reports older than this (0 = keep forever)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // how often to run cleanup
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // default: :9090
	Path       string   `yaml:"path"`        // default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IPs/CIDRs allowed to scrape (empty = allow all)
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Server.Hostname = hostname
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/peyk/peyk.db"
	}

	if c.Gateway.Provider == "" {
		c.Gateway.Provider = ProviderSandbox
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}

	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.SendTimeout == 0 {
		c.Dispatch.SendTimeout = 30 * time.Second
	}
	if c.Dispatch.CostPerSMS <= 0 {
		c.Dispatch.CostPerSMS = 500
	}

	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = "*/5 * * * *"
	}
	if c.Reconcile.Lookback == 0 {
		c.Reconcile.Lookback = 24 * time.Hour
	}

	if c.Scheduler.Schedule == "" {
		c.Scheduler.Schedule = "* * * * *"
	}

	if c.Retention.CleanupInterval == 0 {
		c.Retention.CleanupInterval = time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case ProviderSandbox, ProviderKavenegar, ProviderSMSIR:
	default:
		return fmt.Errorf("unknown gateway provider: %q", c.Gateway.Provider)
	}

	if c.Gateway.Provider != ProviderSandbox {
		if c.Gateway.APIKey == "" {
			return fmt.Errorf("gateway.api_key is required for provider %q", c.Gateway.Provider)
		}
		if c.Gateway.SenderNumber == "" {
			return fmt.Errorf("gateway.sender_number is required for provider %q", c.Gateway.Provider)
		}
	}

	if c.Gateway.FailureRate < 0 || c.Gateway.FailureRate > 1 {
		return fmt.Errorf("gateway.failure_rate must be between 0 and 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	return nil
}

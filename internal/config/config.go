package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Browser       BrowserConfig       `yaml:"browser"`
	Logging       LoggingConfig       `yaml:"logging"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	SNMP          SNMPConfig          `yaml:"snmp"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	Advanced      AdvancedConfig      `yaml:"advanced"`
}

// ServerConfig contains the analysis HTTP endpoint settings
type ServerConfig struct {
	ListenAddress      string        `yaml:"listen_address" envconfig:"LISTEN_ADDRESS"`
	Port               int           `yaml:"port" envconfig:"PORT"`
	ReadHeaderTimeout  time.Duration `yaml:"read_header_timeout" envconfig:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" envconfig:"CORS_ALLOWED_ORIGINS"`
}

// BrowserConfig contains browser-specific settings
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" envconfig:"BROWSER_HEADLESS"`
	NoSandbox         bool          `yaml:"no_sandbox" envconfig:"BROWSER_NO_SANDBOX"`
	UserAgent         string        `yaml:"user_agent" envconfig:"BROWSER_USER_AGENT"`
	WindowWidth       int           `yaml:"window_width" envconfig:"BROWSER_WINDOW_WIDTH"`
	WindowHeight      int           `yaml:"window_height" envconfig:"BROWSER_WINDOW_HEIGHT"`
	DisableImages     bool          `yaml:"disable_images" envconfig:"BROWSER_DISABLE_IMAGES"`
	ExecPath          string        `yaml:"exec_path" envconfig:"BROWSER_EXEC_PATH"`
	ExtraFlags        []string      `yaml:"extra_flags" envconfig:"BROWSER_EXTRA_FLAGS"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" envconfig:"NAVIGATION_TIMEOUT"`
	IdleEvent         string        `yaml:"idle_event" envconfig:"BROWSER_IDLE_EVENT"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// ElasticsearchConfig contains Elasticsearch output settings
type ElasticsearchConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"ES_ENABLED"`
	Endpoint        string        `yaml:"endpoint" envconfig:"ES_ENDPOINT"`
	IndexPattern    string        `yaml:"index_pattern" envconfig:"ES_INDEX_PATTERN"`
	Username        string        `yaml:"username" envconfig:"ES_USERNAME"`
	Password        string        `yaml:"password" envconfig:"ES_PASSWORD"`
	APIKey          string        `yaml:"api_key" envconfig:"ES_API_KEY"`
	BulkSize        int           `yaml:"bulk_size" envconfig:"ES_BULK_SIZE"`
	FlushInterval   time.Duration `yaml:"flush_interval" envconfig:"ES_FLUSH_INTERVAL"`
	MaxRetries      int           `yaml:"max_retries" envconfig:"ES_MAX_RETRIES"`
	ConnectAttempts uint          `yaml:"connect_attempts" envconfig:"ES_CONNECT_ATTEMPTS"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" envconfig:"ES_RETRY_BACKOFF"`
	TLSSkipVerify   bool          `yaml:"tls_skip_verify" envconfig:"ES_TLS_SKIP_VERIFY"`
}

// SNMPConfig contains SNMP agent settings
type SNMPConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"SNMP_ENABLED"`
	Port          int    `yaml:"port" envconfig:"SNMP_PORT"`
	Community     string `yaml:"community" envconfig:"SNMP_COMMUNITY"`
	ListenAddress string `yaml:"listen_address" envconfig:"SNMP_LISTEN_ADDRESS"`
	EnterpriseOID string `yaml:"enterprise_oid" envconfig:"SNMP_ENTERPRISE_OID"`
	RecentSize    int    `yaml:"recent_size" envconfig:"SNMP_RECENT_SIZE"`
	MaxHosts      int    `yaml:"max_hosts" envconfig:"SNMP_MAX_HOSTS"`
}

// PrometheusConfig contains Prometheus exporter settings
type PrometheusConfig struct {
	Enabled          bool      `yaml:"enabled" envconfig:"PROM_ENABLED"`
	Port             int       `yaml:"port" envconfig:"PROM_PORT"`
	Path             string    `yaml:"path" envconfig:"PROM_PATH"`
	ListenAddress    string    `yaml:"listen_address" envconfig:"PROM_LISTEN_ADDRESS"`
	IncludeGoMetrics bool      `yaml:"include_go_metrics" envconfig:"PROM_INCLUDE_GO_METRICS"`
	LatencyBuckets   []float64 `yaml:"latency_buckets" envconfig:"PROM_LATENCY_BUCKETS"`
	MaxHosts         int       `yaml:"max_hosts" envconfig:"PROM_MAX_HOSTS"`
}

// AdvancedConfig contains operational settings
type AdvancedConfig struct {
	HealthCheckEnabled            bool   `yaml:"health_check_enabled" envconfig:"HEALTH_CHECK_ENABLED"`
	HealthCheckPort               int    `yaml:"health_check_port" envconfig:"HEALTH_CHECK_PORT"`
	HealthCheckPath               string `yaml:"health_check_path" envconfig:"HEALTH_CHECK_PATH"`
	HealthCheckListenAddress      string `yaml:"health_check_listen_address" envconfig:"HEALTH_CHECK_LISTEN_ADDRESS"`
	MaxConsecutiveStartupFailures int    `yaml:"max_consecutive_startup_failures" envconfig:"MAX_CONSECUTIVE_STARTUP_FAILURES"`
}

// Idle lifecycle events a navigation may wait for
const (
	IdleEventNetworkIdle       = "networkIdle"
	IdleEventNetworkAlmostIdle = "networkAlmostIdle"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:      "0.0.0.0",
			Port:               5000,
			ReadHeaderTimeout:  10 * time.Second,
			ShutdownTimeout:    30 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowWidth:       1920,
			WindowHeight:      1080,
			NavigationTimeout: 60 * time.Second,
			IdleEvent:         IdleEventNetworkIdle,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:         false,
			IndexPattern:    "page-performance-analyzer-%{+yyyy.MM.dd}",
			BulkSize:        50,
			FlushInterval:   10 * time.Second,
			MaxRetries:      3,
			ConnectAttempts: 3,
			RetryBackoff:    1 * time.Second,
		},
		SNMP: SNMPConfig{
			Enabled:       false,
			Port:          1161,
			Community:     "public",
			ListenAddress: "0.0.0.0",
			EnterpriseOID: ".1.3.6.1.4.1.99999",
			RecentSize:    20,
			MaxHosts:      100,
		},
		Prometheus: PrometheusConfig{
			Enabled:          true,
			Port:             9090,
			Path:             "/metrics",
			ListenAddress:    "0.0.0.0",
			IncludeGoMetrics: true,
			LatencyBuckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			MaxHosts:         100,
		},
		Advanced: AdvancedConfig{
			HealthCheckEnabled:            true,
			HealthCheckPort:               8080,
			HealthCheckPath:               "/health",
			HealthCheckListenAddress:      "0.0.0.0",
			MaxConsecutiveStartupFailures: 5,
		},
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if err := validatePort("PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("NAVIGATION_TIMEOUT must be greater than 0")
	}
	switch c.Browser.IdleEvent {
	case IdleEventNetworkIdle, IdleEventNetworkAlmostIdle:
	default:
		return fmt.Errorf("BROWSER_IDLE_EVENT must be %q or %q, got %q",
			IdleEventNetworkIdle, IdleEventNetworkAlmostIdle, c.Browser.IdleEvent)
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window size must be positive")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}
	if c.Elasticsearch.Enabled && c.Elasticsearch.Endpoint == "" {
		return fmt.Errorf("ES_ENDPOINT is required when ES_ENABLED is set")
	}
	if c.Prometheus.Enabled {
		if err := validatePort("PROM_PORT", c.Prometheus.Port); err != nil {
			return err
		}
		if c.Prometheus.MaxHosts < 1 {
			return fmt.Errorf("PROM_MAX_HOSTS must be at least 1, got %d", c.Prometheus.MaxHosts)
		}
	}
	if c.SNMP.Enabled {
		if err := validatePort("SNMP_PORT", c.SNMP.Port); err != nil {
			return err
		}
		if c.SNMP.MaxHosts < 1 {
			return fmt.Errorf("SNMP_MAX_HOSTS must be at least 1, got %d", c.SNMP.MaxHosts)
		}
	}
	if c.Advanced.HealthCheckEnabled {
		if err := validatePort("HEALTH_CHECK_PORT", c.Advanced.HealthCheckPort); err != nil {
			return err
		}
	}
	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file layered over the defaults,
// then applies environment overrides. An empty path skips the file.
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if configFile != "" {
		if err := loadFromYAML(configFile, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Only variables that are set override the current values.
func LoadFromEnv(cfg *Config) error {
	sections := []interface{}{
		&cfg.Server,
		&cfg.Browser,
		&cfg.Logging,
		&cfg.Elasticsearch,
		&cfg.SNMP,
		&cfg.Prometheus,
		&cfg.Advanced,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
	}
	return nil
}

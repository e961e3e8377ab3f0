package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Factorflow FactorflowConfig `yaml:"factorflow"`
	Server     ServerConfig     `yaml:"server"`
	Artemis    ArtemisConfig    `yaml:"artemis"`
	Coinbase   CoinbaseConfig   `yaml:"coinbase"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type FactorflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type ArtemisConfig struct {
	URL                  string        `yaml:"url"`
	APIKey               string        `yaml:"api_key"`
	BatchSize            int           `yaml:"batch_size"`
	MaxConcurrentBatches int           `yaml:"max_concurrent_batches"`
	Timeout              time.Duration `yaml:"timeout"`
}

type CoinbaseConfig struct {
	URL               string        `yaml:"url"`
	MaxDaysPerRequest int           `yaml:"max_days_per_request"`
	RequestDelay      time.Duration `yaml:"request_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	Retry             RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type StorageConfig struct {
	LogsDir string `yaml:"logs_dir"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and parses the yaml configuration at path, applies
// defaults for absent values and overrides secrets and endpoints from the
// environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Artemis: ArtemisConfig{
			URL:                  "https://api.artemis.xyz/v1",
			BatchSize:            5,
			MaxConcurrentBatches: 4,
			Timeout:              30 * time.Second,
		},
		Coinbase: CoinbaseConfig{
			URL:               "https://api.exchange.coinbase.com",
			MaxDaysPerRequest: 300,
			RequestDelay:      100 * time.Millisecond,
			Timeout:           30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   100 * time.Millisecond,
			},
		},
		Storage: StorageConfig{LogsDir: "factor_logs"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override settings from environment variables if available
	if v := os.Getenv("ARTEMIS_API_KEY"); v != "" {
		config.Artemis.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("ARTEMIS_API_URL"); v != "" {
		config.Artemis.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("COINBASE_API_URL"); v != "" {
		config.Coinbase.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("FACTOR_LOGS_DIR"); v != "" {
		config.Storage.LogsDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && port > 0 {
			config.Server.Address = fmt.Sprintf(":%d", port)
		}
	}
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	if config.Server.Address == "" {
		config.Server.Address = ":8000"
	}

	return &config, nil
}

// Validate checks bounds that would otherwise surface as confusing runtime
// failures deep inside the fetchers.
func (c *Config) Validate() error {
	if c.Artemis.BatchSize <= 0 {
		return fmt.Errorf("artemis batch_size must be positive, got %d", c.Artemis.BatchSize)
	}
	if c.Artemis.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("artemis max_concurrent_batches must be positive, got %d", c.Artemis.MaxConcurrentBatches)
	}
	if c.Coinbase.MaxDaysPerRequest <= 0 {
		return fmt.Errorf("coinbase max_days_per_request must be positive, got %d", c.Coinbase.MaxDaysPerRequest)
	}
	if c.Coinbase.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("coinbase retry max_attempts must be positive, got %d", c.Coinbase.Retry.MaxAttempts)
	}
	if strings.TrimSpace(c.Storage.LogsDir) == "" {
		return fmt.Errorf("storage logs_dir must not be empty")
	}
	return nil
}

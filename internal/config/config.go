package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueConfig    `yaml:"queue"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds ops API settings
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"DRIFTQ_HTTP_ADDR"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	DeadLetterPath string `yaml:"dead_letter_path" env:"DRIFTQ_DEAD_LETTER_PATH"`
}

// QueueConfig holds default retry settings for enqueued jobs
type QueueConfig struct {
	MaxRetries     int           `yaml:"max_retries" env:"DRIFTQ_MAX_RETRIES"`
	RetryDelayBase time.Duration `yaml:"retry_delay_base" env:"DRIFTQ_RETRY_DELAY_BASE"`
}

// ShutdownConfig holds drain settings
type ShutdownConfig struct {
	DrainTimeout time.Duration `yaml:"drain_timeout" env:"DRIFTQ_DRAIN_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AlertConfig holds dead letter alert settings
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"DRIFTQ_ALERT_WEBHOOK_URL"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"DRIFTQ_LOG_LEVEL"`
	Format string `yaml:"format"` // json or console
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
		},
		Storage: StorageConfig{
			DeadLetterPath: "./data/dead_letters.json",
		},
		Queue: QueueConfig{
			MaxRetries:     3,
			RetryDelayBase: 1 * time.Second,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: 30 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from file, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Use defaults if file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads config from file or returns default
func LoadOrDefault(path string) *Config {
	if path == "" {
		cfg := Default()
		if err := env.Parse(cfg); err != nil {
			fmt.Printf("Warning: failed to parse environment: %v\n", err)
		}
		return cfg
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: failed to load config: %v, using defaults\n", err)
		return Default()
	}

	return cfg
}

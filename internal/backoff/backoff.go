package backoff

import (
	"time"
)

// Config for linear backoff
type Config struct {
	BaseDelay time.Duration
}

// DefaultConfig returns default backoff configuration
func DefaultConfig() Config {
	return Config{
		BaseDelay: 1 * time.Second,
	}
}

// Calculate computes the backoff delay for a given attempt
// Formula: base * attempt
func Calculate(cfg Config, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	return cfg.BaseDelay * time.Duration(attempt)
}

// CalculateDefault calculates backoff with default config
func CalculateDefault(attempt int) time.Duration {
	return Calculate(DefaultConfig(), attempt)
}

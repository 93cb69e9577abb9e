package restbase

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries client settings loadable from the environment. Functional
// options remain the primary construction surface; Config exists for
// services that configure their clients through the process environment.
type Config struct {
	BaseAddress       string        `envconfig:"BASE_ADDRESS" required:"true"`
	Timeout           time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	BaseDelay         time.Duration `envconfig:"BASE_DELAY" default:"500ms"`
	DelayCap          time.Duration `envconfig:"DELAY_CAP" default:"10s"`
	BackoffMultiplier float64       `envconfig:"BACKOFF_MULTIPLIER" default:"2.0"`
	Jitter            bool          `envconfig:"JITTER" default:"true"`
	RetryableStatuses []int         `envconfig:"RETRYABLE_STATUSES"`
	UserAgent         string        `envconfig:"USER_AGENT"`
}

// LoadConfig reads configuration from environment variables with the given
// prefix. With prefix "RESTBASE", the base address comes from
// RESTBASE_BASE_ADDRESS and so on.
func LoadConfig(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// NewFromConfig creates a client from cfg. Options are applied on top of
// the config, so they override individual settings.
func NewFromConfig(cfg *Config, opts ...Option) (*Client, error) {
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithMaxAttempts(cfg.MaxAttempts),
		WithBaseDelay(cfg.BaseDelay),
		WithDelayCap(cfg.DelayCap),
		WithBackoffMultiplier(cfg.BackoffMultiplier),
		WithJitter(cfg.Jitter),
	}
	if len(cfg.RetryableStatuses) > 0 {
		base = append(base, WithRetryableStatusCodes(cfg.RetryableStatuses...))
	}
	if cfg.UserAgent != "" {
		base = append(base, WithUserAgent(cfg.UserAgent))
	}
	return New(cfg.BaseAddress, append(base, opts...)...)
}

// NewFromEnv loads configuration from the environment and creates a client
// from it.
func NewFromEnv(prefix string, opts ...Option) (*Client, error) {
	cfg, err := LoadConfig(prefix)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

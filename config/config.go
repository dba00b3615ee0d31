// Package config loads the payment client configuration from file and
// environment. Missing or invalid values fall back to documented safe
// defaults instead of failing startup.
package config

import (
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/checkoutops/payclient"
)

// Safe defaults, shared with the core policy defaults.
const (
	DefaultTimeoutMs         = 30000
	DefaultRetryAttempts     = 3
	DefaultRetryDelayMs      = 1000
	DefaultBackoffMultiplier = 2.0
	DefaultJitterMs          = 0
	DefaultFailureThreshold  = 5
	DefaultRecoveryTimeoutMs = 60000
	DefaultBaseURL           = "https://api.payment-service.internal"
)

// PaymentServiceConfig is the payment_service block of the config file.
type PaymentServiceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutMs         int     `mapstructure:"timeout_ms"`
	RetryAttempts     int     `mapstructure:"retry_attempts"`
	RetryDelayMs      int     `mapstructure:"retry_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	JitterMs          int     `mapstructure:"jitter_ms"`
}

// CircuitBreakerConfig is the circuit_breaker block of the config file.
type CircuitBreakerConfig struct {
	FailureThreshold  int `mapstructure:"failure_threshold"`
	RecoveryTimeoutMs int `mapstructure:"recovery_timeout_ms"`
}

// Config is the full configuration surface consumed by the client.
type Config struct {
	PaymentService PaymentServiceConfig `mapstructure:"payment_service"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// Load reads timeout.{json,yaml} from ./config or the working directory,
// applies environment overrides, and returns a usable configuration. A
// missing file, an unreadable file, or out-of-range values degrade to the
// defaults with a warning; Load never fails startup.
func Load() *Config {
	v := viper.New()

	v.SetDefault("payment_service.base_url", DefaultBaseURL)
	v.SetDefault("payment_service.timeout_ms", DefaultTimeoutMs)
	v.SetDefault("payment_service.retry_attempts", DefaultRetryAttempts)
	v.SetDefault("payment_service.retry_delay_ms", DefaultRetryDelayMs)
	v.SetDefault("payment_service.backoff_multiplier", DefaultBackoffMultiplier)
	v.SetDefault("payment_service.jitter_ms", DefaultJitterMs)
	v.SetDefault("circuit_breaker.failure_threshold", DefaultFailureThreshold)
	v.SetDefault("circuit_breaker.recovery_timeout_ms", DefaultRecoveryTimeoutMs)

	v.SetConfigName("timeout")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("payment_service.base_url", "PAYMENT_SERVICE_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("config file not found, using defaults and environment variables")
		} else {
			slog.Warn("failed to read config file, using defaults",
				slog.String("error", err.Error()))
		}
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to unmarshal config, using defaults",
			slog.String("error", err.Error()))
		cfg = defaults()
	}

	cfg.sanitize()
	return &cfg
}

func defaults() Config {
	return Config{
		PaymentService: PaymentServiceConfig{
			BaseURL:           DefaultBaseURL,
			TimeoutMs:         DefaultTimeoutMs,
			RetryAttempts:     DefaultRetryAttempts,
			RetryDelayMs:      DefaultRetryDelayMs,
			BackoffMultiplier: DefaultBackoffMultiplier,
			JitterMs:          DefaultJitterMs,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:  DefaultFailureThreshold,
			RecoveryTimeoutMs: DefaultRecoveryTimeoutMs,
		},
	}
}

// sanitize replaces each out-of-contract field with its default, logging
// what was replaced.
func (c *Config) sanitize() {
	err := c.validate()
	if err == nil {
		return
	}
	slog.Warn("invalid configuration values, falling back to defaults per field",
		slog.String("error", err.Error()))

	if c.PaymentService.BaseURL == "" {
		c.PaymentService.BaseURL = DefaultBaseURL
	}
	if c.PaymentService.TimeoutMs <= 0 {
		c.PaymentService.TimeoutMs = DefaultTimeoutMs
	}
	if c.PaymentService.RetryAttempts < 1 {
		c.PaymentService.RetryAttempts = DefaultRetryAttempts
	}
	if c.PaymentService.RetryDelayMs <= 0 {
		c.PaymentService.RetryDelayMs = DefaultRetryDelayMs
	}
	if c.PaymentService.BackoffMultiplier < 1 {
		c.PaymentService.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.PaymentService.JitterMs < 0 {
		c.PaymentService.JitterMs = DefaultJitterMs
	}
	if c.CircuitBreaker.FailureThreshold < 1 {
		c.CircuitBreaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.CircuitBreaker.RecoveryTimeoutMs <= 0 {
		c.CircuitBreaker.RecoveryTimeoutMs = DefaultRecoveryTimeoutMs
	}
}

func (c *Config) validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PaymentService,
			validation.By(func(value interface{}) error {
				ps, ok := value.(PaymentServiceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PaymentServiceConfig")
				}
				return validation.ValidateStruct(&ps,
					validation.Field(&ps.BaseURL, validation.Required),
					validation.Field(&ps.TimeoutMs, validation.Required, validation.Min(1)),
					validation.Field(&ps.RetryAttempts, validation.Required, validation.Min(1)),
					validation.Field(&ps.RetryDelayMs, validation.Required, validation.Min(1)),
					validation.Field(&ps.BackoffMultiplier, validation.Required, validation.Min(1.0)),
					validation.Field(&ps.JitterMs, validation.Min(0)),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&cb.RecoveryTimeoutMs, validation.Required, validation.Min(1)),
				)
			}),
		),
	)
}

// RetryPolicy converts the loaded values into the core retry policy.
func (c *Config) RetryPolicy() payclient.RetryPolicy {
	return payclient.RetryPolicy{
		MaxAttempts:       c.PaymentService.RetryAttempts,
		BaseDelay:         time.Duration(c.PaymentService.RetryDelayMs) * time.Millisecond,
		BackoffMultiplier: c.PaymentService.BackoffMultiplier,
		JitterMax:         time.Duration(c.PaymentService.JitterMs) * time.Millisecond,
		PerAttemptTimeout: time.Duration(c.PaymentService.TimeoutMs) * time.Millisecond,
	}
}

// BreakerConfig converts the loaded values into the core breaker config.
func (c *Config) BreakerConfig() payclient.BreakerConfig {
	return payclient.BreakerConfig{
		FailureThreshold: c.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(c.CircuitBreaker.RecoveryTimeoutMs) * time.Millisecond,
	}
}

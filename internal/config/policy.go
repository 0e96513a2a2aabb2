package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Policy enumerates every admission-policy knob the gateway recognizes,
// with its default and valid range. It is loaded and validated once at
// startup; nothing re-reads it afterwards.
type Policy struct {
	DefaultRateLimitPerMinute int `mapstructure:"defaultRateLimitPerMinute"`
	MinRateLimitPerMinute     int `mapstructure:"minRateLimitPerMinute"`
	MaxRateLimitPerMinute     int `mapstructure:"maxRateLimitPerMinute"`

	DefaultIPRateLimitPerMinute int `mapstructure:"defaultIpRateLimitPerMinute"`
	MinIPRateLimitPerMinute     int `mapstructure:"minIpRateLimitPerMinute"`
	MaxIPRateLimitPerMinute     int `mapstructure:"maxIpRateLimitPerMinute"`

	DefaultConcurrencyLimit int `mapstructure:"defaultConcurrencyLimit"`
	MinConcurrencyLimit     int `mapstructure:"minConcurrencyLimit"`
	MaxConcurrencyLimit     int `mapstructure:"maxConcurrencyLimit"`

	RiskMediumThreshold  int `mapstructure:"riskMediumThreshold"`
	RiskHighThreshold    int `mapstructure:"riskHighThreshold"`
	RiskBlockMinutes     int `mapstructure:"riskBlockMinutes"`
	BurstThreshold       int `mapstructure:"burstThreshold"`
	SignatureTTLSeconds  int `mapstructure:"signatureTtlSeconds"`
	NonceMinLength       int `mapstructure:"nonceMinLength"`
	NonceMaxLength       int `mapstructure:"nonceMaxLength"`
	RotationGraceMinutes int `mapstructure:"rotationGraceMinutes"`
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultRateLimitPerMinute: 120,
		MinRateLimitPerMinute:     10,
		MaxRateLimitPerMinute:     10000,

		DefaultIPRateLimitPerMinute: 60,
		MinIPRateLimitPerMinute:     5,
		MaxIPRateLimitPerMinute:     5000,

		DefaultConcurrencyLimit: 10,
		MinConcurrencyLimit:     1,
		MaxConcurrencyLimit:     500,

		RiskMediumThreshold:  40,
		RiskHighThreshold:    60,
		RiskBlockMinutes:     15,
		BurstThreshold:       120,
		SignatureTTLSeconds:  300,
		NonceMinLength:       12,
		NonceMaxLength:       120,
		RotationGraceMinutes: 24 * 60,
	}
}

// LoadPolicy reads the optional gateway.yml overlay and validates the result.
func LoadPolicy() (Policy, error) {
	v := viper.New()
	v.SetConfigName("gateway")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/egp-gateway")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Policy{}, err
		}
	}

	cfg := defaults
	if err := v.UnmarshalKey("apikey", &cfg); err != nil {
		return Policy{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Policy{}, err
	}
	return cfg, nil
}

func (p Policy) Validate() error {
	if p.MinRateLimitPerMinute < 1 || p.MaxRateLimitPerMinute < p.MinRateLimitPerMinute {
		return fmt.Errorf("invalid rate limit range [%d, %d]", p.MinRateLimitPerMinute, p.MaxRateLimitPerMinute)
	}
	if p.DefaultRateLimitPerMinute < p.MinRateLimitPerMinute || p.DefaultRateLimitPerMinute > p.MaxRateLimitPerMinute {
		return fmt.Errorf("default rate limit %d outside [%d, %d]", p.DefaultRateLimitPerMinute, p.MinRateLimitPerMinute, p.MaxRateLimitPerMinute)
	}
	if p.MinIPRateLimitPerMinute < 1 || p.MaxIPRateLimitPerMinute < p.MinIPRateLimitPerMinute {
		return fmt.Errorf("invalid ip rate limit range [%d, %d]", p.MinIPRateLimitPerMinute, p.MaxIPRateLimitPerMinute)
	}
	if p.DefaultIPRateLimitPerMinute < p.MinIPRateLimitPerMinute || p.DefaultIPRateLimitPerMinute > p.MaxIPRateLimitPerMinute {
		return fmt.Errorf("default ip rate limit %d outside [%d, %d]", p.DefaultIPRateLimitPerMinute, p.MinIPRateLimitPerMinute, p.MaxIPRateLimitPerMinute)
	}
	if p.MinConcurrencyLimit < 1 || p.MaxConcurrencyLimit < p.MinConcurrencyLimit {
		return fmt.Errorf("invalid concurrency range [%d, %d]", p.MinConcurrencyLimit, p.MaxConcurrencyLimit)
	}
	if p.DefaultConcurrencyLimit < p.MinConcurrencyLimit || p.DefaultConcurrencyLimit > p.MaxConcurrencyLimit {
		return fmt.Errorf("default concurrency %d outside [%d, %d]", p.DefaultConcurrencyLimit, p.MinConcurrencyLimit, p.MaxConcurrencyLimit)
	}
	if p.RiskMediumThreshold <= 0 || p.RiskHighThreshold <= p.RiskMediumThreshold {
		return fmt.Errorf("risk thresholds must satisfy 0 < medium (%d) < high (%d)", p.RiskMediumThreshold, p.RiskHighThreshold)
	}
	if p.RiskBlockMinutes <= 0 {
		return fmt.Errorf("risk block minutes must be positive, got %d", p.RiskBlockMinutes)
	}
	if p.BurstThreshold <= 0 {
		return fmt.Errorf("burst threshold must be positive, got %d", p.BurstThreshold)
	}
	if p.SignatureTTLSeconds <= 0 {
		return fmt.Errorf("signature ttl must be positive, got %d", p.SignatureTTLSeconds)
	}
	if p.NonceMinLength < 1 || p.NonceMaxLength < p.NonceMinLength {
		return fmt.Errorf("invalid nonce length range [%d, %d]", p.NonceMinLength, p.NonceMaxLength)
	}
	if p.RotationGraceMinutes < 0 {
		return fmt.Errorf("rotation grace minutes must not be negative, got %d", p.RotationGraceMinutes)
	}
	return nil
}

func (p Policy) RiskBlockDuration() time.Duration {
	return time.Duration(p.RiskBlockMinutes) * time.Minute
}

func (p Policy) SignatureTTL() time.Duration {
	return time.Duration(p.SignatureTTLSeconds) * time.Second
}

func (p Policy) RotationGrace() time.Duration {
	return time.Duration(p.RotationGraceMinutes) * time.Minute
}

// ClampRateLimit bounds a stored per-key limit to the configured range,
// substituting the default when the record carries no override.
func (p Policy) ClampRateLimit(v int) int {
	return clamp(v, p.DefaultRateLimitPerMinute, p.MinRateLimitPerMinute, p.MaxRateLimitPerMinute)
}

func (p Policy) ClampIPRateLimit(v int) int {
	return clamp(v, p.DefaultIPRateLimitPerMinute, p.MinIPRateLimitPerMinute, p.MaxIPRateLimitPerMinute)
}

func (p Policy) ClampConcurrencyLimit(v int) int {
	return clamp(v, p.DefaultConcurrencyLimit, p.MinConcurrencyLimit, p.MaxConcurrencyLimit)
}

func clamp(v, def, min, max int) int {
	if v <= 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

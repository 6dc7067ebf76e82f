// Package config binds the recognized configuration keys from §6 via
// viper, following the teacher's mapstructure-tagged struct shape
// (worker/internal/config/config.go). Unlike the teacher's global
// mutable Get() singleton, Load returns the bound *Config directly so
// callers (and tests) never depend on package-level state.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Velocity   VelocityConfig   `mapstructure:"velocity"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Adapters   AdaptersConfig   `mapstructure:"adapters"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

type RoutingConfig struct {
	Strategy              string `mapstructure:"strategy"`
	FailoverEnabled       bool   `mapstructure:"failover_enabled"`
	FailoverMaxAttempts   int    `mapstructure:"failover_max_attempts"`
}

type BreakerConfig struct {
	WindowSize        int           `mapstructure:"window_size"`
	FailureRateThresh float64       `mapstructure:"failure_rate_threshold"`
	MinCalls          int           `mapstructure:"min_calls"`
	OpenDuration      time.Duration `mapstructure:"open_duration"`
	HalfOpenSuccesses int           `mapstructure:"half_open_successes"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WaitDuration time.Duration `mapstructure:"wait_duration"`
}

type RiskConfig struct {
	EngineEnabled      bool    `mapstructure:"engine_enabled"`
	MLEnabled          bool    `mapstructure:"ml_enabled"`
	MLServiceURL       string  `mapstructure:"ml_service_url"`
	MLTimeoutMs        int     `mapstructure:"ml_timeout_ms"`
	HighFailureRate    float64 `mapstructure:"high_failure_rate"`
	Velocity1Min       int     `mapstructure:"velocity_1min"`
	AlertScore         float64 `mapstructure:"alert_score"`
}

type VelocityConfig struct {
	MaxPerEmailPer60s int `mapstructure:"max_per_email_per_60s"`
	MaxPerIPPer60s    int `mapstructure:"max_per_ip_per_60s"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// AdaptersConfig holds per-adapter settings read from configuration: base
// URLs, client IDs, token URLs, and API keys/secrets used when they are not
// supplied through internal/secrets at startup.
type AdaptersConfig struct {
	StripeSecretKey   string `mapstructure:"stripe_secret_key"`
	WalletBaseURL     string `mapstructure:"wallet_base_url"`
	WalletClientID    string `mapstructure:"wallet_client_id"`
	WalletTokenURL    string `mapstructure:"wallet_token_url"`
	BNPLBaseURL       string `mapstructure:"bnpl_base_url"`
	BNPLAPIKey        string `mapstructure:"bnpl_api_key"`
	BankBaseURL       string `mapstructure:"bank_base_url"`
	BankAPIKey        string `mapstructure:"bank_api_key"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load binds configFile (if non-empty) plus environment overrides into a
// Config, applying the documented §6 defaults first.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WATCHDOG")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("vault.mount_path", "secret")

	v.SetDefault("routing.strategy", "WeightedRoundRobin")
	v.SetDefault("routing.failover_enabled", true)
	v.SetDefault("routing.failover_max_attempts", 3)

	v.SetDefault("breaker.window_size", 10)
	v.SetDefault("breaker.failure_rate_threshold", 0.5)
	v.SetDefault("breaker.min_calls", 10)
	v.SetDefault("breaker.open_duration", "30s")
	v.SetDefault("breaker.half_open_successes", 2)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.wait_duration", "50ms")

	v.SetDefault("risk.engine_enabled", true)
	v.SetDefault("risk.ml_enabled", false)
	v.SetDefault("risk.ml_timeout_ms", 2000)
	v.SetDefault("risk.high_failure_rate", 0.5)
	v.SetDefault("risk.velocity_1min", 10)
	v.SetDefault("risk.alert_score", 0.4)

	v.SetDefault("velocity.max_per_email_per_60s", 30)
	v.SetDefault("velocity.max_per_ip_per_60s", 60)

	v.SetDefault("idempotency.ttl", "24h")

	v.SetDefault("log.level", "info")
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	CentralDatabaseURL string `mapstructure:"CENTRAL_DATABASE_URL"`
	CentralMaxConns    int32  `mapstructure:"CENTRAL_DB_MAX_CONNS"`
	CentralMinConns    int32  `mapstructure:"CENTRAL_DB_MIN_CONNS"`
	DeptDatabaseURL    string `mapstructure:"DEPT_DATABASE_URL"`
	DeptMaxConns       int32  `mapstructure:"DEPT_DB_MAX_CONNS"`
	DeptMinConns       int32  `mapstructure:"DEPT_DB_MIN_CONNS"`

	StoreTimeout            time.Duration `mapstructure:"STORE_TIMEOUT"`
	BreakerFailureThreshold uint32        `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerOpenTimeout      time.Duration `mapstructure:"BREAKER_OPEN_TIMEOUT"`

	SessionSecret        string        `mapstructure:"SESSION_SECRET"`
	SessionIssuer        string        `mapstructure:"SESSION_ISSUER"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	SessionRefreshWindow time.Duration `mapstructure:"SESSION_REFRESH_WINDOW"`
	MaxFailedAttempts    int           `mapstructure:"MAX_FAILED_ATTEMPTS"`
	RedisURL             string        `mapstructure:"REDIS_URL"`

	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int      `mapstructure:"RATE_LIMIT_BURST"`
	LoginRateLimitRPS   float64  `mapstructure:"LOGIN_RATE_LIMIT_RPS"`
	LoginRateLimitBurst int      `mapstructure:"LOGIN_RATE_LIMIT_BURST"`

	TracingEnabled    bool    `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint      string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRate float64 `mapstructure:"TRACING_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV",
	"CENTRAL_DATABASE_URL", "CENTRAL_DB_MAX_CONNS", "CENTRAL_DB_MIN_CONNS",
	"DEPT_DATABASE_URL", "DEPT_DB_MAX_CONNS", "DEPT_DB_MIN_CONNS",
	"STORE_TIMEOUT", "BREAKER_FAILURE_THRESHOLD", "BREAKER_OPEN_TIMEOUT",
	"SESSION_SECRET", "SESSION_ISSUER", "SESSION_TTL", "SESSION_REFRESH_WINDOW",
	"MAX_FAILED_ATTEMPTS", "REDIS_URL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"LOGIN_RATE_LIMIT_RPS", "LOGIN_RATE_LIMIT_BURST",
	"TRACING_ENABLED", "OTLP_ENDPOINT", "TRACING_SAMPLE_RATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CENTRAL_DB_MAX_CONNS", 10)
	v.SetDefault("CENTRAL_DB_MIN_CONNS", 2)
	v.SetDefault("DEPT_DB_MAX_CONNS", 20)
	v.SetDefault("DEPT_DB_MIN_CONNS", 5)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("BREAKER_OPEN_TIMEOUT", "30s")
	v.SetDefault("SESSION_ISSUER", "hospital-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_REFRESH_WINDOW", "2h")
	v.SetDefault("MAX_FAILED_ATTEMPTS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("LOGIN_RATE_LIMIT_RPS", 1)
	v.SetDefault("LOGIN_RATE_LIMIT_BURST", 5)
	v.SetDefault("TRACING_SAMPLE_RATE", 1.0)

	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.CentralDatabaseURL == "" {
		return nil, fmt.Errorf("CENTRAL_DATABASE_URL is required")
	}
	if cfg.DeptDatabaseURL == "" {
		return nil, fmt.Errorf("DEPT_DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to serve traffic with.
// Outside development the session secret must be at least 32 bytes.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if !c.IsDev() && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes outside development, got %d", len(c.SessionSecret))
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.SessionRefreshWindow <= 0 || c.SessionRefreshWindow >= c.SessionTTL {
		return fmt.Errorf("SESSION_REFRESH_WINDOW must be positive and shorter than SESSION_TTL")
	}
	if c.MaxFailedAttempts < 1 {
		return fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be within [0,1], got %v", c.TracingSampleRate)
	}
	return nil
}

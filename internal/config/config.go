// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr enables the redis permission cache when non-empty.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	JWTIssuer        string `mapstructure:"JWT_ISSUER"`
	JWTAccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTAccessTTL is the access token lifetime (e.g. "30m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h" for 7 days).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost applies to both password and refresh-token hashing (4-31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionIdleTimeoutMinutes is the sliding-window session expiry.
	SessionIdleTimeoutMinutes int `mapstructure:"SESSION_IDLE_TIMEOUT_MINUTES"`
	// DuplicateCheckEnabled toggles duplicate-login detection on
	// session-based logins; development environments switch it off.
	DuplicateCheckEnabled bool `mapstructure:"SESSION_DUPLICATE_CHECK_ENABLED"`
	// AskUserConfirmation makes a duplicate login return a confirmation
	// prompt instead of proceeding.
	AskUserConfirmation bool `mapstructure:"SESSION_ASK_USER_CONFIRMATION"`
	// TerminateExisting ends prior sessions when a duplicate login proceeds.
	TerminateExisting bool `mapstructure:"SESSION_TERMINATE_EXISTING"`
	// SuspiciousIPThreshold flags an IP once it holds this many active sessions.
	SuspiciousIPThreshold int `mapstructure:"SESSION_SUSPICIOUS_IP_THRESHOLD"`

	// OperatorRoles is a comma-separated list of reserved roles that are
	// denied tenant-portal logins (they use the ops entry point instead).
	OperatorRoles string `mapstructure:"AUTH_OPERATOR_ROLES"`

	// PermissionCacheTTL is the redis permission cache entry lifetime; zero
	// disables caching.
	PermissionCacheTTL string `mapstructure:"PERMISSION_CACHE_TTL"`

	// SweepInterval is how often the background sweeper removes expired
	// refresh tokens and deactivates expired sessions.
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`

	OTELServiceName           string        `mapstructure:"OTEL_SERVICE_NAME"`
	OTELEnvironment           string        `mapstructure:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELExporterOTLPInsecure  bool          `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELMetricsEnabled        bool          `mapstructure:"OTEL_METRICS_ENABLED"`
	OTELTracesEnabled         bool          `mapstructure:"OTEL_TRACES_ENABLED"`
	OTELLogsEnabled           bool          `mapstructure:"OTEL_LOGS_ENABLED"`
	OTELMetricsExportInterval time.Duration `mapstructure:"OTEL_METRICS_EXPORT_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env. Missing .env is ignored (e.g. in CI).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_ISSUER", "tenant-auth-service")
	// AutomaticEnv only resolves keys viper already knows about, so even
	// secret-bearing keys need an empty default registered.
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "30m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("SESSION_IDLE_TIMEOUT_MINUTES", 30)
	v.SetDefault("SESSION_DUPLICATE_CHECK_ENABLED", true)
	v.SetDefault("SESSION_ASK_USER_CONFIRMATION", false)
	v.SetDefault("SESSION_TERMINATE_EXISTING", true)
	v.SetDefault("SESSION_SUSPICIOUS_IP_THRESHOLD", 5)
	v.SetDefault("AUTH_OPERATOR_ROLES", "ROLE_ADMIN,ROLE_OPS")
	v.SetDefault("PERMISSION_CACHE_TTL", "5m")
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("OTEL_SERVICE_NAME", "tenant-auth-service")
	v.SetDefault("OTEL_ENVIRONMENT", "development")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_METRICS_ENABLED", false)
	v.SetDefault("OTEL_TRACES_ENABLED", false)
	v.SetDefault("OTEL_LOGS_ENABLED", false)
	v.SetDefault("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		recordConfigValidationEvent(context.Background(), v.GetString("APP_ENV"), "failure", "parse")
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Env, "failure", "validation")
		return nil, fmt.Errorf("validate config: %w", err)
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "success", "none")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must be set")
	}
	if c.Env == "production" {
		if len(c.JWTAccessSecret) < 32 || len(c.JWTRefreshSecret) < 32 {
			return errors.New("JWT secrets must be at least 32 bytes in production")
		}
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if c.SessionIdleTimeoutMinutes <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT_MINUTES must be positive")
	}
	if c.SuspiciousIPThreshold <= 0 {
		return errors.New("SESSION_SUSPICIOUS_IP_THRESHOLD must be positive")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL. Returns 30m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDurationOr(c.JWTAccessTTL, 30*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL. Returns 168h (7 days) if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDurationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// CacheTTL parses PermissionCacheTTL; zero disables the cache.
func (c *Config) CacheTTL() time.Duration {
	return parseDurationOr(c.PermissionCacheTTL, 5*time.Minute)
}

// SweeperInterval parses SweepInterval. Returns 10m if unset or invalid.
func (c *Config) SweeperInterval() time.Duration {
	return parseDurationOr(c.SweepInterval, 10*time.Minute)
}

func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutMinutes) * time.Minute
}

// OperatorRoleList splits AUTH_OPERATOR_ROLES, dropping empty entries.
func (c *Config) OperatorRoleList() []string {
	parts := strings.Split(c.OperatorRoles, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root application configuration, read from the environment.
type Config struct {
	Env      string `env:"APP_ENV"   env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	// Timezone seeds the clock while no challenge is configured. A zone
	// stored with the challenge always wins. The host TZ is only a fallback.
	Timezone string `env:"APP_TIMEZONE,TIMEZONE"`

	Server    ServerConfig
	Database  DatabaseConfig
	Admin     AdminConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT"                    env-default:"3333"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT"     env-default:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT"    env-default:"10s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT"     env-default:"120s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS"    env-default:"*"`
}

// DatabaseConfig selects the storage backend. Backend is "postgres" or "sqlite".
type DatabaseConfig struct {
	Backend         string        `env:"STORAGE_BACKEND"            env-default:"sqlite"`
	URL             string        `env:"DATABASE_URL"`
	SQLitePath      string        `env:"SQLITE_PATH"                env-default:"pushup_challenge.db"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS"         env-default:"25"`
	MinConns        int32         `env:"DATABASE_MIN_CONNS"         env-default:"5"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

type AdminConfig struct {
	User string `env:"ADMIN_USER" env-default:"admin"`
	Pass string `env:"ADMIN_PASS"`
}

type MetricsConfig struct {
	User        string `env:"METRICS_USER" env-default:"metrics"`
	Pass        string `env:"METRICS_PASS"`
	PprofSecret string `env:"PPROF_SECRET"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `env:"RATE_LIMIT_RPS"   env-default:"5"`
	Burst             int           `env:"RATE_LIMIT_BURST" env-default:"30"`
	VisitorTTL        time.Duration `env:"RATE_LIMIT_TTL"   env-default:"3m"`
	// TrustedProxies lists addresses or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `env:"RATE_LIMIT_TRUSTED_PROXIES" env-separator:","`
}

// ProxyPrefixes parses TrustedProxies. A bare address becomes a single-host
// prefix.
func (c RateLimitConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("RATE_LIMIT_TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may be set by the platform.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return errors.New("APP_ENV must be one of: development, staging, production")
	}

	switch c.Database.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return errors.New("DATABASE_MIN_CONNS must not exceed DATABASE_MAX_CONNS")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORAGE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Database.Backend)
	}

	if c.Env == "production" && c.Admin.Pass == "" {
		return errors.New("ADMIN_PASS is required in production")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit must be positive")
	}
	if _, err := c.RateLimit.ProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

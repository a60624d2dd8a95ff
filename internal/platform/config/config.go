package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	Env      string
	LogLevel string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	// TokenRateLimit caps POST /auth/token per client IP per minute.
	TokenRateLimit int
	// TrustProxyHeaders reads the client IP from forwarding headers.
	TrustProxyHeaders bool
	// MetricsToken, when set, must accompany scrapes of /metrics.
	MetricsToken string

	// LockTimeout bounds the wait for a document's critical section.
	LockTimeout time.Duration

	Reauth   ReauthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// Bootstrap admin, created on startup if absent.
	BootstrapAdminID     string
	BootstrapAdminSecret string
}

type ReauthConfig struct {
	MaxFailures   int
	LockoutWindow time.Duration
}

// DatabaseConfig selects Postgres stores. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the Redis re-authentication lockout store.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
// The relay needs the Postgres outbox, so it is ignored without a database.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// IsProduction reports whether the process runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Env == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          envOr("EDMS_ADDR", ":8080"),
		Env:           envOr("EDMS_ENV", "development"),
		LogLevel:      envOr("EDMS_LOG_LEVEL", "info"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     envOr("JWT_ISSUER", "edms"),
		JWTAudience:   envOr("JWT_AUDIENCE", "edms-api"),
		MetricsToken:  os.Getenv("METRICS_TOKEN"),

		BootstrapAdminID:     os.Getenv("BOOTSTRAP_ADMIN_ID"),
		BootstrapAdminSecret: os.Getenv("BOOTSTRAP_ADMIN_SECRET"),

		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			KeyPrefix: envOr("REDIS_KEY_PREFIX", "edms"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("AUDIT_TOPIC", "edms.audit"),
		},
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", time.Hour); err != nil {
		return Server{}, err
	}
	if cfg.TrustProxyHeaders, err = boolEnv("TRUST_PROXY_HEADERS", false); err != nil {
		return Server{}, err
	}
	if cfg.TokenRateLimit, err = intEnv("TOKEN_RATE_LIMIT", 10); err != nil {
		return Server{}, err
	}
	if cfg.LockTimeout, err = durationEnv("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Reauth.MaxFailures, err = intEnv("REAUTH_MAX_FAILURES", 5); err != nil {
		return Server{}, err
	}
	if cfg.Reauth.LockoutWindow, err = durationEnv("REAUTH_LOCKOUT_WINDOW", 15*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.PollInterval, err = durationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.BatchSize, err = intEnv("OUTBOX_BATCH_SIZE", 100); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxOpenConns, err = intEnv("DATABASE_MAX_OPEN_CONNS", 20); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxIdleConns, err = intEnv("DATABASE_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Database.ConnMaxLifetime, err = durationEnv("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = intEnv("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = intEnv("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second

	if cfg.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
		// Development default; must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

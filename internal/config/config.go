package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Admin        AdminConfig
	Validation   ValidationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	MaxLoginAttempts      int
	LockoutMinutes        int
}

// AdminConfig describes the operator account seeded at boot.
type AdminConfig struct {
	Username string
	Password string
	Email    string
}

// ValidationConfig tunes the outbound token probes.
type ValidationConfig struct {
	ProbeTimeoutSeconds    int
	BillingPortalBaseURL   string
	BatchProbesPerSecond   float64
	RefreshIntervalMinutes int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	probesPerSecond, err := strconv.ParseFloat(getEnv("BATCH_PROBES_PER_SECOND", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_PROBES_PER_SECOND: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "token-manager"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 0),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 30),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			MaxLoginAttempts:      getEnvAsInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			LockoutMinutes:        getEnvAsInt("AUTH_LOCKOUT_MINUTES", 15),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: os.Getenv("ADMIN_PASSWORD"),
			Email:    os.Getenv("ADMIN_EMAIL"),
		},
		Validation: ValidationConfig{
			ProbeTimeoutSeconds:    getEnvAsInt("PROBE_TIMEOUT_SECONDS", 30),
			BillingPortalBaseURL:   getEnv("BILLING_PORTAL_BASE_URL", "https://portal.withorb.com"),
			BatchProbesPerSecond:   probesPerSecond,
			RefreshIntervalMinutes: getEnvAsInt("REFRESH_INTERVAL_MINUTES", 0),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the per-call timeout for outbound probes.
func (v ValidationConfig) ProbeTimeout() time.Duration {
	if v.ProbeTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(v.ProbeTimeoutSeconds) * time.Second
}

// RefreshInterval returns the period of the background reconciliation loop, zero when disabled.
func (v ValidationConfig) RefreshInterval() time.Duration {
	if v.RefreshIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(v.RefreshIntervalMinutes) * time.Minute
}

// LockoutDuration returns how long a username stays locked after too many failures.
func (a AuthConfig) LockoutDuration() time.Duration {
	if a.LockoutMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(a.LockoutMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// A .env file in the working directory is read first when present; real
// environment variables always win. Every field has a sensible default.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	APIKey          string

	// Persistence. Empty DatabaseURL keeps watches in memory only.
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string
	PersistBuffer  int

	// Event publishing. Empty AMQPURL disables it.
	AMQPURL      string
	AMQPExchange string

	// Scheduling
	Workers              int
	DefaultRecheck       time.Duration
	SchedulerInterval    time.Duration
	AuditSchedule        string
	OverdueExcludePaused bool

	// Fetching
	FetchTimeout     time.Duration
	FetchRatePerHost int

	// Proxies: inline "name=url,..." and/or a YAML file that is watched for changes.
	Proxies     map[string]string
	ProxiesFile string
}

func Load() (*Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	proxies, err := ParseProxies(os.Getenv("PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("PROXIES: %w", err)
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "5000"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		APIKey:          os.Getenv("API_KEY"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 2)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		PersistBuffer:  getInt("PERSIST_BUFFER", 1024),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "changewatch.watches"),

		Workers:              getInt("WORKERS", 10),
		DefaultRecheck:       time.Duration(getInt("DEFAULT_RECHECK_SECONDS", 10800)) * time.Second,
		SchedulerInterval:    getDuration("SCHEDULER_INTERVAL", time.Second),
		AuditSchedule:        getEnv("AUDIT_SCHEDULE", "@every 1m"),
		OverdueExcludePaused: getBool("OVERDUE_EXCLUDE_PAUSED", false),

		FetchTimeout:     getDuration("FETCH_TIMEOUT", 45*time.Second),
		FetchRatePerHost: getInt("FETCH_RATE_PER_HOST", 2),

		Proxies:     proxies,
		ProxiesFile: os.Getenv("PROXIES_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.DefaultRecheck <= 0 {
		return fmt.Errorf("DEFAULT_RECHECK_SECONDS must be positive")
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	if c.FetchRatePerHost < 1 {
		return fmt.Errorf("FETCH_RATE_PER_HOST must be at least 1, got %d", c.FetchRatePerHost)
	}
	if c.DatabaseURL != "" && c.StorageDriver() == "" {
		return fmt.Errorf("DATABASE_URL: unsupported scheme in %q", c.DatabaseURL)
	}
	return nil
}

// StorageDriver returns "postgres", "sqlite", or "" for no persistence.
func (c *Config) StorageDriver() string {
	switch {
	case c.DatabaseURL == "":
		return ""
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		return "sqlite"
	}
	return ""
}

// SQLitePath returns the file path of a sqlite:// DATABASE_URL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

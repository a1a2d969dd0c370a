package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Centaur server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ingest    IngestConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type IngestConfig struct {
	// AppVersion tags every stored event with the running deployment.
	AppVersion string
	// CookieBlacklist lists cookie names that must never reach storage.
	CookieBlacklist []string
}

type RetentionConfig struct {
	// Window is how long events are kept before the sweeper reaps them.
	Window time.Duration
	// BatchSize caps how many events one sweep pass deletes.
	BatchSize int
	// ReconcileCap caps how many distinct errors get their counters
	// reconciled per pass.
	ReconcileCap int
	// QueueName identifies the sweep queue in logs and the trigger API.
	QueueName string
}

// Default cookie names that carry session/auth material.
var defaultCookieBlacklist = []string{"sessionid", "SACSID"}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CENTAUR_PORT", 8080),
			Env:  envString("CENTAUR_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Ingest: IngestConfig{
			AppVersion:      envString("CENTAUR_APP_VERSION", "Unknown"),
			CookieBlacklist: envList("CENTAUR_COOKIE_BLACKLIST", defaultCookieBlacklist),
		},
		Retention: RetentionConfig{
			Window:       time.Duration(envInt("CENTAUR_RETENTION_DAYS", 30)) * 24 * time.Hour,
			BatchSize:    envInt("CENTAUR_SWEEP_BATCH_SIZE", 400),
			ReconcileCap: envInt("CENTAUR_SWEEP_RECONCILE_CAP", 50),
			QueueName:    envString("CENTAUR_SWEEP_QUEUE", "centaur-sweep"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Retention.Window <= 0 {
		return fmt.Errorf("CENTAUR_RETENTION_DAYS must be positive")
	}
	if c.Retention.BatchSize <= 0 {
		return fmt.Errorf("CENTAUR_SWEEP_BATCH_SIZE must be positive")
	}
	if c.Retention.ReconcileCap <= 0 {
		return fmt.Errorf("CENTAUR_SWEEP_RECONCILE_CAP must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

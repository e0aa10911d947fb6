package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	Driver          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBHost          string
	DBPort          string
	DatabaseURL     string
	SQLitePath      string
	GRPCPort        int
	RESTPort        int
	APIPrefix       string
	LogLevel        slog.Level
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// New reads the configuration from the environment. Ports default here
// and are overridden by command line flags.
func New() (*Config, error) {
	cfg := &Config{
		Driver:      getEnv("STORE_DRIVER", "mysql"),
		DBUser:      getEnv("MYSQL_USER", "root"),
		DBPassword:  getEnv("MYSQL_PASSWORD", "root"),
		DBName:      getEnv("MYSQL_DATABASE_NAME", "root"),
		DBHost:      getEnv("MYSQL_HOST", "localhost"),
		DBPort:      getEnv("MYSQL_PORT", "3306"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "events.db"),
		GRPCPort:    50051,
		RESTPort:    8080,
		APIPrefix:   strings.TrimSuffix(getEnv("API_PREFIX", "/api/event"), "/"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Driver {
	case "memory", "mysql", "sqlite3":
	case "pgx":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %q", c.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Driver)
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with /: %q", c.APIPrefix)
	}
	return nil
}

// GetDSN returns the data source name for the configured SQL driver.
func (c *Config) GetDSN() string {
	switch c.Driver {
	case "pgx":
		return c.DatabaseURL
	case "sqlite3":
		return c.SQLitePath
	default:
		if c.DatabaseURL != "" {
			return c.DatabaseURL
		}
		return c.GetDBURI()
	}
}

func (c *Config) GetDBURI() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if v, isSet := os.LookupEnv(key); isSet {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, isSet := os.LookupEnv(key)
	if !isSet || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

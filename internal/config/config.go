package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the console server reads from the environment.
type Config struct {
	Port        string
	Environment string

	UpstreamURL     string
	UpstreamTimeout time.Duration

	JWTSecret string

	LoginRoute    string
	FallbackRoute string

	PermissionCacheTTL      time.Duration
	PermissionLoadingBudget time.Duration
	PipelinePollInterval    time.Duration

	NavConfigPath string
	StaticDir     string

	DB DBConfig
}

// DBConfig selects and addresses the preference store.
type DBConfig struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	Path     string
}

// DSN renders the driver-specific data source name.
func (c DBConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Production reports whether the server runs with production settings.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Load reads a .env file if one exists, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:          getenv("PORT", "8080"),
		Environment:   getenv("APP_ENV", "development"),
		UpstreamURL:   getenv("UPSTREAM_API_URL", "http://localhost:8000"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		LoginRoute:    getenv("LOGIN_ROUTE", "/login"),
		FallbackRoute: getenv("FALLBACK_ROUTE", "/"),
		NavConfigPath: os.Getenv("NAV_CONFIG"),
		StaticDir:     getenv("STATIC_DIR", "web/dist"),
		DB: DBConfig{
			Driver:   getenv("DB_DRIVER", "sqlite"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getenv("DB_PORT", "3306"),
			Name:     os.Getenv("DB_NAME"),
			Path:     getenv("DB_PATH", "calcutta-console.db"),
		},
	}

	var err error
	if cfg.UpstreamTimeout, err = duration("UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PermissionCacheTTL, err = duration("PERMISSION_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.PermissionLoadingBudget, err = duration("PERMISSION_LOADING_BUDGET", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.PipelinePollInterval, err = duration("PIPELINE_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Production() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	switch c.DB.Driver {
	case "mysql":
		if c.DB.Name == "" {
			return errors.New("DB_NAME is required for the mysql driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

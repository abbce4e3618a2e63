package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings for the scan API service.
type Config struct {
	ListenAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// APIKey enables bearer authentication when non-empty.
	APIKey     string
	RateLimit  int64
	RateWindow time.Duration

	Workers            int
	DefaultTimeout     time.Duration
	DefaultConcurrency int
	MaxConcurrency     int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads an optional .env file from envFile (".env" when empty) and then
// the process environment. Malformed values are errors, never silent defaults.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	p := &parser{}
	cfg := &Config{
		ListenAddr:         getenv("LISTEN_ADDR", ":8080"),
		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            p.int("REDIS_DB", 0),
		APIKey:             os.Getenv("API_KEY"),
		RateLimit:          int64(p.int("RATE_LIMIT", 60)),
		RateWindow:         p.duration("RATE_WINDOW", time.Minute),
		Workers:            p.int("SCAN_WORKERS", 5),
		DefaultTimeout:     p.duration("SCAN_DEFAULT_TIMEOUT", 2*time.Second),
		DefaultConcurrency: p.int("SCAN_DEFAULT_CONCURRENCY", 100),
		MaxConcurrency:     p.int("SCAN_MAX_CONCURRENCY", 1000),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
		LogFile:            os.Getenv("LOG_FILE"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_WORKERS must be positive, got %d", c.Workers))
	}
	if c.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_DEFAULT_TIMEOUT must be positive, got %s", c.DefaultTimeout))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency))
	}
	if c.DefaultConcurrency <= 0 || c.DefaultConcurrency > c.MaxConcurrency {
		errs = append(errs, fmt.Errorf("SCAN_DEFAULT_CONCURRENCY must be within 1-%d, got %d", c.MaxConcurrency, c.DefaultConcurrency))
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT and RATE_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser records the first malformed variable.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return v
}

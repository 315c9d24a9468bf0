package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/duonganh203/benkyo/pkg/utils"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	MaxIdle  int
	MaxOpen  int
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

type Optimizer struct {
	URL          string
	Timeout      time.Duration
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timezone     string
	DayStart     int
	Threshold    int
	MinLogs      int
}

type Config struct {
	Storage  string
	HTTPAddr string
	APIToken string

	RateLimitRPS   float64
	RateLimitBurst int

	LogTimezone string

	StaleSweepInterval time.Duration
	StaleAfter         time.Duration

	Postgres  Postgres
	Optimizer Optimizer
}

// LoadEnvFile copies the variables of a .env file in the working directory
// into the environment. Variables that are already set win.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env file: %w", err)
	}
	return nil
}

func FromEnv() (*Config, error) {
	r := &reader{}

	cfg := &Config{
		Storage:        r.str("STORAGE", StoragePostgres),
		HTTPAddr:       r.str("HTTP_ADDR", ":8080"),
		APIToken:       r.str("API_TOKEN", ""),
		RateLimitRPS:   r.float("RATE_LIMIT_RPS", 20),
		RateLimitBurst: r.int("RATE_LIMIT_BURST", 40),
		LogTimezone:    r.str("LOG_TIMEZONE", "UTC"),

		StaleSweepInterval: r.duration("STALE_SWEEP_INTERVAL", time.Minute),
		StaleAfter:         r.duration("STALE_AFTER", 10*time.Minute),

		Postgres: Postgres{
			Host:     r.str("POSTGRES_HOST", "localhost"),
			Port:     r.str("POSTGRES_PORT", "5432"),
			User:     r.str("POSTGRES_USER", "postgres"),
			Password: r.str("POSTGRES_PASSWORD", ""),
			DB:       r.str("POSTGRES_DB", "benkyo"),
			SSLMode:  r.str("POSTGRES_SSLMODE", "disable"),
			MaxIdle:  r.int("POSTGRES_MAX_IDLE", 10),
			MaxOpen:  r.int("POSTGRES_MAX_OPEN", 20),
		},

		Optimizer: Optimizer{
			URL:          r.str("OPTIMIZER_URL", ""),
			Timeout:      r.duration("OPTIMIZER_TIMEOUT", 2*time.Minute),
			ClientID:     r.str("OPTIMIZER_CLIENT_ID", ""),
			ClientSecret: r.str("OPTIMIZER_CLIENT_SECRET", ""),
			TokenURL:     r.str("OPTIMIZER_TOKEN_URL", ""),
			Timezone:     r.str("OPTIMIZER_TIMEZONE", "UTC"),
			DayStart:     r.int("OPTIMIZER_DAY_START", 4),
			Threshold:    r.int("OPTIMIZATION_THRESHOLD", 100),
			MinLogs:      r.int("OPTIMIZATION_MIN_LOGS", 50),
		},
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Storage != StorageMemory && c.Storage != StoragePostgres {
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage))
	}
	if c.Storage == StoragePostgres && c.Postgres.Host == "" {
		errs = append(errs, errors.New("POSTGRES_HOST is required"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	if c.Optimizer.Timeout <= 0 {
		errs = append(errs, errors.New("OPTIMIZER_TIMEOUT must be positive"))
	}
	if c.StaleAfter <= c.Optimizer.Timeout {
		errs = append(errs, fmt.Errorf("STALE_AFTER (%s) must exceed OPTIMIZER_TIMEOUT (%s)", c.StaleAfter, c.Optimizer.Timeout))
	}
	if c.StaleSweepInterval <= 0 {
		errs = append(errs, errors.New("STALE_SWEEP_INTERVAL must be positive"))
	}
	if c.Optimizer.DayStart < 0 || c.Optimizer.DayStart > 23 {
		errs = append(errs, fmt.Errorf("OPTIMIZER_DAY_START must be an hour 0-23, got %d", c.Optimizer.DayStart))
	}
	if c.Optimizer.Threshold <= 0 || c.Optimizer.MinLogs <= 0 {
		errs = append(errs, errors.New("OPTIMIZATION_THRESHOLD and OPTIMIZATION_MIN_LOGS must be positive"))
	}
	if c.Optimizer.ClientID != "" && c.Optimizer.TokenURL == "" {
		errs = append(errs, errors.New("OPTIMIZER_TOKEN_URL is required with OPTIMIZER_CLIENT_ID"))
	}
	if _, err := utils.LoadLocation(c.Optimizer.Timezone); err != nil {
		errs = append(errs, err)
	}
	if _, err := utils.LoadLocation(c.LogTimezone); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("parse %s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("parse %s: %w", key, err))
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("parse %s: %w", key, err))
		return def
	}
	return d
}

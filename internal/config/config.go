// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all runtime configuration for the application service.
type Config struct {
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Log      LogConfig
	Events   EventsConfig
	Reminder ReminderConfig

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig holds REST server settings.
type HTTPConfig struct {
	Port         string        `env:"HTTP_PORT"          env-default:"8082"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT"  env-default:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
}

// GRPCConfig holds gRPC server settings.
type GRPCConfig struct {
	Port string `env:"GRPC_PORT" env-default:"9092"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL              string        `env:"DATABASE_URL"            env-required:"true"`
	MaxConns         int32         `env:"DB_MAX_CONNS"            env-default:"10"`
	MaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME"   env-default:"30m"`
	MigrateOnStart   bool          `env:"DB_MIGRATE_ON_START"     env-default:"true"`
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT"    env-default:"5s"`
}

// RedisConfig holds the Redis connection used for events and rate limiting.
type RedisConfig struct {
	URL string `env:"REDIS_URL" env-required:"true"`
}

// AMQPConfig enables the RabbitMQ publisher when URL is set.
type AMQPConfig struct {
	URL   string `env:"AMQP_URL"`
	Queue string `env:"AMQP_QUEUE" env-default:"skillbridge.application-events"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// EventsConfig controls event publishing and status-change throttling.
type EventsConfig struct {
	Channel               string `env:"EVENTS_CHANNEL"            env-default:"skillbridge.applications"`
	StatusRateLimitPerMin int    `env:"STATUS_RATE_LIMIT_PER_MIN" env-default:"60"`
}

// ReminderConfig drives the stale-application reminder job.
type ReminderConfig struct {
	Schedule   string        `env:"REMINDER_SCHEDULE"    env-default:"@every 6h"`
	StaleAfter time.Duration `env:"REMINDER_STALE_AFTER" env-default:"168h"`
	BatchSize  int           `env:"REMINDER_BATCH_SIZE"  env-default:"200"`
}

// Load reads an optional .env file, then environment variables, and returns
// a validated Config. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate performs business-rule validation on the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1 (got %d)", c.Database.MaxConns)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text (got %q)", c.Log.Format)
	}
	if c.Events.Channel == "" {
		return errors.New("EVENTS_CHANNEL must not be empty")
	}
	if c.Events.StatusRateLimitPerMin < 0 {
		return fmt.Errorf("STATUS_RATE_LIMIT_PER_MIN must be >= 0 (got %d)", c.Events.StatusRateLimitPerMin)
	}
	if _, err := cron.ParseStandard(c.Reminder.Schedule); err != nil {
		return fmt.Errorf("REMINDER_SCHEDULE %q: %w", c.Reminder.Schedule, err)
	}
	if c.Reminder.StaleAfter <= 0 {
		return fmt.Errorf("REMINDER_STALE_AFTER must be > 0 (got %s)", c.Reminder.StaleAfter)
	}
	if c.Reminder.BatchSize < 1 {
		return fmt.Errorf("REMINDER_BATCH_SIZE must be >= 1 (got %d)", c.Reminder.BatchSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0 (got %s)", c.ShutdownTimeout)
	}
	return nil
}

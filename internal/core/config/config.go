package config

import (
	"time"

	redisclient "github.com/vietddude/allocator/internal/infra/redis"
	"github.com/vietddude/allocator/internal/infra/rpc/provider"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/infra/storage/postgres"
	"github.com/vietddude/allocator/internal/platform/otel"
	"github.com/vietddude/allocator/internal/tasks"
)

// EnvPrefix prefixes every environment override (e.g. ALLOCATOR_PROCEDURE_URL).
const EnvPrefix = "ALLOCATOR_"

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"    envPrefix:"SERVER_"`
	Logging   LoggingConfig      `yaml:"logging"   envPrefix:"LOG_"`
	Database  postgres.Config    `yaml:"database"  envPrefix:"DATABASE_"`
	Redis     redisclient.Config `yaml:"redis"     envPrefix:"REDIS_"`
	Procedure provider.Config    `yaml:"procedure" envPrefix:"PROCEDURE_"`
	Retry     retry.Config       `yaml:"retry"     envPrefix:"RETRY_"`
	Tasks     tasks.Config       `yaml:"tasks"     envPrefix:"TASKS_"`
	Tracing   otel.Config        `yaml:"tracing"   envPrefix:"OTEL_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"          env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"  env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`  // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, text
}

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Procedure: provider.Config{
			Function:    provider.DefaultFunction,
			HTTPTimeout: 30 * time.Second,
		},
		Retry: retry.DefaultConfig(),
		Tasks: tasks.Config{
			MaxAttempts:  tasks.DefaultMaxAttempts,
			PollInterval: tasks.DefaultPollInterval,
			BatchLimit:   10,
		},
	}
}

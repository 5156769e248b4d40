package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/allocator/internal/infra/rpc/provider"
)

// Load reads configuration from a YAML file, then applies ALLOCATOR_*
// environment overrides. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Procedure.Transport == "" {
		cfg.Procedure.Transport = defaultTransport(cfg.Database.URL)
	}
	if cfg.Procedure.Function == "" {
		cfg.Procedure.Function = provider.DefaultFunction
	}
	cfg.Procedure.Transport = strings.ToLower(cfg.Procedure.Transport)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaultTransport allocates where the inventory lives: in the database when
// one is configured, in process otherwise.
func defaultTransport(databaseURL string) string {
	if databaseURL != "" {
		return provider.TransportPostgres
	}
	return provider.TransportMemory
}

// Validate checks settings that cannot be defaulted.
func (c *AppConfig) Validate() error {
	switch c.Procedure.Transport {
	case provider.TransportMemory:
		if c.Database.URL != "" {
			return errors.New("procedure.transport memory cannot allocate inventory stored in database.url; use postgres, http or grpc")
		}
	case provider.TransportPostgres:
		if c.Procedure.URL == "" {
			// The procedure lives in the same database as the inventory tables.
			c.Procedure.URL = c.Database.URL
		}
		if c.Procedure.URL == "" {
			return errors.New("procedure.url or database.url is required for the postgres transport")
		}
	case provider.TransportHTTP, provider.TransportGRPC:
		if c.Procedure.URL == "" {
			return fmt.Errorf("procedure.url is required for the %s transport", c.Procedure.Transport)
		}
	default:
		return fmt.Errorf("unknown procedure transport %q", c.Procedure.Transport)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	return nil
}

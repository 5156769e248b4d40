package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/allocator/internal/metrics"
	"github.com/vietddude/allocator/migrations"
)

const (
	defaultMaxConns = 10
	defaultMinConns = 2

	poolStatsInterval = 15 * time.Second
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"       env:"URL"`
	MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"MIN_CONNS"`
}

func (c Config) poolSize() (maxOpen, maxIdle int) {
	maxOpen, maxIdle = c.MaxConns, c.MinConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxConns
	}
	if maxIdle <= 0 {
		maxIdle = defaultMinConns
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	return maxOpen, maxIdle
}

// DB is the inventory database: catalog, batches and the allocation ledger.
type DB struct {
	*sqlx.DB
}

// NewDB opens the inventory database and verifies it is reachable.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	conn, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := cfg.poolSize()
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: conn}, nil
}

func (db *DB) migrator() (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectPostgres, db.DB.DB, migrations.FS)
}

// Migrate brings the schema, including allocate_batch_fifo, up to date.
// It returns the number of migrations applied.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	p, err := db.migrator()
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("failed to migrate db: %w", err)
	}
	return len(results), nil
}

// MigrationVersion returns the applied schema version.
func (db *DB) MigrationVersion(ctx context.Context) (int64, error) {
	p, err := db.migrator()
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	return p.GetDBVersion(ctx)
}

// StartMetricsCollector publishes pool usage until ctx is done.
func (db *DB) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionPoolUsage.Set(poolUsage(stats.OpenConnections, stats.MaxOpenConnections))
			}
		}
	}()
}

// poolUsage is open/max as a percentage. An unlimited pool reports 0.
func poolUsage(open, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(open) / float64(limit) * 100
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/allocator/internal/infra/storage/memory"
)

// Transports supported by New.
const (
	TransportPostgres = "postgres"
	TransportHTTP     = "http"
	TransportGRPC     = "grpc"
	TransportMemory   = "memory"
)

// DefaultFunction is the name of the FIFO allocation function.
const DefaultFunction = "allocate_batch_fifo"

var errEmptyURL = errors.New("procedure url is required")

// Config selects and configures the allocation procedure.
type Config struct {
	Transport   string        `yaml:"transport" env:"TRANSPORT"`
	URL         string        `yaml:"url" env:"URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Function    string        `yaml:"function" env:"FUNCTION"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	MaxConns    int32         `yaml:"max_conns" env:"MAX_CONNS"`
}

// New builds the procedure named by cfg.Transport.
// store backs the memory transport and may be nil for the others.
func New(ctx context.Context, cfg Config, store *memory.MemoryStorage) (Procedure, error) {
	if cfg.Function == "" {
		cfg.Function = DefaultFunction
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	switch cfg.Transport {
	case TransportPostgres:
		if cfg.URL == "" {
			return nil, errEmptyURL
		}
		return NewPostgresProcedure(ctx, TransportPostgres, cfg.URL, cfg.Function, cfg.MaxConns)
	case TransportHTTP:
		if cfg.URL == "" {
			return nil, errEmptyURL
		}
		return NewHTTPProcedure(TransportHTTP, cfg.URL, cfg.Function, cfg.APIKey, cfg.HTTPTimeout), nil
	case TransportGRPC:
		if cfg.URL == "" {
			return nil, errEmptyURL
		}
		return NewGRPCProcedure(TransportGRPC, cfg.URL)
	case TransportMemory, "":
		if store == nil {
			store = memory.NewMemoryStorage()
		}
		return NewMemoryProcedure(TransportMemory, store), nil
	default:
		return nil, fmt.Errorf("unknown procedure transport %q", cfg.Transport)
	}
}

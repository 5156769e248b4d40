package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
)

// PostgresProcedure calls the allocation function directly over a pgx pool.
type PostgresProcedure struct {
	*BaseProcedure
	pool  *pgxpool.Pool
	query string
}

// NewPostgresProcedure connects a pool and verifies it with a ping.
func NewPostgresProcedure(ctx context.Context, name, url, function string, maxConns int32) (*PostgresProcedure, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresProcedure{
		BaseProcedure: NewBaseProcedure(name),
		pool:          pool,
		query:         allocateQuery(function),
	}, nil
}

func allocateQuery(function string) string {
	return fmt.Sprintf("SELECT %s($1::jsonb, $2::text::uuid)", pgx.Identifier{function}.Sanitize())
}

// AllocateBatch runs the function once for the whole batch.
// The function runs in its own transaction, so a cancelled context rolls it back.
func (p *PostgresProcedure) AllocateBatch(ctx context.Context, req Request) (results []domain.AllocationResult, err error) {
	start := time.Now()
	defer func() { p.record(start, len(req.Items), err) }()

	items, err := json.Marshal(req.Items)
	if err != nil {
		return nil, retry.Invalid(p.name, fmt.Errorf("marshal items: %w", err))
	}

	var requestID *string
	if req.RequestID != "" {
		requestID = &req.RequestID
	}

	var raw []byte
	if err := p.pool.QueryRow(ctx, p.query, json.RawMessage(items), requestID).Scan(&raw); err != nil {
		return nil, classifyPgError(ctx, p.name, err)
	}
	return decodeBatchResponse(p.name, raw)
}

// classifyPgError maps pgx failures to retry kinds.
func classifyPgError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		wrapped := fmt.Errorf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
		switch {
		case pgErr.Code == "42883" || pgErr.Code == "42P01":
			// undefined_function, undefined_table: migrations have not run.
			return retry.Unavailable(op, wrapped)
		case pgErr.Code == "57014":
			// query_canceled by statement_timeout
			return &retry.Error{Kind: retry.KindTimeout, Op: op, Err: wrapped}
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03",
			pgErr.Code == "40001", pgErr.Code == "40P01":
			return retry.Network(op, wrapped)
		default:
			// 22xxx data exceptions, 23xxx integrity, P0001 raise, P0002 no_data_found
			return retry.Rejected(op, wrapped)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return retry.Network(op, err)
	}
	if pgconn.Timeout(err) {
		return &retry.Error{Kind: retry.KindTimeout, Op: op, Err: err}
	}
	if pgconn.SafeToRetry(err) {
		return retry.Network(op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return retry.Rejected(op, errors.New("malformed response: no rows"))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Stat exposes pool statistics for metrics.
func (p *PostgresProcedure) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

// Close cleans up resources.
func (p *PostgresProcedure) Close() error {
	p.pool.Close()
	return nil
}

var _ Procedure = (*PostgresProcedure)(nil)

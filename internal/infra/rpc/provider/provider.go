// Package provider implements the remote FIFO allocation procedure.
//
// This package contains:
//   - Procedure interface: one batched allocation call per request
//   - PostgresProcedure: calls the SQL function through pgx
//   - HTTPProcedure: calls the function through a PostgREST/Supabase RPC endpoint
//   - GRPCProcedure: calls an allocation service over gRPC
//   - MemoryProcedure: in-process collaborator backed by memory storage
//
// Every implementation maps its transport failures to retry.Kind values so
// the retry layer can tell transient problems from rejections.
package provider

import (
	"context"
	"time"

	"github.com/vietddude/allocator/internal/core/domain"
)

// Request is one batched allocation call.
// RequestID is stable across retries so the procedure can deduplicate replays.
type Request struct {
	RequestID string
	Items     []domain.AllocationItem
}

// Procedure is a remote FIFO allocation procedure.
type Procedure interface {
	// Name identifies the procedure (e.g., "postgres", "supabase")
	Name() string

	// AllocateBatch allocates every item in one round trip.
	// Results are positionally aligned with req.Items.
	AllocateBatch(ctx context.Context, req Request) ([]domain.AllocationResult, error)

	// Health returns current health metrics
	Health() HealthStatus

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a procedure.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	Requests      int           `json:"requests"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	LastError     string        `json:"last_error,omitempty"`
}

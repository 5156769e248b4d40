package provider

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
)

// AllocateBatchMethod is the full method name of the unary allocation call.
const AllocateBatchMethod = "/allocator.v1.AllocationService/AllocateBatch"

// GRPCProcedure calls an allocation service over gRPC.
// Request and response are google.protobuf.Struct messages carrying the same
// JSON shape as the SQL function, so no generated client is needed.
type GRPCProcedure struct {
	*BaseProcedure
	endpoint string
	conn     *grpc.ClientConn
}

// NewGRPCProcedure creates a gRPC procedure. The connection is established lazily.
func NewGRPCProcedure(name, endpoint string) (*GRPCProcedure, error) {
	// Parse endpoint to determine if TLS is needed
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	opts = append(opts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return newGRPCProcedure(name, endpoint, conn), nil
}

func newGRPCProcedure(name, endpoint string, conn *grpc.ClientConn) *GRPCProcedure {
	return &GRPCProcedure{
		BaseProcedure: NewBaseProcedure(name),
		endpoint:      endpoint,
		conn:          conn,
	}
}

// AllocateBatch makes one unary call for the whole batch.
func (p *GRPCProcedure) AllocateBatch(ctx context.Context, req Request) (results []domain.AllocationResult, err error) {
	start := time.Now()
	defer func() { p.record(start, len(req.Items), err) }()

	in, err := toStruct(newBatchPayload(req))
	if err != nil {
		return nil, retry.Invalid(p.name, err)
	}

	out := &structpb.Struct{}
	if err := p.conn.Invoke(ctx, AllocateBatchMethod, in, out); err != nil {
		return nil, classifyGRPCError(ctx, p.name, err)
	}

	data, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, retry.Rejected(p.name, fmt.Errorf("malformed response: %w", err))
	}
	return decodeBatchResponse(p.name, data)
}

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// classifyGRPCError maps status codes to retry kinds.
func classifyGRPCError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return retry.Network(op, err)
	}

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return retry.Network(op, err)
	case codes.DeadlineExceeded:
		return &retry.Error{Kind: retry.KindTimeout, Op: op, Err: err}
	case codes.Unimplemented:
		return retry.Unavailable(op, err)
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		return retry.Rejected(op, withViolations(st))
	default:
		return retry.Rejected(op, err)
	}
}

// withViolations appends BadRequest field violations to the status message.
func withViolations(st *status.Status) error {
	msg := st.Message()
	for _, d := range st.Details() {
		br, ok := d.(*errdetails.BadRequest)
		if !ok {
			continue
		}
		for _, v := range br.GetFieldViolations() {
			msg += fmt.Sprintf("; %s: %s", v.GetField(), v.GetDescription())
		}
	}
	return fmt.Errorf("%s: %s", st.Code(), msg)
}

// Close cleans up resources.
func (p *GRPCProcedure) Close() error {
	return p.conn.Close()
}

var _ Procedure = (*GRPCProcedure)(nil)

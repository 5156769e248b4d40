package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
)

// HTTPProcedure calls the allocation function through a PostgREST RPC endpoint
// (Supabase exposes the same API under /rest/v1).
type HTTPProcedure struct {
	*BaseProcedure
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// postgrestError is the error body returned by PostgREST.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewHTTPProcedure creates a procedure that posts to {baseURL}/rest/v1/rpc/{function}.
func NewHTTPProcedure(name, baseURL, function, apiKey string, timeout time.Duration) *HTTPProcedure {
	return &HTTPProcedure{
		BaseProcedure: NewBaseProcedure(name),
		endpoint:      strings.TrimRight(baseURL, "/") + "/rest/v1/rpc/" + function,
		apiKey:        apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// AllocateBatch makes a single RPC call for the whole batch.
func (p *HTTPProcedure) AllocateBatch(ctx context.Context, req Request) (results []domain.AllocationResult, err error) {
	start := time.Now()
	defer func() { p.record(start, len(req.Items), err) }()

	jsonData, err := json.Marshal(newBatchPayload(req))
	if err != nil {
		return nil, retry.Invalid(p.name, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, retry.Invalid(p.name, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("apikey", p.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, retry.Network(p.name, fmt.Errorf("rpc call: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Network(p.name, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp.StatusCode, body)
	}
	return decodeBatchResponse(p.name, body)
}

// statusError maps a non-200 response to an error kind.
func (p *HTTPProcedure) statusError(code int, body []byte) error {
	var pgErr postgrestError
	_ = json.Unmarshal(body, &pgErr)

	msg := pgErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if pgErr.Code != "" {
		msg = pgErr.Code + ": " + msg
	}
	err := fmt.Errorf("http %d: %s", code, msg)

	switch {
	case code == http.StatusNotFound:
		// PGRST202: function not found in the schema cache.
		return retry.Unavailable(p.name, err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return &retry.Error{Kind: retry.KindTimeout, Op: p.name, Err: err}
	case code == http.StatusTooManyRequests:
		return retry.Network(p.name, err)
	case code >= 500 && code != http.StatusInternalServerError:
		return retry.Network(p.name, err)
	case code == http.StatusInternalServerError && isConnectionFailure(pgErr.Code):
		return retry.Network(p.name, err)
	default:
		return retry.Rejected(p.name, err)
	}
}

// isConnectionFailure reports PostgREST codes that mean the database was unreachable.
func isConnectionFailure(code string) bool {
	switch code {
	case "PGRST000", "PGRST001", "PGRST002", "PGRST003":
		return true
	}
	return false
}

// Close cleans up resources.
func (p *HTTPProcedure) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

var _ Procedure = (*HTTPProcedure)(nil)

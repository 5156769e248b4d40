package provider

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
)

// batchPayload is the argument object of allocate_batch_fifo.
type batchPayload struct {
	Items     []domain.AllocationItem `json:"p_items"`
	RequestID *string                 `json:"p_request_id"`
}

func newBatchPayload(req Request) batchPayload {
	p := batchPayload{Items: req.Items}
	if req.RequestID != "" {
		id := req.RequestID
		p.RequestID = &id
	}
	return p
}

// BatchSummary aggregates a batch response.
type BatchSummary struct {
	TotalCost        float64 `json:"totalCost"`
	ProductItems     int     `json:"productItems"`
	PreparationItems int     `json:"preparationItems"`
	TotalItems       int     `json:"totalItems"`
}

type batchResponse struct {
	Success bool                      `json:"success"`
	Error   string                    `json:"error,omitempty"`
	Results []domain.AllocationResult `json:"results"`
	Summary BatchSummary              `json:"summary"`
}

// decodeBatchResponse parses the procedure's JSON result.
// A payload with success=false is an application-level rejection.
func decodeBatchResponse(op string, data []byte) ([]domain.AllocationResult, error) {
	var resp batchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, retry.Rejected(op, fmt.Errorf("malformed response: %w", err))
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "allocation rejected"
		}
		return nil, retry.Rejected(op, errors.New(msg))
	}
	if resp.Results == nil {
		resp.Results = []domain.AllocationResult{}
	}
	return resp.Results, nil
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/allocator/internal/allocation"
	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/infra/storage"
	"github.com/vietddude/allocator/internal/tasks"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server provides HTTP endpoints for health monitoring and allocation.
type Server struct {
	monitor *Monitor
	client  *allocation.Client
	tasks   *tasks.Handler
	logger  *slog.Logger
	server  *http.Server
}

// Options configures the server.
type Options struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// NewServer creates a new server. tasks may be nil, which disables the write-off endpoints.
func NewServer(monitor *Monitor, client *allocation.Client, taskHandler *tasks.Handler, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		client:  client,
		tasks:   taskHandler,
		logger:  opts.Logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", opts.Port),
			Handler:      mux,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/allocations", s.handleAllocate)
	if taskHandler != nil {
		mux.HandleFunc("POST /v1/writeoffs", s.handleEnqueue)
		mux.HandleFunc("GET /v1/writeoffs/{id}", s.handleTask)
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type allocateRequest struct {
	Items []domain.AllocationItem `json:"items"`
}

type allocateResponse struct {
	Success      bool                      `json:"success"`
	Results      []domain.AllocationResult `json:"results"`
	TotalCost    float64                   `json:"totalCost"`
	UsedFallback bool                      `json:"usedFallback"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		results  []domain.AllocationResult
		fallback bool
		err      error
	)
	if r.URL.Query().Get("fallback") == "true" {
		results, fallback, err = s.client.AllocateOrFallback(r.Context(), req.Items)
	} else {
		results, err = s.client.Allocate(r.Context(), req.Items)
	}
	if err != nil {
		s.logger.Warn("Allocation request failed", "items", len(req.Items), "error", err)
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, allocateResponse{
		Success:      true,
		Results:      results,
		TotalCost:    domain.TotalCost(results),
		UsedFallback: fallback,
	})
}

type enqueueRequest struct {
	Description string                  `json:"description"`
	Items       []domain.AllocationItem `json:"items"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	task, err := s.tasks.Enqueue(r.Context(), req.Description, req.Items)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/v1/writeoffs/"+task.ID)
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// statusFor maps an error to an HTTP status by its kind.
func statusFor(err error) int {
	if errors.Is(err, storage.ErrTaskNotFound) {
		return http.StatusNotFound
	}
	switch retry.Classify(err) {
	case retry.KindValidation:
		return http.StatusBadRequest
	case retry.KindRemoteRejection:
		return http.StatusUnprocessableEntity
	case retry.KindUnavailable:
		return http.StatusServiceUnavailable
	case retry.KindTimeout:
		return http.StatusGatewayTimeout
	case retry.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   err.Error(),
		"kind":    retry.Classify(err).String(),
	})
}

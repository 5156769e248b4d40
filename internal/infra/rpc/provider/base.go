package provider

import (
	"sync"
	"time"

	"github.com/vietddude/allocator/internal/infra/rpc/retry"
	"github.com/vietddude/allocator/internal/metrics"
)

const (
	// minHealthSamples is the number of round trips before the error rate
	// can mark a procedure unavailable.
	minHealthSamples = 5
	maxErrorRate     = 0.5
)

// BaseProcedure implements common procedure functionality.
// It handles health tracking and call metrics.
type BaseProcedure struct {
	name string

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
}

// NewBaseProcedure creates a new BaseProcedure.
func NewBaseProcedure(name string) *BaseProcedure {
	return &BaseProcedure{
		name: name,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}
}

// Name returns the procedure's name.
func (p *BaseProcedure) Name() string {
	return p.name
}

// Health returns the procedure's health status.
func (p *BaseProcedure) Health() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// record updates health and metrics after one round trip.
func (p *BaseProcedure) record(start time.Time, items int, err error) {
	latency := time.Since(start)
	metrics.AllocationCallsTotal.WithLabelValues(p.name).Inc()
	metrics.AllocationLatency.WithLabelValues(p.name).Observe(latency.Seconds())
	metrics.BatchSize.Observe(float64(items))

	if err != nil {
		metrics.AllocationErrorsTotal.WithLabelValues(p.name, retry.Classify(err).String()).Inc()
		p.RecordFailure(err)
		return
	}
	p.RecordSuccess(latency)
}

// RecordSuccess marks the procedure available and folds latency into the average.
func (p *BaseProcedure) RecordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true
	p.update()
}

// RecordFailure counts err against the procedure's health. Rejected and
// invalid requests were answered by a reachable procedure and are ignored.
func (p *BaseProcedure) RecordFailure(err error) {
	kind := retry.Classify(err)
	if kind == retry.KindRemoteRejection || kind == retry.KindValidation {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.health.LastFailureAt = time.Now()
	p.health.LastError = err.Error()
	p.update()

	if kind == retry.KindUnavailable ||
		(p.health.Requests >= minHealthSamples && p.health.ErrorRate > maxErrorRate) {
		p.health.Available = false
	}
}

func (p *BaseProcedure) update() {
	p.health.Requests = p.successCount + p.failureCount
	if p.health.Requests > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.health.Requests)
	}
	if p.successCount > 0 {
		p.health.Latency = p.totalLatency / time.Duration(p.successCount)
	}
}

package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/allocator/internal/infra/rpc/provider"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// QueueCounter reports the number of queued background tasks.
type QueueCounter interface {
	QueueDepth(ctx context.Context) (int, error)
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	procedure provider.Procedure
	queue     QueueCounter
	pingers   map[string]Pinger
	ttl       time.Duration

	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. queue and pingers may be nil.
func NewMonitor(procedure provider.Procedure, queue QueueCounter, pingers map[string]Pinger) *Monitor {
	return &Monitor{
		procedure: procedure,
		queue:     queue,
		pingers:   pingers,
		ttl:       10 * time.Second,
	}
}

// CheckHealth performs a health check for all components.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering dependencies
	if time.Since(m.lastCheck) < m.ttl && m.lastReport.Components != nil {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	// 1. Allocation procedure
	if m.procedure != nil {
		ph := m.procedure.Health()
		c := ComponentHealth{
			Name:      m.procedure.Name(),
			Status:    StatusHealthy,
			Error:     ph.LastError,
			ErrorRate: ph.ErrorRate,
			LatencyMs: ph.Latency.Milliseconds(),
		}
		switch {
		case !ph.Available:
			c.Status = StatusCritical
		case ph.ErrorRate > 0.1:
			c.Status = StatusDegraded
		}
		report.Components["procedure"] = c
	}

	// 2. Dependencies
	for name, p := range m.pingers {
		c := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := p.Health(ctx); err != nil {
			c.Status = StatusCritical
			c.Error = err.Error()
		}
		report.Components[name] = c
	}

	// 3. Task queue
	if m.queue != nil {
		c := ComponentHealth{Name: "tasks", Status: StatusHealthy}
		depth, err := m.queue.QueueDepth(ctx)
		if err != nil {
			c.Status = StatusDegraded
			c.Error = err.Error()
		} else {
			c.Queued = depth
			if depth > 100 {
				c.Status = StatusDegraded
			}
		}
		report.Components["tasks"] = c
	}

	// Aggregate status (worst case wins)
	for _, c := range report.Components {
		if c.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

package health

import (
	"context"
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/cache"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
	"github.com/ratewise/trustcore/internal/resilience/retry"
)

// Pinger checks that the backing store is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// ConnectivitySource reports the current connectivity state and the
// operations still waiting for replay.
type ConnectivitySource interface {
	IsOnline() bool
	Pending(ctx context.Context) ([]domain.PendingOperation, error)
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	db       Pinger
	offline  ConnectivitySource
	breakers *breaker.Registry
	caches   *cache.Set
	stats    *retry.Metrics

	lastCheck  time.Time
	lastReport Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Any dependency may be nil; the
// corresponding section is then omitted from reports.
func NewMonitor(
	db Pinger,
	offline ConnectivitySource,
	breakers *breaker.Registry,
	caches *cache.Set,
	stats *retry.Metrics,
) *Monitor {
	return &Monitor{
		db:       db,
		offline:  offline,
		breakers: breakers,
		caches:   caches,
		stats:    stats,
	}
}

// CheckHealth builds a full health report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (e.g. max once per 10s) to avoid hammering the DB
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Status != "" {
		return m.lastReport
	}

	report := Report{
		Status: StatusHealthy,
		Online: true,
	}

	// 1. Database reachability. An unreachable store is critical: every
	// write path depends on it.
	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			report.Database = err.Error()
			report.Status = StatusCritical
		} else {
			report.Database = "ok"
		}
	}

	// 2. Connectivity and replay backlog.
	if m.offline != nil {
		report.Online = m.offline.IsOnline()
		if !report.Online && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
		if ops, err := m.offline.Pending(ctx); err == nil {
			report.PendingOperations = len(ops)
			if len(ops) > 0 && report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	// 3. Circuit breakers. An open breaker means a dependency is failing.
	if m.breakers != nil {
		report.Breakers = m.breakers.Snapshots()
		for _, snap := range report.Breakers {
			if snap.State == "open" && report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	// 4. Cache effectiveness.
	if m.caches != nil {
		report.Caches = map[string]cache.Stats{
			"business_attributes": m.caches.Attributes.Stats(),
			"rating_scores":       m.caches.Scores.Stats(),
			"batch_attributes":    m.caches.Batch.Stats(),
		}
	}

	// 5. Per-operation call statistics.
	if m.stats != nil {
		report.Operations = m.stats.SnapshotAll()
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

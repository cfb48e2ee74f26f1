package retry

import (
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// OperationStats holds aggregate counters for one operation name.
type OperationStats struct {
	TotalCalls      int           `json:"total_calls"`
	SuccessfulCalls int           `json:"successful_calls"`
	FailedCalls     int           `json:"failed_calls"`
	TotalDuration   time.Duration `json:"total_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastError       string        `json:"last_error,omitempty"`
	LastSuccess     time.Time     `json:"last_success,omitempty"`
}

// Metrics aggregates call statistics per operation name for the process
// lifetime. Reset is explicit; nothing expires.
type Metrics struct {
	mu    sync.RWMutex
	stats map[string]*OperationStats
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{stats: make(map[string]*OperationStats)}
}

func (m *Metrics) recordSuccess(operation string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(operation)
	s.TotalCalls++
	s.SuccessfulCalls++
	s.LastSuccess = time.Now()
	s.observe(d)
}

func (m *Metrics) recordFailure(operation string, d time.Duration, err *domain.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(operation)
	s.TotalCalls++
	s.FailedCalls++
	if err != nil {
		s.LastError = err.Error()
	}
	s.observe(d)
}

// Snapshot returns a copy of the stats for one operation.
func (m *Metrics) Snapshot(operation string) OperationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.stats[operation]; ok {
		return *s
	}
	return OperationStats{}
}

// SnapshotAll returns a copy of every operation's stats.
func (m *Metrics) SnapshotAll() map[string]OperationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]OperationStats, len(m.stats))
	for name, s := range m.stats {
		out[name] = *s
	}
	return out
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]*OperationStats)
}

// get returns the stats for operation, creating them lazily. Callers hold mu.
func (m *Metrics) get(operation string) *OperationStats {
	s, ok := m.stats[operation]
	if !ok {
		s = &OperationStats{}
		m.stats[operation] = s
	}
	return s
}

func (s *OperationStats) observe(d time.Duration) {
	s.TotalDuration += d
	if s.MinDuration == 0 || d < s.MinDuration {
		s.MinDuration = d
	}
	if d > s.MaxDuration {
		s.MaxDuration = d
	}
}

// Package breaker implements a per-operation circuit breaker. A breaker
// exists per operation name, not per call, and lives for the process.
package breaker

import (
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/metrics"
)

// State is the breaker position.
type State int

const (
	// StateClosed indicates normal operation; failures accumulate.
	StateClosed State = iota
	// StateOpen indicates calls are rejected without being attempted.
	StateOpen
	// StateHalfOpen indicates one trial call is permitted.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls when a breaker opens and how long it stays open.
type Config struct {
	Threshold int           `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ApplyDefaults fills unset fields: 5 consecutive failures, 60s cooldown.
func (c *Config) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Snapshot is a point-in-time view of one breaker, for health reporting.
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// Breaker guards one named operation.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	trialUsed   bool
}

func newBreaker(name string, cfg Config) *Breaker {
	cfg.ApplyDefaults()
	return &Breaker{name: name, cfg: cfg}
}

// IsOpen reports whether calls should be rejected. This is a mutating query:
// when the open cooldown has elapsed it performs the Open -> HalfOpen
// transition under the same lock. Half-open admits exactly one trial call;
// concurrent callers are rejected until that trial records its outcome.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastFailure) > b.cfg.Timeout {
		b.setState(StateHalfOpen)
		b.trialUsed = false
	}
	if b.state == StateHalfOpen {
		if b.trialUsed {
			return true
		}
		b.trialUsed = true
		return false
	}
	return b.state == StateOpen
}

// RecordSuccess closes the breaker and resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialUsed = false
	b.setState(StateClosed)
}

// RecordFailure counts a failure. The breaker opens when the threshold is
// reached, or immediately if the half-open trial call failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()
	b.trialUsed = false

	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.setState(StateOpen)
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.lastFailure = time.Time{}
	b.trialUsed = false
	b.setState(StateClosed)
}

// Snapshot returns the current breaker state without side effects.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:            b.name,
		State:           b.state.String(),
		FailureCount:    b.failures,
		LastFailureTime: b.lastFailure,
	}
}

// setState transitions the breaker and mirrors the state to the gauge.
// Callers hold mu.
func (b *Breaker) setState(s State) {
	b.state = s
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
}

// Registry owns the process-wide breaker set, keyed by operation name.
// Breakers are created lazily on first use and never destroyed.
type Registry struct {
	defaults Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers default to cfg.
func NewRegistry(cfg Config) *Registry {
	cfg.ApplyDefaults()
	return &Registry{
		defaults: cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it with registry defaults.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWith(name, r.defaults)
}

// GetWith returns the breaker for name, creating it with cfg on first use.
// An existing breaker keeps the config it was created with.
func (r *Registry) GetWith(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = newBreaker(name, cfg)
		r.breakers[name] = b
	}
	return b
}

// Snapshots returns the state of every breaker, for health reporting.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

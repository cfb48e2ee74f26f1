// Package ratelimit implements a sliding-window attempt counter keyed by
// (identifier, action). Checking never consumes quota; callers record an
// attempt only after the guarded action was actually tried.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/metrics"
)

// Action names the guarded operations with configured limits.
type Action string

const (
	ActionRatingSubmit        Action = "rating_submit"
	ActionAccountCreateFull   Action = "account_create_full"
	ActionAccountCreateCookie Action = "account_create_cookie"
	ActionLogin               Action = "login"
	ActionPasswordReset       Action = "password_reset"
)

// Limit is the quota for one action: at most MaxAttempts within Window.
type Limit struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

// Config holds per-action limits and sweep tuning.
type Config struct {
	Limits     map[Action]Limit `yaml:"limits"`
	SweepEvery time.Duration    `yaml:"sweep_every"`
	IdleExpiry time.Duration    `yaml:"idle_expiry"`
}

// DefaultLimits is the production quota table.
var DefaultLimits = map[Action]Limit{
	ActionRatingSubmit:        {MaxAttempts: 5, Window: time.Hour},
	ActionAccountCreateFull:   {MaxAttempts: 3, Window: time.Hour},
	ActionAccountCreateCookie: {MaxAttempts: 10, Window: time.Hour},
	ActionLogin:               {MaxAttempts: 5, Window: 15 * time.Minute},
	ActionPasswordReset:       {MaxAttempts: 3, Window: time.Hour},
}

// ApplyDefaults fills unset fields. Configured limits override defaults
// per action; unconfigured actions keep the default quota.
func (c *Config) ApplyDefaults() {
	if c.Limits == nil {
		c.Limits = make(map[Action]Limit)
	}
	for action, limit := range DefaultLimits {
		if _, ok := c.Limits[action]; !ok {
			c.Limits[action] = limit
		}
	}
	if c.SweepEvery == 0 {
		c.SweepEvery = 5 * time.Minute
	}
	if c.IdleExpiry == 0 {
		c.IdleExpiry = time.Hour
	}
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

type entry struct {
	action      Action
	attempts    []time.Time // ascending
	lastUpdated time.Time
}

// Limiter tracks attempt timestamps per (identifier, action) pair. Entries
// are created lazily and swept once idle past their window.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry

	startOnce sync.Once
}

// New creates a limiter from config.
func New(cfg Config) *Limiter {
	cfg.ApplyDefaults()
	return &Limiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

func key(identifier string, action Action) string {
	return identifier + ":" + string(action)
}

// Check reports whether identifier may perform action under its configured
// limit. Attempts older than the window are pruned first; a denial does not
// consume quota.
func (l *Limiter) Check(identifier string, action Action) Result {
	limit, ok := l.cfg.Limits[action]
	if !ok {
		// No limit configured for this action
		return Result{Allowed: true, Remaining: -1}
	}
	return l.CheckLimit(identifier, action, limit)
}

// CheckLimit is Check with an explicit limit, for callers with bespoke quotas.
func (l *Limiter) CheckLimit(identifier string, action Action, limit Limit) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e := l.entries[key(identifier, action)]
	if e != nil {
		e.attempts = prune(e.attempts, now.Add(-limit.Window))
	}

	var count int
	if e != nil {
		count = len(e.attempts)
	}

	if count >= limit.MaxAttempts {
		retryAfter := e.attempts[0].Add(limit.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		metrics.RateLimitChecks.WithLabelValues(string(action), "denied").Inc()
		return Result{Allowed: false, RetryAfter: retryAfter}
	}

	metrics.RateLimitChecks.WithLabelValues(string(action), "allowed").Inc()
	return Result{Allowed: true, Remaining: limit.MaxAttempts - count}
}

// RecordAttempt consumes one quota slot. Call it after the guarded action was
// actually attempted, not after a mere check.
func (l *Limiter) RecordAttempt(identifier string, action Action) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(identifier, action)
	now := time.Now()
	e := l.entries[k]
	if e == nil {
		e = &entry{action: action}
		l.entries[k] = e
	}
	e.attempts = append(e.attempts, now)
	e.lastUpdated = now
}

// Sweep removes entries inactive longer than their own action's window plus
// the idle expiry; by then every recorded attempt has aged out.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for k, e := range l.entries {
		window := l.cfg.Limits[e.action].Window
		if now.Sub(e.lastUpdated) > window+l.cfg.IdleExpiry {
			delete(l.entries, k)
		}
	}
}

// Run starts the periodic sweep and blocks until ctx is canceled. Calling
// Run more than once is a no-op beyond the first call.
func (l *Limiter) Run(ctx context.Context) {
	started := false
	l.startOnce.Do(func() { started = true })
	if !started {
		return
	}

	ticker := time.NewTicker(l.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// prune drops timestamps at or before cutoff, preserving order.
func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(attempts) && !attempts[idx].After(cutoff) {
		idx++
	}
	return attempts[idx:]
}

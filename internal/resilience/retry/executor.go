// Package retry runs remote operations with classified-error retry,
// exponential backoff with jitter, and circuit breaker protection. It is the
// "execute this remote operation safely" primitive the rest of the product
// builds on.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/metrics"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
)

// Config holds the process-wide retry defaults.
type Config struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// ApplyDefaults fills unset fields: 3 attempts, 1s base, 30s cap.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
}

// Options controls a single Execute call.
type Options struct {
	OperationName    string
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	EnableBreaker    bool
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Executor coordinates retries, breakers and per-operation metrics.
type Executor struct {
	cfg      Config
	breakers *breaker.Registry
	stats    *Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor sharing the given breaker registry.
func NewExecutor(cfg Config, breakers *breaker.Registry) *Executor {
	cfg.ApplyDefaults()
	return &Executor{
		cfg:      cfg,
		breakers: breakers,
		stats:    NewMetrics(),
		sleep:    sleepCtx,
	}
}

// DefaultOptions returns Options for name with breaker protection enabled
// and all tunables inheriting the executor config.
func (e *Executor) DefaultOptions(name string) Options {
	return Options{OperationName: name, EnableBreaker: true}
}

// Metrics exposes the per-operation aggregate counters.
func (e *Executor) Metrics() *Metrics {
	return e.stats
}

// Execute runs fn under the named operation's breaker, retrying retryable
// failures with exponential backoff and jitter. It returns fn's result or a
// classified error once the breaker rejects the call, a non-retryable error
// occurs, attempts are exhausted, or ctx is canceled.
//
// Backoff sleeps select on ctx, so a caller can abandon an in-flight retry
// loop; cancellation surfaces as an aborted-kind error.
func Execute[T any](ctx context.Context, e *Executor, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	e.applyConfig(&opts)

	var brk *breaker.Breaker
	if opts.EnableBreaker {
		// Options without an explicit breaker override inherit the
		// registry's configured defaults.
		if opts.BreakerThreshold == 0 && opts.BreakerTimeout == 0 {
			brk = e.breakers.Get(opts.OperationName)
		} else {
			brk = e.breakers.GetWith(opts.OperationName, breaker.Config{
				Threshold: opts.BreakerThreshold,
				Timeout:   opts.BreakerTimeout,
			})
		}
		if brk.IsOpen() {
			metrics.OperationsTotal.WithLabelValues(opts.OperationName, "rejected").Inc()
			return zero, domain.NewError(domain.KindCircuitBreakerOpen, opts.OperationName, nil)
		}
	}

	var classified *domain.Error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		start := time.Now()
		result, err := fn(ctx)
		duration := time.Since(start)

		if err == nil {
			if brk != nil {
				brk.RecordSuccess()
			}
			e.stats.recordSuccess(opts.OperationName, duration)
			metrics.OperationsTotal.WithLabelValues(opts.OperationName, "success").Inc()
			metrics.OperationLatency.WithLabelValues(opts.OperationName).Observe(duration.Seconds())
			return result, nil
		}

		classified = domain.Classify(opts.OperationName, err)
		if brk != nil {
			brk.RecordFailure()
		}
		e.stats.recordFailure(opts.OperationName, duration, classified)
		metrics.OperationsTotal.WithLabelValues(opts.OperationName, "failure").Inc()

		if ctx.Err() != nil || !classified.Kind.Retryable() || attempt == opts.MaxRetries {
			break
		}

		metrics.RetryAttempts.WithLabelValues(opts.OperationName).Inc()
		delay := backoff(attempt, opts.BaseDelay, opts.MaxDelay)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, domain.Classify(opts.OperationName, err)
		}
	}

	return zero, classified
}

func (e *Executor) applyConfig(opts *Options) {
	if opts.OperationName == "" {
		opts.OperationName = "unnamed"
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = e.cfg.MaxRetries
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = e.cfg.BaseDelay
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = e.cfg.MaxDelay
	}
}

// backoff computes the delay after the given attempt (1-based):
// min(base * 2^(attempt-1), max) plus up to 30% random jitter.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(limit) {
		delay = float64(limit)
	}
	jitter := delay * 0.3 * rand.Float64()
	return time.Duration(delay + jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
)

// instant replaces the backoff sleep and records the requested delays.
type instant struct {
	delays []time.Duration
}

func (i *instant) sleep(ctx context.Context, d time.Duration) error {
	i.delays = append(i.delays, d)
	return ctx.Err()
}

func testExecutor() (*Executor, *instant) {
	e := NewExecutor(Config{}, breaker.NewRegistry(breaker.Config{}))
	in := &instant{}
	e.sleep = in.sleep
	return e, in
}

func TestExecute_SuccessFirstTry(t *testing.T) {
	e, in := testExecutor()

	got, err := Execute(context.Background(), e, e.DefaultOptions("op"), func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if len(in.delays) != 0 {
		t.Errorf("no backoff expected, slept %d times", len(in.delays))
	}
}

func TestExecute_RetriesNetworkErrors(t *testing.T) {
	e, in := testExecutor()

	calls := 0
	got, err := Execute(context.Background(), e, e.DefaultOptions("op"), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("network-request-failed")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(in.delays) != 2 {
		t.Errorf("backoffs = %d, want 2", len(in.delays))
	}
}

func TestExecute_NoRetryOnPermissionDenied(t *testing.T) {
	e, _ := testExecutor()

	calls := 0
	_, err := Execute(context.Background(), e, e.DefaultOptions("op"), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("permission-denied")
	})
	if calls != 1 {
		t.Errorf("calls = %d, non-retryable errors must not be retried", calls)
	}
	if domain.KindOf(err) != domain.KindPermissionDenied {
		t.Errorf("kind = %v, want permission denied", domain.KindOf(err))
	}
}

func TestExecute_ExhaustionSurfacesClassifiedError(t *testing.T) {
	e, _ := testExecutor()

	opts := e.DefaultOptions("op")
	opts.MaxRetries = 2

	calls := 0
	_, err := Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("service unavailable")
	})
	if calls != 2 {
		t.Errorf("calls = %d, want maxRetries", calls)
	}
	if domain.KindOf(err) != domain.KindNetwork {
		t.Errorf("kind = %v, want network", domain.KindOf(err))
	}
}

func TestExecute_BreakerOpenFailsFast(t *testing.T) {
	e, _ := testExecutor()

	opts := e.DefaultOptions("flaky")
	opts.MaxRetries = 1
	opts.BreakerThreshold = 2

	for i := 0; i < 2; i++ {
		_, _ = Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
			return 0, errors.New("unavailable")
		})
	}

	calls := 0
	_, err := Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if calls != 0 {
		t.Error("open breaker must reject without invoking the operation")
	}
	if domain.KindOf(err) != domain.KindCircuitBreakerOpen {
		t.Errorf("kind = %v, want circuit breaker open", domain.KindOf(err))
	}
}

func TestExecute_BreakerInheritsRegistryConfig(t *testing.T) {
	e := NewExecutor(Config{}, breaker.NewRegistry(breaker.Config{Threshold: 2}))
	in := &instant{}
	e.sleep = in.sleep

	opts := e.DefaultOptions("configured")
	opts.MaxRetries = 1

	for i := 0; i < 2; i++ {
		_, _ = Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
			return 0, errors.New("unavailable")
		})
	}

	calls := 0
	_, err := Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if calls != 0 {
		t.Error("configured threshold reached, operation must not run")
	}
	if domain.KindOf(err) != domain.KindCircuitBreakerOpen {
		t.Errorf("kind = %v, want circuit breaker open", domain.KindOf(err))
	}
}

func TestExecute_BreakerDisabled(t *testing.T) {
	e, _ := testExecutor()

	opts := Options{OperationName: "raw", MaxRetries: 1}
	for i := 0; i < 20; i++ {
		_, _ = Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
			return 0, errors.New("unavailable")
		})
	}

	calls := 0
	_, _ = Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if calls != 1 {
		t.Error("with the breaker disabled every call must go through")
	}
}

func TestExecute_CancellationAbortsBackoff(t *testing.T) {
	e := NewExecutor(Config{BaseDelay: time.Hour}, breaker.NewRegistry(breaker.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Execute(ctx, e, e.DefaultOptions("op"), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("unavailable")
	})
	if calls != 1 {
		t.Errorf("calls = %d, canceled context must stop the retry loop", calls)
	}
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestBackoff_ExponentialWithJitterCap(t *testing.T) {
	base := 100 * time.Millisecond
	limit := 400 * time.Millisecond

	for attempt := 1; attempt <= 5; attempt++ {
		want := float64(base) * float64(int(1)<<(attempt-1))
		if want > float64(limit) {
			want = float64(limit)
		}
		for i := 0; i < 50; i++ {
			d := float64(backoff(attempt, base, limit))
			if d < want || d > want*1.3 {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]",
					attempt, time.Duration(d), time.Duration(want), time.Duration(want*1.3))
			}
		}
	}
}

func TestMetrics_Aggregation(t *testing.T) {
	e, _ := testExecutor()

	_, _ = Execute(context.Background(), e, e.DefaultOptions("op"), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	opts := e.DefaultOptions("op")
	opts.MaxRetries = 1
	_, _ = Execute(context.Background(), e, opts, func(ctx context.Context) (int, error) {
		return 0, errors.New("permission-denied")
	})

	s := e.Metrics().Snapshot("op")
	if s.TotalCalls != 2 || s.SuccessfulCalls != 1 || s.FailedCalls != 1 {
		t.Errorf("stats = %+v, want 2 total / 1 success / 1 failure", s)
	}
	if s.LastError == "" {
		t.Error("last error should be recorded")
	}
	if s.LastSuccess.IsZero() {
		t.Error("last success should be recorded")
	}

	e.Metrics().Reset()
	if e.Metrics().Snapshot("op").TotalCalls != 0 {
		t.Error("reset should clear counters")
	}
}

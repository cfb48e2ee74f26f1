package ratings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ratewise/trustcore/internal/abuse"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/guard"
	"github.com/ratewise/trustcore/internal/infra/storage"
	"github.com/ratewise/trustcore/internal/infra/storage/memory"
	"github.com/ratewise/trustcore/internal/offline"
	"github.com/ratewise/trustcore/internal/ratelimit"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
	"github.com/ratewise/trustcore/internal/resilience/retry"
)

// flakyRepo wraps a repository and fails Create a configured number of times.
type flakyRepo struct {
	storage.RatingRepository
	mu        sync.Mutex
	failures  int
	createErr error
}

func (f *flakyRepo) Create(ctx context.Context, rating *domain.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return f.createErr
	}
	return f.RatingRepository.Create(ctx, rating)
}

type fixture struct {
	svc     *Service
	repo    storage.RatingRepository
	flaky   *flakyRepo
	queue   *offline.Queue
	limiter *ratelimit.Limiter
	flags   storage.FlagRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewMemoryStorage()
	flaky := &flakyRepo{RatingRepository: memory.NewRatingRepo(store)}
	flags := memory.NewFlagRepo(store)

	limiter := ratelimit.New(ratelimit.Config{})
	detector := abuse.NewDetector(abuse.Config{}, flaky, flags, log)
	g := guard.New(limiter, detector, flaky, log)

	executor := retry.NewExecutor(
		retry.Config{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		breaker.NewRegistry(breaker.Config{}),
	)
	queue := offline.New(offline.Config{}, offline.NewMemoryStore(),
		offline.ProberFunc(func(ctx context.Context) bool { return true }), log)

	svc := NewService(g, limiter, detector, flaky, executor, queue, log)
	return &fixture{svc: svc, repo: flaky, flaky: flaky, queue: queue, limiter: limiter, flags: flags}
}

func input(user, biz string) SubmitInput {
	return SubmitInput{
		UserID:     user,
		BusinessID: biz,
		Scores:     map[string]float64{"service": 3, "value": 3},
		Total:      3.0,
		IPAddress:  "10.0.0.1",
	}
}

func TestSubmit_CreatesRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.Submit(ctx, input("u1", "biz1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.ID == "" {
		t.Error("rating should get an ID")
	}

	stored, _ := f.repo.GetByUserAndBusiness(ctx, "u1", "biz1")
	if stored == nil {
		t.Fatal("rating should be persisted")
	}

	agg, _ := f.repo.GetAggregate(ctx, "biz1")
	if agg == nil || agg.RatingCount != 1 || agg.AverageScore != 3.0 {
		t.Errorf("aggregate = %+v, want 1 rating averaging 3.0", agg)
	}
}

func TestSubmit_RepeatBecomesUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, input("u1", "biz1"))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := input("u1", "biz1")
	second.Total = 5.0
	got, err := f.svc.Submit(ctx, second)
	if err != nil {
		t.Fatalf("repeat submit should upsert, got %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("update should reuse rating %s, got %s", first.ID, got.ID)
	}

	// Aggregation still reflects exactly one rating for (u1, biz1).
	agg, _ := f.repo.GetAggregate(ctx, "biz1")
	if agg.RatingCount != 1 {
		t.Errorf("rating count = %d, want 1 after upsert", agg.RatingCount)
	}
	if agg.AverageScore != 5.0 {
		t.Errorf("average = %f, want the updated total", agg.AverageScore)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Exhaust the 5/hour submission quota against distinct businesses.
	for i := 0; i < 5; i++ {
		if _, err := f.svc.Submit(ctx, input("u1", "biz-"+string(rune('a'+i)))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	_, err := f.svc.Submit(ctx, input("u1", "biz-z"))
	if domain.KindOf(err) != domain.KindRateLimited {
		t.Errorf("kind = %v, want rate limited", domain.KindOf(err))
	}
}

func TestSubmit_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.flaky.failures = 2
	f.flaky.createErr = errors.New("unavailable")

	if _, err := f.svc.Submit(context.Background(), input("u1", "biz1")); err != nil {
		t.Fatalf("transient failures within the retry budget should succeed, got %v", err)
	}
}

func TestSubmit_OfflineQueuesAndAcksOptimistically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.queue.SetOnline(ctx, false)

	got, err := f.svc.Submit(ctx, input("u1", "biz1"))
	if err != nil {
		t.Fatalf("offline submit should be acknowledged, got %v", err)
	}
	if got == nil {
		t.Fatal("offline submit should return the optimistic rating")
	}

	pending, _ := f.queue.Pending(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].OperationName != "rating.create" {
		t.Errorf("queued op = %q, want rating.create", pending[0].OperationName)
	}

	// Nothing hit the repository yet.
	stored, _ := f.repo.GetByUserAndBusiness(ctx, "u1", "biz1")
	if stored != nil {
		t.Error("offline submit must not write through")
	}
}

func TestSubmit_ReplayAfterReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.queue.SetOnline(ctx, false)
	if _, err := f.svc.Submit(ctx, input("u1", "biz1")); err != nil {
		t.Fatalf("offline submit: %v", err)
	}

	f.queue.SetOnline(ctx, true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, _ := f.repo.GetByUserAndBusiness(ctx, "u1", "biz1")
		if stored != nil {
			agg, _ := f.repo.GetAggregate(ctx, "biz1")
			if agg == nil || agg.RatingCount != 1 {
				t.Fatalf("aggregate = %+v, want 1 rating after replay", agg)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("queued rating was not replayed after reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReplay_RediscoversExistingRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A direct write lands while the create is still queued.
	if _, err := f.svc.Submit(ctx, input("u1", "biz1")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	op := domain.PendingOperation{
		OperationName: "rating.create",
		OperationType: domain.OperationTypeCreate,
		Collection:    ratingsCollection,
		DocumentID:    "stale-id",
		Data: map[string]any{
			"user_id":     "u1",
			"business_id": "biz1",
			"total":       4.0,
			"scores":      map[string]any{"service": 4.0},
		},
	}
	if err := f.svc.Replay(ctx, op); err != nil {
		t.Fatalf("replay: %v", err)
	}

	agg, _ := f.repo.GetAggregate(ctx, "biz1")
	if agg.RatingCount != 1 {
		t.Errorf("rating count = %d, replay must not duplicate the rating", agg.RatingCount)
	}
	if agg.AverageScore != 4.0 {
		t.Errorf("average = %f, want the replayed total", agg.AverageScore)
	}
}

func TestSubmit_QueuedWriteDefersInspection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.queue.SetOnline(ctx, false)

	in := input("u1", "biz1")
	in.Total = 0.5 // extreme score, flagged once stored
	if _, err := f.svc.Submit(ctx, in); err != nil {
		t.Fatalf("offline submit: %v", err)
	}

	// The rating is only queued; heuristics must not run against storage
	// that does not contain it.
	time.Sleep(50 * time.Millisecond)
	flags, _ := f.flags.ListActiveByUser(ctx, "u1")
	if len(flags) != 0 {
		t.Fatalf("flags = %d, queued submit must not be inspected", len(flags))
	}

	f.queue.SetOnline(ctx, true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		flags, _ := f.flags.ListActiveByUser(ctx, "u1")
		for _, fl := range flags {
			if fl.Reason == domain.FlagReasonExtremeScores {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("replayed rating was not inspected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmit_InspectionFlagsRapidReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Submit(ctx, input("u1", "biz-"+string(rune('a'+i)))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		flags, _ := f.flags.ListActiveByUser(ctx, "u1")
		for _, fl := range flags {
			if fl.Reason == domain.FlagReasonRapidReviewer {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("rapid reviewer flag was not raised")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package guard

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ratewise/trustcore/internal/abuse"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/infra/storage/memory"
	"github.com/ratewise/trustcore/internal/ratelimit"
)

func testGuard(t *testing.T) (*Guard, *memory.RatingRepo, *ratelimit.Limiter) {
	t.Helper()
	store := memory.NewMemoryStorage()
	ratings := memory.NewRatingRepo(store)
	flags := memory.NewFlagRepo(store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(ratelimit.Config{})
	detector := abuse.NewDetector(abuse.Config{}, ratings, flags, log)
	return New(limiter, detector, ratings, log), ratings, limiter
}

func TestCanUserRateBusiness_Allowed(t *testing.T) {
	g, _, _ := testGuard(t)

	d := g.CanUserRateBusiness(context.Background(), "u1", "biz1")
	if !d.CanRate {
		t.Fatalf("decision = %+v, want allowed", d)
	}
}

func TestCanUserRateBusiness_DuplicateRating(t *testing.T) {
	g, ratings, _ := testGuard(t)
	ctx := context.Background()

	_ = ratings.Create(ctx, &domain.Rating{ID: "r1", UserID: "u1", BusinessID: "biz1", Total: 3})

	d := g.CanUserRateBusiness(ctx, "u1", "biz1")
	if d.CanRate {
		t.Fatal("prior rating should deny")
	}
	if d.Reason != ReasonDuplicateRating {
		t.Errorf("reason = %q, want duplicate_rating", d.Reason)
	}
	if d.ExistingRatingID != "r1" {
		t.Errorf("existing rating id = %q, want r1", d.ExistingRatingID)
	}
	if d.Message == "" {
		t.Error("denial must carry a user message")
	}
}

func TestCanUserRateBusiness_RateLimited(t *testing.T) {
	g, _, limiter := testGuard(t)
	ctx := context.Background()

	// Default quota: 5 submissions per hour.
	for i := 0; i < 5; i++ {
		limiter.RecordAttempt("u1", ratelimit.ActionRatingSubmit)
	}

	d := g.CanUserRateBusiness(ctx, "u1", "biz1")
	if d.CanRate {
		t.Fatal("over-quota user should be denied")
	}
	if d.Reason != ReasonRateLimited {
		t.Errorf("reason = %q, want rate_limited", d.Reason)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("retryAfter = %v, want positive", d.RetryAfter)
	}
}

func TestCanUserRateBusiness_CheckDoesNotConsumeQuota(t *testing.T) {
	g, _, _ := testGuard(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if !g.CanUserRateBusiness(ctx, "u1", "biz1").CanRate {
			t.Fatal("checks alone must never exhaust the quota")
		}
	}
}

func TestCanCreateAccount_FullAccountLimit(t *testing.T) {
	g, _, _ := testGuard(t)
	ctx := context.Background()

	// 3 full-account creations per hour per IP: the 4th is denied.
	for i := 0; i < 3; i++ {
		d := g.CanCreateAccount(ctx, "1.2.3.4", domain.AccountTypeFull)
		if !d.CanCreate {
			t.Fatalf("creation %d should be allowed", i+1)
		}
		g.RecordAccountCreation("1.2.3.4", domain.AccountTypeFull)
	}

	d := g.CanCreateAccount(ctx, "1.2.3.4", domain.AccountTypeFull)
	if d.CanCreate {
		t.Fatal("4th creation in an hour should be denied")
	}
	if d.Reason != ReasonRateLimited {
		t.Errorf("reason = %q, want rate_limited", d.Reason)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Hour {
		t.Errorf("retryAfter = %v, want within (0, 1h]", d.RetryAfter)
	}
}

func TestCanCreateAccount_CookieAccountsSeparateQuota(t *testing.T) {
	g, _, _ := testGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		g.RecordAccountCreation("1.2.3.4", domain.AccountTypeFull)
	}

	if !g.CanCreateAccount(ctx, "1.2.3.4", domain.AccountTypeCookie).CanCreate {
		t.Error("cookie accounts have their own, larger quota")
	}
}

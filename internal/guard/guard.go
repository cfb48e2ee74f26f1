// Package guard gates trust-sensitive writes. Callers ask for permission
// before touching the backend; the answers carry stable reasons and messages
// suitable for direct display.
package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/ratewise/trustcore/internal/abuse"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/infra/storage"
	"github.com/ratewise/trustcore/internal/ratelimit"
)

// Decision reasons. Empty means allowed.
const (
	ReasonRateLimited     = "rate_limited"
	ReasonDuplicateRating = "duplicate_rating"
)

// RateDecision answers "may this user rate this business".
type RateDecision struct {
	CanRate          bool
	Reason           string
	Message          string
	ExistingRatingID string
	RetryAfter       time.Duration
}

// AccountDecision answers "may this IP create another account".
type AccountDecision struct {
	CanCreate  bool
	Reason     string
	Message    string
	RetryAfter time.Duration
}

// Guard combines the rate limiter, the abuse detector and the duplicate
// check into the product's permission surface.
type Guard struct {
	limiter  *ratelimit.Limiter
	detector *abuse.Detector
	ratings  storage.RatingRepository
	log      *slog.Logger
}

// New creates a guard.
func New(limiter *ratelimit.Limiter, detector *abuse.Detector, ratings storage.RatingRepository, log *slog.Logger) *Guard {
	return &Guard{
		limiter:  limiter,
		detector: detector,
		ratings:  ratings,
		log:      log,
	}
}

// CanUserRateBusiness checks the duplicate gate and the submission quota.
// A prior rating denies with the existing rating's ID so the caller can
// route the submission to an update instead. A denied check consumes no
// quota. The suspicion check is advisory and only logged here.
func (g *Guard) CanUserRateBusiness(ctx context.Context, userID, businessID string) RateDecision {
	// Hard gate: one rating per (user, business).
	existing, err := g.ratings.GetByUserAndBusiness(ctx, userID, businessID)
	if err != nil {
		// Fail open; the write path re-checks before creating.
		g.log.Warn("duplicate check failed, failing open", "user", userID, "business", businessID, "error", err)
	}
	if existing != nil {
		return RateDecision{
			Reason:           ReasonDuplicateRating,
			Message:          domain.UserMessage(ReasonDuplicateRating),
			ExistingRatingID: existing.ID,
		}
	}

	if res := g.limiter.Check(userID, ratelimit.ActionRatingSubmit); !res.Allowed {
		return RateDecision{
			Reason:     ReasonRateLimited,
			Message:    domain.UserMessage(ReasonRateLimited),
			RetryAfter: res.RetryAfter,
		}
	}

	if sus := g.detector.CheckSuspicious(ctx, userID, string(ratelimit.ActionRatingSubmit)); sus.Suspicious {
		g.log.Info("suspicious user submitting rating", "user", userID, "flags", sus.Flags)
	}

	return RateDecision{CanRate: true}
}

// CanCreateAccount checks the per-IP account creation quota for the given
// account type.
func (g *Guard) CanCreateAccount(ctx context.Context, ipAddress string, accountType domain.AccountType) AccountDecision {
	action := ratelimit.ActionAccountCreateFull
	if accountType == domain.AccountTypeCookie {
		action = ratelimit.ActionAccountCreateCookie
	}

	if res := g.limiter.Check(ipAddress, action); !res.Allowed {
		return AccountDecision{
			Reason:     ReasonRateLimited,
			Message:    domain.UserMessage(ReasonRateLimited),
			RetryAfter: res.RetryAfter,
		}
	}
	return AccountDecision{CanCreate: true}
}

// RecordAccountCreation consumes one account-creation slot. Call it after
// the account was actually created.
func (g *Guard) RecordAccountCreation(ipAddress string, accountType domain.AccountType) {
	action := ratelimit.ActionAccountCreateFull
	if accountType == domain.AccountTypeCookie {
		action = ratelimit.ActionAccountCreateCookie
	}
	g.limiter.RecordAttempt(ipAddress, action)
}

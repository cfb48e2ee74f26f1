// Package ratings implements the guarded rating submission path: permission
// gates first, then a retry-executed write with offline fallback, then
// advisory abuse inspection off the critical path.
package ratings

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ratewise/trustcore/internal/abuse"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/guard"
	"github.com/ratewise/trustcore/internal/infra/storage"
	"github.com/ratewise/trustcore/internal/offline"
	"github.com/ratewise/trustcore/internal/ratelimit"
	"github.com/ratewise/trustcore/internal/resilience/retry"
)

const ratingsCollection = "ratings"

// SubmitInput is one rating submission.
type SubmitInput struct {
	UserID     string
	BusinessID string
	Scores     map[string]float64
	Total      float64
	Comment    string
	IPAddress  string
}

// Service coordinates rating writes.
type Service struct {
	guard    *guard.Guard
	limiter  *ratelimit.Limiter
	detector *abuse.Detector
	repo     storage.RatingRepository
	executor *retry.Executor
	queue    *offline.Queue
	log      *slog.Logger
}

// NewService creates the rating service and registers it as the offline
// queue's replayer.
func NewService(
	g *guard.Guard,
	limiter *ratelimit.Limiter,
	detector *abuse.Detector,
	repo storage.RatingRepository,
	executor *retry.Executor,
	queue *offline.Queue,
	log *slog.Logger,
) *Service {
	s := &Service{
		guard:    g,
		limiter:  limiter,
		detector: detector,
		repo:     repo,
		executor: executor,
		queue:    queue,
		log:      log,
	}
	queue.SetReplayer(s)
	return s
}

// Submit stores a rating. A prior rating by the same user for the same
// business transparently becomes an update (upsert-by-discovery), never an
// error. Rate limit denials surface immediately; network failures retry with
// backoff; offline submissions are queued and acknowledged optimistically.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*domain.Rating, error) {
	decision := s.guard.CanUserRateBusiness(ctx, input.UserID, input.BusinessID)

	isUpdate := false
	rating := &domain.Rating{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		BusinessID: input.BusinessID,
		Scores:     input.Scores,
		Total:      input.Total,
		Comment:    input.Comment,
		IPAddress:  input.IPAddress,
	}

	switch {
	case decision.CanRate:
	case decision.Reason == guard.ReasonDuplicateRating:
		// Route the repeat submission to an update of the existing rating.
		isUpdate = true
		rating.ID = decision.ExistingRatingID
	case decision.Reason == guard.ReasonRateLimited:
		return nil, domain.NewError(domain.KindRateLimited, "rating.submit", nil).
			WithContext("retry_after", decision.RetryAfter)
	default:
		return nil, domain.NewError(domain.KindPermissionDenied, "rating.submit", nil).
			WithContext("reason", decision.Reason)
	}

	opName := "rating.create"
	opType := domain.OperationTypeCreate
	if isUpdate {
		opName = "rating.update"
		opType = domain.OperationTypeUpdate
	}

	opInfo := &domain.PendingOperation{
		OperationName: opName,
		OperationType: opType,
		Collection:    ratingsCollection,
		DocumentID:    rating.ID,
		Data:          ratingToData(rating),
	}

	// The check above granted permission; the attempt below consumes quota
	// whether or not it ultimately succeeds.
	s.limiter.RecordAttempt(input.UserID, ratelimit.ActionRatingSubmit)

	persisted := false
	result, err := offline.ExecuteWithFallback(ctx, s.queue, func(ctx context.Context) (*domain.Rating, error) {
		return retry.Execute(ctx, s.executor, s.executor.DefaultOptions(opName), func(ctx context.Context) (*domain.Rating, error) {
			if err := s.write(ctx, rating, isUpdate); err != nil {
				return nil, err
			}
			persisted = true
			return rating, nil
		})
	}, &rating, opInfo)
	if err != nil {
		return nil, err
	}

	// Advisory heuristics run after the write and must never affect it. A
	// queued submission is only acknowledged, not stored; its inspection
	// happens when the replay lands.
	if persisted {
		go s.inspect(result, isUpdate)
	}

	return result, nil
}

// write persists the rating and keeps the business aggregate in step so one
// (user, business) pair contributes exactly one rating.
func (s *Service) write(ctx context.Context, rating *domain.Rating, isUpdate bool) error {
	if !isUpdate {
		if err := s.repo.Create(ctx, rating); err != nil {
			return err
		}
		return s.repo.UpdateAggregate(ctx, rating.BusinessID, rating.Total, 1)
	}

	old, err := s.repo.GetByUserAndBusiness(ctx, rating.UserID, rating.BusinessID)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, rating); err != nil {
		return err
	}

	delta := rating.Total
	if old != nil {
		delta = rating.Total - old.Total
	}
	return s.repo.UpdateAggregate(ctx, rating.BusinessID, delta, 0)
}

func (s *Service) inspect(rating *domain.Rating, repeat bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.detector.InspectRating(ctx, rating, repeat)
}

// Replay re-executes a queued rating write during an offline sync pass.
func (s *Service) Replay(ctx context.Context, op domain.PendingOperation) error {
	if op.Collection != ratingsCollection {
		return domain.NewError(domain.KindUnknown, "rating.replay", nil).
			WithContext("collection", op.Collection)
	}

	rating, err := ratingFromData(op.DocumentID, op.Data)
	if err != nil {
		return err
	}

	// A queued create may race a later direct write; re-discover before
	// replaying so the upsert policy holds.
	existing, err := s.repo.GetByUserAndBusiness(ctx, rating.UserID, rating.BusinessID)
	if err != nil {
		return err
	}
	isUpdate := existing != nil
	if isUpdate {
		rating.ID = existing.ID
	}
	if err := s.write(ctx, rating, isUpdate); err != nil {
		return err
	}

	go s.inspect(rating, isUpdate)
	return nil
}

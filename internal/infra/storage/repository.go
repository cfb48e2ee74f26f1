package storage

import (
	"context"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// RatingRepository handles rating storage operations.
type RatingRepository interface {
	// Create inserts a new rating.
	Create(ctx context.Context, rating *domain.Rating) error

	// Update overwrites an existing rating's scores and comment.
	Update(ctx context.Context, rating *domain.Rating) error

	// GetByUserAndBusiness returns the user's rating for a business, or nil.
	GetByUserAndBusiness(ctx context.Context, userID, businessID string) (*domain.Rating, error)

	// CountByUserSince counts a user's ratings created after the cutoff.
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error)

	// ListByIP returns ratings submitted from an IP address, newest first.
	ListByIP(ctx context.Context, ipAddress string) ([]*domain.Rating, error)

	// GetAggregate returns the rating rollup for a business, or nil.
	GetAggregate(ctx context.Context, businessID string) (*domain.BusinessAggregate, error)

	// UpdateAggregate applies a rating delta to the business rollup.
	// countDelta is 1 for a new rating, 0 for an update in place.
	UpdateAggregate(ctx context.Context, businessID string, scoreDelta float64, countDelta int) error
}

// FlagRepository handles suspicious-activity flag storage.
type FlagRepository interface {
	// Create persists a flag.
	Create(ctx context.Context, flag *domain.SuspiciousActivityFlag) error

	// ListActiveByUser returns a user's active flags.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.SuspiciousActivityFlag, error)

	// UpdateStatus moves a flag through the review workflow.
	UpdateStatus(ctx context.Context, flagID string, status domain.FlagStatus) error
}

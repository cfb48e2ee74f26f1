package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// RatingRepo implements storage.RatingRepository using PostgreSQL.
type RatingRepo struct {
	db *DB
}

// NewRatingRepo creates a new PostgreSQL rating repository.
func NewRatingRepo(db *DB) *RatingRepo {
	return &RatingRepo{db: db}
}

type ratingRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	BusinessID string    `db:"business_id"`
	Scores     []byte    `db:"scores"`
	Total      float64   `db:"total"`
	Comment    string    `db:"comment"`
	IPAddress  string    `db:"ip_address"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r ratingRow) toDomain() (*domain.Rating, error) {
	rating := &domain.Rating{
		ID:         r.ID,
		UserID:     r.UserID,
		BusinessID: r.BusinessID,
		Total:      r.Total,
		Comment:    r.Comment,
		IPAddress:  r.IPAddress,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Scores) > 0 {
		if err := json.Unmarshal(r.Scores, &rating.Scores); err != nil {
			return nil, fmt.Errorf("failed to decode scores: %w", err)
		}
	}
	return rating, nil
}

// Create inserts a new rating.
func (r *RatingRepo) Create(ctx context.Context, rating *domain.Rating) error {
	scores, err := json.Marshal(rating.Scores)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}

	query := `
		INSERT INTO ratings (id, user_id, business_id, scores, total, comment, ip_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		rating.ID, rating.UserID, rating.BusinessID, scores,
		rating.Total, rating.Comment, rating.IPAddress,
	); err != nil {
		return fmt.Errorf("failed to create rating: %w", err)
	}
	return nil
}

// Update overwrites an existing rating's scores and comment.
func (r *RatingRepo) Update(ctx context.Context, rating *domain.Rating) error {
	scores, err := json.Marshal(rating.Scores)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}

	query := `
		UPDATE ratings
		SET scores = $2, total = $3, comment = $4, ip_address = $5, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query,
		rating.ID, scores, rating.Total, rating.Comment, rating.IPAddress,
	); err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

// GetByUserAndBusiness returns the user's rating for a business, or nil.
func (r *RatingRepo) GetByUserAndBusiness(ctx context.Context, userID, businessID string) (*domain.Rating, error) {
	query := `
		SELECT id, user_id, business_id, scores, total, comment, ip_address, created_at, updated_at
		FROM ratings
		WHERE user_id = $1 AND business_id = $2
	`
	var row ratingRow
	err := r.db.GetContext(ctx, &row, query, userID, businessID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return row.toDomain()
}

// CountByUserSince counts a user's ratings created after the cutoff.
func (r *RatingRepo) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM ratings WHERE user_id = $1 AND created_at > $2`
	if err := r.db.GetContext(ctx, &count, query, userID, since); err != nil {
		return 0, fmt.Errorf("failed to count ratings: %w", err)
	}
	return count, nil
}

// ListByIP returns ratings submitted from an IP address, newest first.
func (r *RatingRepo) ListByIP(ctx context.Context, ipAddress string) ([]*domain.Rating, error) {
	query := `
		SELECT id, user_id, business_id, scores, total, comment, ip_address, created_at, updated_at
		FROM ratings
		WHERE ip_address = $1
		ORDER BY created_at DESC
	`
	var rows []ratingRow
	if err := r.db.SelectContext(ctx, &rows, query, ipAddress); err != nil {
		return nil, fmt.Errorf("failed to list ratings by ip: %w", err)
	}

	ratings := make([]*domain.Rating, 0, len(rows))
	for _, row := range rows {
		rating, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

// GetAggregate returns the rating rollup for a business, or nil.
func (r *RatingRepo) GetAggregate(ctx context.Context, businessID string) (*domain.BusinessAggregate, error) {
	query := `
		SELECT business_id, rating_count, total_score, average_score
		FROM business_aggregates
		WHERE business_id = $1
	`
	var agg domain.BusinessAggregate
	err := r.db.GetContext(ctx, &agg, query, businessID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return &agg, nil
}

// UpdateAggregate applies a rating delta to the business rollup.
func (r *RatingRepo) UpdateAggregate(ctx context.Context, businessID string, scoreDelta float64, countDelta int) error {
	query := `
		INSERT INTO business_aggregates (business_id, rating_count, total_score, average_score)
		VALUES ($1, $3, $2, CASE WHEN $3 > 0 THEN $2 / $3 ELSE 0 END)
		ON CONFLICT (business_id) DO UPDATE SET
			rating_count = business_aggregates.rating_count + $3,
			total_score = business_aggregates.total_score + $2,
			average_score = (business_aggregates.total_score + $2) /
				GREATEST(business_aggregates.rating_count + $3, 1)
	`
	if _, err := r.db.ExecContext(ctx, query, businessID, scoreDelta, countDelta); err != nil {
		return fmt.Errorf("failed to update aggregate: %w", err)
	}
	return nil
}

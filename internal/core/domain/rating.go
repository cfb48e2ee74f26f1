package domain

import "time"

// Rating is a single user's rating of a business. Scores are per-category on
// a 0-5 scale; Total is their weighted combination.
type Rating struct {
	ID         string             `json:"id" db:"id"`
	UserID     string             `json:"user_id" db:"user_id"`
	BusinessID string             `json:"business_id" db:"business_id"`
	Scores     map[string]float64 `json:"scores" db:"-"`
	Total      float64            `json:"total" db:"total"`
	Comment    string             `json:"comment" db:"comment"`
	IPAddress  string             `json:"ip_address" db:"ip_address"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`
}

// BusinessAggregate holds the rating rollup for one business. Each
// (user, business) pair contributes exactly one rating to it.
type BusinessAggregate struct {
	BusinessID   string  `json:"business_id" db:"business_id"`
	RatingCount  int     `json:"rating_count" db:"rating_count"`
	TotalScore   float64 `json:"total_score" db:"total_score"`
	AverageScore float64 `json:"average_score" db:"average_score"`
}

// BusinessAttributes is the cached read-side view of a business's inferred
// attributes. The inference itself happens outside this core.
type BusinessAttributes struct {
	BusinessID string         `json:"business_id"`
	Attributes map[string]any `json:"attributes"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

type AccountType string

const (
	AccountTypeFull   AccountType = "full"
	AccountTypeCookie AccountType = "cookie"
)

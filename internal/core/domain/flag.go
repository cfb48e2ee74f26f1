package domain

import "time"

// SuspiciousActivityFlag marks a user for manual review. Flags are advisory:
// they feed the admin review queue and do not block actions by themselves.
type SuspiciousActivityFlag struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Reason    FlagReason     `json:"reason" db:"reason"`
	Evidence  map[string]any `json:"evidence" db:"-"`
	IPAddress string         `json:"ip_address" db:"ip_address"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	Status    FlagStatus     `json:"status" db:"status"`
}

type FlagStatus string

const (
	FlagStatusActive    FlagStatus = "active"
	FlagStatusReviewed  FlagStatus = "reviewed"
	FlagStatusDismissed FlagStatus = "dismissed"
)

type FlagReason string

const (
	FlagReasonDuplicateIP    FlagReason = "duplicate_ip"
	FlagReasonRapidReviewer  FlagReason = "rapid_reviewer"
	FlagReasonExtremeScores  FlagReason = "extreme_scores"
	FlagReasonRepeatBusiness FlagReason = "repeat_business"
)

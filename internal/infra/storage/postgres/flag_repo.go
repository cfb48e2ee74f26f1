package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// FlagRepo implements storage.FlagRepository using PostgreSQL.
type FlagRepo struct {
	db *DB
}

// NewFlagRepo creates a new PostgreSQL flag repository.
func NewFlagRepo(db *DB) *FlagRepo {
	return &FlagRepo{db: db}
}

type flagRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Reason    string    `db:"reason"`
	Evidence  []byte    `db:"evidence"`
	IPAddress string    `db:"ip_address"`
	CreatedAt time.Time `db:"created_at"`
	Status    string    `db:"status"`
}

// Create persists a flag.
func (r *FlagRepo) Create(ctx context.Context, flag *domain.SuspiciousActivityFlag) error {
	evidence, err := json.Marshal(flag.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}

	status := string(flag.Status)
	if status == "" {
		status = string(domain.FlagStatusActive)
	}

	query := `
		INSERT INTO suspicious_flags (id, user_id, reason, evidence, ip_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := r.db.ExecContext(ctx, query,
		flag.ID, flag.UserID, string(flag.Reason), evidence, flag.IPAddress, status,
	); err != nil {
		return fmt.Errorf("failed to create flag: %w", err)
	}
	return nil
}

// ListActiveByUser returns a user's active flags.
func (r *FlagRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.SuspiciousActivityFlag, error) {
	query := `
		SELECT id, user_id, reason, evidence, ip_address, status, created_at
		FROM suspicious_flags
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
	`
	var rows []flagRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}

	flags := make([]*domain.SuspiciousActivityFlag, 0, len(rows))
	for _, row := range rows {
		flag := &domain.SuspiciousActivityFlag{
			ID:        row.ID,
			UserID:    row.UserID,
			Reason:    domain.FlagReason(row.Reason),
			IPAddress: row.IPAddress,
			CreatedAt: row.CreatedAt,
			Status:    domain.FlagStatus(row.Status),
		}
		if len(row.Evidence) > 0 {
			if err := json.Unmarshal(row.Evidence, &flag.Evidence); err != nil {
				return nil, fmt.Errorf("failed to decode evidence: %w", err)
			}
		}
		flags = append(flags, flag)
	}
	return flags, nil
}

// UpdateStatus moves a flag through the review workflow.
func (r *FlagRepo) UpdateStatus(ctx context.Context, flagID string, status domain.FlagStatus) error {
	query := `UPDATE suspicious_flags SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, flagID, string(status)); err != nil {
		return fmt.Errorf("failed to update flag status: %w", err)
	}
	return nil
}

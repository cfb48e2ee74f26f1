// Package abuse detects rating-farm and misuse patterns. Detectors are
// advisory: they feed the admin review queue after a write and never block
// the write path. Lookup failures default to "not suspicious" (fail-open) so
// infrastructure errors cannot lock out legitimate users.
package abuse

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ratewise/trustcore/internal/cache"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/infra/storage"
	"github.com/ratewise/trustcore/internal/metrics"
)

// Config tunes the detection heuristics.
type Config struct {
	DuplicateIPThreshold int           `yaml:"duplicate_ip_threshold"`
	RapidDayThreshold    int           `yaml:"rapid_day_threshold"`
	RapidWeekThreshold   int           `yaml:"rapid_week_threshold"`
	ExtremeLowScore      float64       `yaml:"extreme_low_score"`
	ExtremeHighScore     float64       `yaml:"extreme_high_score"`
	FlagCacheTTL         time.Duration `yaml:"flag_cache_ttl"`
	FlagCacheSize        int           `yaml:"flag_cache_size"`
}

// ApplyDefaults fills unset fields with the production thresholds.
func (c *Config) ApplyDefaults() {
	if c.DuplicateIPThreshold == 0 {
		c.DuplicateIPThreshold = 3
	}
	if c.RapidDayThreshold == 0 {
		c.RapidDayThreshold = 5
	}
	if c.RapidWeekThreshold == 0 {
		c.RapidWeekThreshold = 15
	}
	if c.ExtremeLowScore == 0 {
		c.ExtremeLowScore = 1.0
	}
	if c.ExtremeHighScore == 0 {
		c.ExtremeHighScore = 4.0
	}
	if c.FlagCacheTTL == 0 {
		c.FlagCacheTTL = 5 * time.Minute
	}
	if c.FlagCacheSize == 0 {
		c.FlagCacheSize = 1000
	}
}

// Result is the outcome of a suspicion check.
type Result struct {
	Suspicious bool
	Flags      []domain.FlagReason
}

// Detector evaluates abuse heuristics and manages suspicious-activity flags.
type Detector struct {
	cfg     Config
	ratings storage.RatingRepository
	flags   storage.FlagRepository
	// cache holds each user's active flag reasons for a few minutes so the
	// hot permission path rarely touches storage.
	cache *cache.Cache[[]domain.FlagReason]
	log   *slog.Logger
}

// NewDetector creates a detector over the given repositories.
func NewDetector(cfg Config, ratings storage.RatingRepository, flags storage.FlagRepository, log *slog.Logger) *Detector {
	cfg.ApplyDefaults()
	return &Detector{
		cfg:     cfg,
		ratings: ratings,
		flags:   flags,
		cache:   cache.New[[]domain.FlagReason]("user_flags", cfg.FlagCacheTTL, cfg.FlagCacheSize, time.Minute),
		log:     log,
	}
}

// CheckSuspicious reports whether userID has active flags. Storage failures
// are logged and reported as not suspicious.
func (d *Detector) CheckSuspicious(ctx context.Context, userID, action string) Result {
	if reasons, ok := d.cache.Get(userID); ok {
		return Result{Suspicious: len(reasons) > 0, Flags: reasons}
	}

	flags, err := d.flags.ListActiveByUser(ctx, userID)
	if err != nil {
		d.log.Warn("flag lookup failed, failing open",
			"user", userID, "action", action, "error", err)
		return Result{}
	}

	reasons := make([]domain.FlagReason, 0, len(flags))
	for _, f := range flags {
		reasons = append(reasons, f.Reason)
	}
	d.cache.Set(userID, reasons)
	return Result{Suspicious: len(reasons) > 0, Flags: reasons}
}

// Flag persists a flag for userID and invalidates their cached flag set.
func (d *Detector) Flag(ctx context.Context, userID string, reason domain.FlagReason, evidence map[string]any, ipAddress string) error {
	flag := &domain.SuspiciousActivityFlag{
		ID:        uuid.NewString(),
		UserID:    userID,
		Reason:    reason,
		Evidence:  evidence,
		IPAddress: ipAddress,
		Status:    domain.FlagStatusActive,
	}
	if err := d.flags.Create(ctx, flag); err != nil {
		return err
	}

	d.cache.Delete(userID)
	metrics.FlagsRaised.WithLabelValues(string(reason)).Inc()
	d.log.Info("flagged user for review", "user", userID, "reason", reason)
	return nil
}

// InspectRating runs the post-write heuristics for a just-stored rating.
// repeat marks a submission that was converted to an update of an existing
// rating. Detector failures are logged, never returned: inspection must not
// affect the write that triggered it.
func (d *Detector) InspectRating(ctx context.Context, rating *domain.Rating, repeat bool) {
	d.inspectDuplicateIP(ctx, rating)
	d.inspectRapidReviewer(ctx, rating)
	d.inspectExtremeScore(ctx, rating)

	if repeat {
		d.flagOnce(ctx, rating.UserID, domain.FlagReasonRepeatBusiness, map[string]any{
			"business_id": rating.BusinessID,
		}, rating.IPAddress)
	}
}

// inspectDuplicateIP flags every user in an IP cluster once it exceeds the
// threshold. Null and unknown addresses are skipped.
func (d *Detector) inspectDuplicateIP(ctx context.Context, rating *domain.Rating) {
	if rating.IPAddress == "" || rating.IPAddress == "unknown" {
		return
	}

	cluster, err := d.ratings.ListByIP(ctx, rating.IPAddress)
	if err != nil {
		d.log.Warn("duplicate-ip lookup failed", "ip", rating.IPAddress, "error", err)
		return
	}
	if len(cluster) <= d.cfg.DuplicateIPThreshold {
		return
	}

	users := make(map[string]bool)
	for _, r := range cluster {
		users[r.UserID] = true
	}
	for userID := range users {
		d.flagOnce(ctx, userID, domain.FlagReasonDuplicateIP, map[string]any{
			"ip_address":   rating.IPAddress,
			"rating_count": len(cluster),
		}, rating.IPAddress)
	}
}

func (d *Detector) inspectRapidReviewer(ctx context.Context, rating *domain.Rating) {
	day, err := d.ratings.CountByUserSince(ctx, rating.UserID, time.Now().Add(-24*time.Hour))
	if err != nil {
		d.log.Warn("rapid-reviewer lookup failed", "user", rating.UserID, "error", err)
		return
	}
	week, err := d.ratings.CountByUserSince(ctx, rating.UserID, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		d.log.Warn("rapid-reviewer lookup failed", "user", rating.UserID, "error", err)
		return
	}

	if day >= d.cfg.RapidDayThreshold || week >= d.cfg.RapidWeekThreshold {
		d.flagOnce(ctx, rating.UserID, domain.FlagReasonRapidReviewer, map[string]any{
			"ratings_24h": day,
			"ratings_7d":  week,
		}, rating.IPAddress)
	}
}

func (d *Detector) inspectExtremeScore(ctx context.Context, rating *domain.Rating) {
	if rating.Total > d.cfg.ExtremeLowScore && rating.Total < d.cfg.ExtremeHighScore {
		return
	}
	d.flagOnce(ctx, rating.UserID, domain.FlagReasonExtremeScores, map[string]any{
		"business_id": rating.BusinessID,
		"total":       rating.Total,
	}, rating.IPAddress)
}

// flagOnce creates a flag unless the user already carries an active one with
// the same reason.
func (d *Detector) flagOnce(ctx context.Context, userID string, reason domain.FlagReason, evidence map[string]any, ipAddress string) {
	existing, err := d.flags.ListActiveByUser(ctx, userID)
	if err != nil {
		d.log.Warn("flag dedup lookup failed", "user", userID, "error", err)
		return
	}
	for _, f := range existing {
		if f.Reason == reason {
			return
		}
	}

	if err := d.Flag(ctx, userID, reason, evidence, ipAddress); err != nil {
		d.log.Warn("failed to persist flag", "user", userID, "reason", reason, "error", err)
	}
}

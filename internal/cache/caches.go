package cache

import (
	"context"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// Config holds the TTL and size bound for one named cache.
type Config struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// SetConfig configures the three read-side caches.
type SetConfig struct {
	Attributes Config        `yaml:"attributes"`
	Scores     Config        `yaml:"scores"`
	Batch      Config        `yaml:"batch"`
	SweepEvery time.Duration `yaml:"sweep_every"`
}

// ApplyDefaults fills unset fields with the production policy:
// attributes 1h/1000, scores 30m/500, batch 5m/50.
func (c *SetConfig) ApplyDefaults() {
	if c.Attributes.TTL == 0 {
		c.Attributes.TTL = time.Hour
	}
	if c.Attributes.MaxSize == 0 {
		c.Attributes.MaxSize = 1000
	}
	if c.Scores.TTL == 0 {
		c.Scores.TTL = 30 * time.Minute
	}
	if c.Scores.MaxSize == 0 {
		c.Scores.MaxSize = 500
	}
	if c.Batch.TTL == 0 {
		c.Batch.TTL = 5 * time.Minute
	}
	if c.Batch.MaxSize == 0 {
		c.Batch.MaxSize = 50
	}
	if c.SweepEvery == 0 {
		c.SweepEvery = time.Minute
	}
}

// Set bundles the read-side caches with independent policies.
//
// Scores is keyed "placeID:preferencesHash" so a preference change can
// invalidate by hash suffix without touching other users' entries.
type Set struct {
	Attributes *Cache[domain.BusinessAttributes]
	Scores     *Cache[float64]
	Batch      *Cache[map[string]domain.BusinessAttributes]
}

// NewSet builds the cache set from config.
func NewSet(cfg SetConfig) *Set {
	cfg.ApplyDefaults()
	return &Set{
		Attributes: New[domain.BusinessAttributes]("attributes", cfg.Attributes.TTL, cfg.Attributes.MaxSize, cfg.SweepEvery),
		Scores:     New[float64]("scores", cfg.Scores.TTL, cfg.Scores.MaxSize, cfg.SweepEvery),
		Batch:      New[map[string]domain.BusinessAttributes]("batch", cfg.Batch.TTL, cfg.Batch.MaxSize, cfg.SweepEvery),
	}
}

// Run starts all cleanup sweeps and blocks until ctx is canceled.
func (s *Set) Run(ctx context.Context) {
	go s.Attributes.Run(ctx)
	go s.Scores.Run(ctx)
	s.Batch.Run(ctx)
}

// InvalidatePreferences drops every cached score computed with the given
// preferences hash.
func (s *Set) InvalidatePreferences(preferencesHash string) int {
	return s.Scores.InvalidateSuffix(":" + preferencesHash)
}

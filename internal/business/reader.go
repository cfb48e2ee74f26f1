// Package business serves read-heavy business lookups through the named
// caches, so repeated page views never fan out to the backend.
package business

import (
	"context"
	"sort"
	"strings"

	"github.com/ratewise/trustcore/internal/cache"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/resilience/retry"
)

// Fetcher loads business data from the backend. Implementations live outside
// this core.
type Fetcher interface {
	FetchAttributes(ctx context.Context, businessID string) (domain.BusinessAttributes, error)
	FetchScore(ctx context.Context, businessID, preferencesHash string) (float64, error)
}

// Reader answers attribute and relevance lookups cache-first; misses go to
// the backend through the retry executor.
type Reader struct {
	caches   *cache.Set
	fetcher  Fetcher
	executor *retry.Executor
}

// NewReader creates a reader over the given cache set.
func NewReader(caches *cache.Set, fetcher Fetcher, executor *retry.Executor) *Reader {
	return &Reader{caches: caches, fetcher: fetcher, executor: executor}
}

// Attributes returns a business's attributes, cached for the attribute
// cache's TTL.
func (r *Reader) Attributes(ctx context.Context, businessID string) (domain.BusinessAttributes, error) {
	if attrs, ok := r.caches.Attributes.Get(businessID); ok {
		return attrs, nil
	}

	attrs, err := retry.Execute(ctx, r.executor, r.executor.DefaultOptions("business.attributes"),
		func(ctx context.Context) (domain.BusinessAttributes, error) {
			return r.fetcher.FetchAttributes(ctx, businessID)
		})
	if err != nil {
		return domain.BusinessAttributes{}, err
	}

	r.caches.Attributes.Set(businessID, attrs)
	return attrs, nil
}

// RelevanceScore returns the personalization score for a business under the
// given preferences hash, cached per (business, hash) pair.
func (r *Reader) RelevanceScore(ctx context.Context, businessID, preferencesHash string) (float64, error) {
	key := businessID + ":" + preferencesHash
	if score, ok := r.caches.Scores.Get(key); ok {
		return score, nil
	}

	score, err := retry.Execute(ctx, r.executor, r.executor.DefaultOptions("business.score"),
		func(ctx context.Context) (float64, error) {
			return r.fetcher.FetchScore(ctx, businessID, preferencesHash)
		})
	if err != nil {
		return 0, err
	}

	r.caches.Scores.Set(key, score)
	return score, nil
}

// BatchAttributes returns attributes for several businesses. The whole batch
// result is cached briefly under a key derived from the sorted ID set;
// misses fall back to per-business lookups, which hit the attribute cache.
func (r *Reader) BatchAttributes(ctx context.Context, businessIDs []string) (map[string]domain.BusinessAttributes, error) {
	key := batchKey(businessIDs)
	if batch, ok := r.caches.Batch.Get(key); ok {
		return batch, nil
	}

	out := make(map[string]domain.BusinessAttributes, len(businessIDs))
	for _, id := range businessIDs {
		attrs, err := r.Attributes(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = attrs
	}

	r.caches.Batch.Set(key, out)
	return out, nil
}

// InvalidatePreferences drops every cached score for a stale preferences
// hash after the user changes their preferences.
func (r *Reader) InvalidatePreferences(preferencesHash string) int {
	return r.caches.InvalidatePreferences(preferencesHash)
}

func batchKey(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

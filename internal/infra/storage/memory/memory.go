package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// MemoryStorage backs the repositories with in-process maps, for tests and
// database-less runs.
type MemoryStorage struct {
	mu         sync.RWMutex
	ratings    map[string]*domain.Rating // keyed user_id|business_id
	flags      map[string]*domain.SuspiciousActivityFlag
	aggregates map[string]*domain.BusinessAggregate
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		ratings:    make(map[string]*domain.Rating),
		flags:      make(map[string]*domain.SuspiciousActivityFlag),
		aggregates: make(map[string]*domain.BusinessAggregate),
	}
}

func ratingKey(userID, businessID string) string {
	return userID + "|" + businessID
}

// -----------------------------------------------------------------------------
// Rating Repository
// -----------------------------------------------------------------------------

type RatingRepo struct {
	store *MemoryStorage
}

func NewRatingRepo(store *MemoryStorage) *RatingRepo {
	return &RatingRepo{store: store}
}

func (r *RatingRepo) Create(ctx context.Context, rating *domain.Rating) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cp := *rating
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.store.ratings[ratingKey(rating.UserID, rating.BusinessID)] = &cp
	return nil
}

func (r *RatingRepo) Update(ctx context.Context, rating *domain.Rating) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := ratingKey(rating.UserID, rating.BusinessID)
	existing, ok := r.store.ratings[key]
	if !ok {
		return nil
	}
	cp := *rating
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	r.store.ratings[key] = &cp
	return nil
}

func (r *RatingRepo) GetByUserAndBusiness(ctx context.Context, userID, businessID string) (*domain.Rating, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rating, ok := r.store.ratings[ratingKey(userID, businessID)]
	if !ok {
		return nil, nil
	}
	cp := *rating
	return &cp, nil
}

func (r *RatingRepo) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, rating := range r.store.ratings {
		if rating.UserID == userID && rating.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *RatingRepo) ListByIP(ctx context.Context, ipAddress string) ([]*domain.Rating, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Rating
	for _, rating := range r.store.ratings {
		if rating.IPAddress == ipAddress {
			cp := *rating
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RatingRepo) GetAggregate(ctx context.Context, businessID string) (*domain.BusinessAggregate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	agg, ok := r.store.aggregates[businessID]
	if !ok {
		return nil, nil
	}
	cp := *agg
	return &cp, nil
}

func (r *RatingRepo) UpdateAggregate(ctx context.Context, businessID string, scoreDelta float64, countDelta int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	agg, ok := r.store.aggregates[businessID]
	if !ok {
		agg = &domain.BusinessAggregate{BusinessID: businessID}
		r.store.aggregates[businessID] = agg
	}
	agg.RatingCount += countDelta
	agg.TotalScore += scoreDelta
	if agg.RatingCount > 0 {
		agg.AverageScore = agg.TotalScore / float64(agg.RatingCount)
	} else {
		agg.AverageScore = 0
	}
	return nil
}

// -----------------------------------------------------------------------------
// Flag Repository
// -----------------------------------------------------------------------------

type FlagRepo struct {
	store *MemoryStorage
}

func NewFlagRepo(store *MemoryStorage) *FlagRepo {
	return &FlagRepo{store: store}
}

func (r *FlagRepo) Create(ctx context.Context, flag *domain.SuspiciousActivityFlag) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cp := *flag
	if cp.Status == "" {
		cp.Status = domain.FlagStatusActive
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.flags[flag.ID] = &cp
	return nil
}

func (r *FlagRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.SuspiciousActivityFlag, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.SuspiciousActivityFlag
	for _, flag := range r.store.flags {
		if flag.UserID == userID && flag.Status == domain.FlagStatusActive {
			cp := *flag
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *FlagRepo) UpdateStatus(ctx context.Context, flagID string, status domain.FlagStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if flag, ok := r.store.flags[flagID]; ok {
		flag.Status = status
	}
	return nil
}

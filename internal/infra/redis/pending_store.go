package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// pendingKey is the single well-known key holding the offline queue. The
// whole queue is stored as one JSON array so it survives a process restart.
const pendingKey = "trustcore:pending_operations"

// PendingStore persists the offline operation queue in Redis. It implements
// offline.Store.
type PendingStore struct {
	client *Client
}

// NewPendingStore creates a pending-operation store on the given client.
func NewPendingStore(client *Client) *PendingStore {
	return &PendingStore{client: client}
}

// Load reads the queued operations. A missing key is an empty queue.
func (s *PendingStore) Load(ctx context.Context) ([]domain.PendingOperation, error) {
	raw, err := s.client.rdb.Get(ctx, pendingKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending operations: %w", err)
	}

	var ops []domain.PendingOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		return nil, fmt.Errorf("failed to decode pending operations: %w", err)
	}
	return ops, nil
}

// Save replaces the queue. An empty queue deletes the key.
func (s *PendingStore) Save(ctx context.Context, ops []domain.PendingOperation) error {
	if len(ops) == 0 {
		if err := s.client.rdb.Del(ctx, pendingKey).Err(); err != nil {
			return fmt.Errorf("failed to clear pending operations: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode pending operations: %w", err)
	}
	if err := s.client.rdb.Set(ctx, pendingKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save pending operations: %w", err)
	}
	return nil
}

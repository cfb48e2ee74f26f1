package offline

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ratewise/trustcore/internal/core/domain"
)

// Store persists the pending-operation queue. Implementations keep the whole
// queue as one JSON array under a single well-known key so it survives a
// process restart.
type Store interface {
	Load(ctx context.Context) ([]domain.PendingOperation, error)
	Save(ctx context.Context, ops []domain.PendingOperation) error
}

// Prober reports whether the backend is currently reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// HTTPProber checks connectivity with a HEAD request against the backend
// health endpoint.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates a prober for the given health URL.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Probe returns true when the health endpoint answers with a non-5xx status.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// MemoryStore keeps the queue in memory, for tests and redis-less runs.
type MemoryStore struct {
	mu  sync.Mutex
	ops []domain.PendingOperation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) ([]domain.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PendingOperation, len(s.ops))
	copy(out, s.ops)
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, ops []domain.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops = make([]domain.PendingOperation, len(ops))
	copy(s.ops, ops)
	return nil
}

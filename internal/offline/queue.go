// Package offline persists writes attempted without connectivity and replays
// them once the backend is reachable again.
package offline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ratewise/trustcore/internal/core/domain"
	"github.com/ratewise/trustcore/internal/metrics"
)

// Config tunes the offline queue and its connectivity prober.
type Config struct {
	ProbeURL     string        `yaml:"probe_url"`
	ProbeEvery   time.Duration `yaml:"probe_every"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ProbeEvery == 0 {
		c.ProbeEvery = 15 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 5 * time.Second
	}
}

// Replayer re-executes a queued operation against the backend.
type Replayer interface {
	Replay(ctx context.Context, op domain.PendingOperation) error
}

// ReplayerFunc adapts a function to the Replayer interface.
type ReplayerFunc func(ctx context.Context, op domain.PendingOperation) error

func (f ReplayerFunc) Replay(ctx context.Context, op domain.PendingOperation) error {
	return f(ctx, op)
}

// Queue is the durable offline operation queue. Connectivity comes from a
// Prober loop; the offline -> online transition triggers a sync pass.
type Queue struct {
	cfg      Config
	store    Store
	prober   Prober
	replayer Replayer
	log      *slog.Logger

	online atomic.Bool
	// queueMu serializes read-modify-write cycles against the store.
	queueMu sync.Mutex
	// syncing prevents overlapping sync passes from concurrent online events.
	syncing atomic.Bool

	startOnce sync.Once
}

// New creates a queue. The initial connectivity state is online; the prober
// corrects it on its first pass.
func New(cfg Config, store Store, prober Prober, log *slog.Logger) *Queue {
	cfg.ApplyDefaults()
	q := &Queue{
		cfg:    cfg,
		store:  store,
		prober: prober,
		log:    log,
	}
	q.online.Store(true)
	return q
}

// SetReplayer installs the replay handler used by sync passes.
func (q *Queue) SetReplayer(r Replayer) {
	q.replayer = r
}

// IsOnline reports the last observed connectivity state.
func (q *Queue) IsOnline() bool {
	return q.online.Load()
}

// SetOnline records a connectivity observation. A transition from offline to
// online kicks off a sync pass in the background.
func (q *Queue) SetOnline(ctx context.Context, online bool) {
	was := q.online.Swap(online)
	if online && !was {
		q.log.Info("connectivity restored, replaying pending operations")
		go q.SyncPending(ctx)
	}
	if !online && was {
		q.log.Warn("connectivity lost, queueing writes for replay")
	}
}

// QueueOperation appends op to the durable queue. A missing ID or timestamp
// is filled in here.
func (q *Queue) QueueOperation(ctx context.Context, op domain.PendingOperation) error {
	q.queueMu.Lock()
	defer q.queueMu.Unlock()

	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	op.Status = domain.OperationStatusPending

	ops, err := q.store.Load(ctx)
	if err != nil {
		return err
	}
	ops = append(ops, op)
	if err := q.store.Save(ctx, ops); err != nil {
		return err
	}

	metrics.PendingOperations.Set(float64(len(ops)))
	q.log.Info("queued operation for offline replay",
		"operation", op.OperationName, "collection", op.Collection, "queued", len(ops))
	return nil
}

// Pending returns a snapshot of the queued operations.
func (q *Queue) Pending(ctx context.Context) ([]domain.PendingOperation, error) {
	q.queueMu.Lock()
	defer q.queueMu.Unlock()
	return q.store.Load(ctx)
}

// ExecuteWithFallback runs fn if online. Offline, or on a network failure,
// it queues opInfo (when given) and returns fallback (when given) instead of
// the error; with neither, an offline-kind error surfaces.
func ExecuteWithFallback[T any](
	ctx context.Context,
	q *Queue,
	fn func(ctx context.Context) (T, error),
	fallback *T,
	opInfo *domain.PendingOperation,
) (T, error) {
	var zero T

	if !q.IsOnline() {
		return degrade(ctx, q, zero, fallback, opInfo, nil)
	}

	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	classified := domain.Classify("", err)
	if classified.Kind == domain.KindNetwork || classified.Kind == domain.KindOffline {
		if fallback != nil {
			return degrade(ctx, q, zero, fallback, opInfo, err)
		}
	}
	return zero, err
}

func degrade[T any](
	ctx context.Context,
	q *Queue,
	zero T,
	fallback *T,
	opInfo *domain.PendingOperation,
	cause error,
) (T, error) {
	if opInfo != nil {
		if err := q.QueueOperation(ctx, *opInfo); err != nil {
			q.log.Error("failed to queue pending operation", "error", err)
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return zero, domain.NewError(domain.KindOffline, opName(opInfo), cause)
}

func opName(opInfo *domain.PendingOperation) string {
	if opInfo == nil {
		return "offline"
	}
	return opInfo.OperationName
}

// SyncPending drains a snapshot of the queue in FIFO order. Succeeded
// operations are removed; failures bump the retry count and record the error;
// an operation reaching the replay cap is dropped permanently. Overlapping
// calls are coalesced: only one sync pass runs at a time.
func (q *Queue) SyncPending(ctx context.Context) {
	if !q.syncing.CompareAndSwap(false, true) {
		return
	}
	defer q.syncing.Store(false)

	if q.replayer == nil {
		return
	}

	q.queueMu.Lock()
	snapshot, err := q.store.Load(ctx)
	q.queueMu.Unlock()
	if err != nil {
		q.log.Error("failed to load pending operations", "error", err)
		return
	}
	if len(snapshot) == 0 {
		return
	}

	var remaining []domain.PendingOperation
	for _, op := range snapshot {
		if err := q.replayer.Replay(ctx, op); err != nil {
			op.RetryCount++
			op.LastError = err.Error()
			if op.RetryCount >= domain.MaxReplayAttempts {
				q.log.Warn("dropping pending operation after replay cap",
					"operation", op.OperationName, "id", op.ID, "attempts", op.RetryCount, "error", err)
				continue
			}
			remaining = append(remaining, op)
			continue
		}
		q.log.Info("replayed pending operation", "operation", op.OperationName, "id", op.ID)
	}

	q.queueMu.Lock()
	defer q.queueMu.Unlock()

	// Keep anything queued while this pass was running.
	current, err := q.store.Load(ctx)
	if err != nil {
		q.log.Error("failed to reload pending operations", "error", err)
		return
	}
	seen := make(map[string]bool, len(snapshot))
	for _, op := range snapshot {
		seen[op.ID] = true
	}
	for _, op := range current {
		if !seen[op.ID] {
			remaining = append(remaining, op)
		}
	}

	if err := q.store.Save(ctx, remaining); err != nil {
		q.log.Error("failed to save pending operations", "error", err)
		return
	}
	metrics.PendingOperations.Set(float64(len(remaining)))
}

// Run starts the connectivity probe loop and blocks until ctx is canceled.
// Calling Run more than once is a no-op beyond the first call.
func (q *Queue) Run(ctx context.Context) {
	started := false
	q.startOnce.Do(func() { started = true })
	if !started {
		return
	}

	// Probe once up front and replay whatever survived a restart; the
	// steady online state never produces a transition, so queued
	// operations from a previous process would otherwise sit forever.
	if q.prober.Probe(ctx) {
		q.SyncPending(ctx)
	} else {
		q.SetOnline(ctx, false)
	}

	ticker := time.NewTicker(q.cfg.ProbeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.SetOnline(ctx, q.prober.Probe(ctx))
		}
	}
}

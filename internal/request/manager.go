// Package request provides the timeout, cancellation, and bookkeeping
// envelope around every outbound generation call.
package request

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/pkg/models"
)

// DefaultTimeout bounds a generation call when no explicit timeout is configured.
const DefaultTimeout = 60 * time.Second

// Fn is the wrapped generation call. It must honor ctx cancellation, but the
// manager does not rely on it doing so: a call that ignores its context still
// yields a timeout to the caller, and its late result is discarded.
type Fn func(ctx context.Context) (models.GenerationResult, error)

// operation is one tracked in-flight call. The entry doubles as the epoch
// token: once removed from the table, any result it later produces is stale.
type operation struct {
	id       string
	taskID   string
	provider models.ProviderID
	cancel   context.CancelFunc
}

// Manager wraps generation calls with a cancellable timeout and tracks all
// in-flight operations for bulk cancellation and orphan reconciliation.
type Manager struct {
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]*operation

	// discarded counts late results dropped after timeout or cancellation.
	discarded atomic.Uint64
}

// NewManager creates a Manager. A non-positive timeout selects DefaultTimeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{timeout: timeout, inflight: make(map[string]*operation)}
}

// Run executes fn under the manager's timeout. On expiry the underlying call
// is cancelled and the caller receives a TIMEOUT-kind error; a result that
// arrives after that is discarded, never returned.
func (m *Manager) Run(ctx context.Context, taskID string, providerID models.ProviderID, fn Fn) (models.GenerationResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.timeout)

	op := &operation{
		id:       uuid.New().String(),
		taskID:   taskID,
		provider: providerID,
		cancel:   cancel,
	}
	m.mu.Lock()
	m.inflight[op.id] = op
	m.mu.Unlock()

	type outcome struct {
		res models.GenerationResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(opCtx)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if !m.retire(op.id) {
			// Cancelled while fn was finishing: the timeout/cancel outcome
			// already won, this result must not reach task state.
			m.discarded.Add(1)
			cancel()
			return models.GenerationResult{}, cancelError(opCtx, providerID)
		}
		cancel()
		return out.res, out.err

	case <-opCtx.Done():
		m.retire(op.id)
		cancel()
		// Swallow the late result so the worker goroutine can exit.
		go func() {
			<-done
			m.discarded.Add(1)
		}()
		return models.GenerationResult{}, cancelError(opCtx, providerID)
	}
}

// cancelError translates a done context into the taxonomy.
func cancelError(ctx context.Context, providerID models.ProviderID) error {
	if ctx.Err() == context.DeadlineExceeded {
		return provider.NewError(provider.KindTimeout, providerID, "generation call timed out")
	}
	return provider.NewError(provider.KindTimeout, providerID, "generation call cancelled")
}

// retire removes an operation from the in-flight table. It returns false when
// the operation was already retired, meaning the caller's result is stale.
func (m *Manager) retire(opID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[opID]; !ok {
		return false
	}
	delete(m.inflight, opID)
	return true
}

// CancelAll cancels every tracked operation. Idempotent: repeated calls on an
// empty table are no-ops.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	ops := make([]*operation, 0, len(m.inflight))
	for _, op := range m.inflight {
		ops = append(ops, op)
	}
	m.inflight = make(map[string]*operation)
	m.mu.Unlock()

	for _, op := range ops {
		op.cancel()
	}
}

// CancelTask cancels any in-flight operation for the given task.
func (m *Manager) CancelTask(taskID string) {
	m.mu.Lock()
	var ops []*operation
	for id, op := range m.inflight {
		if op.taskID == taskID {
			ops = append(ops, op)
			delete(m.inflight, id)
		}
	}
	m.mu.Unlock()

	for _, op := range ops {
		op.cancel()
	}
}

// InFlight reports whether a tracked operation exists for the given task.
// The executor uses this to spot in_progress tasks with no live request.
func (m *Manager) InFlight(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.inflight {
		if op.taskID == taskID {
			return true
		}
	}
	return false
}

// Count returns the number of tracked operations.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// Discarded returns how many late results have been dropped.
func (m *Manager) Discarded() uint64 {
	return m.discarded.Load()
}

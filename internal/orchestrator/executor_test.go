package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/internal/request"
	"github.com/openvibe/vibeboard/pkg/models"
)

// fakeResolver returns a canned resolution or error.
type fakeResolver struct {
	res provider.Resolution
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, preferred models.ProviderID) (provider.Resolution, error) {
	return f.res, f.err
}

// fakeAdapter records the prompts it sees and answers from a script.
type fakeAdapter struct {
	id models.ProviderID

	mu      sync.Mutex
	prompts []string
	calls   int

	// generate overrides the default canned behavior when set.
	generate func(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error)
}

func (f *fakeAdapter) ID() models.ProviderID { return f.id }

func (f *fakeAdapter) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.calls++
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(ctx, req)
	}
	return models.GenerationResult{Text: "done: " + req.Prompt, Provider: f.id}, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memStore records SaveTask calls.
type memStore struct {
	mu    sync.Mutex
	saved map[string]models.TaskStatus
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]models.TaskStatus)}
}

func (s *memStore) SaveTask(boardID string, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[task.ID] = task.Status
	return nil
}

func (s *memStore) status(id string) (models.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.saved[id]
	return st, ok
}

type executorFixture struct {
	graph    *TaskGraph
	executor *Executor
	adapter  *fakeAdapter
	store    *memStore
	emitter  *EventEmitter
}

func newExecutorFixture(t *testing.T, resolver ProviderResolver, tasks ...*models.Task) *executorFixture {
	t.Helper()
	emitter := NewEventEmitter(100)
	graph := NewTaskGraph("board-1", emitter)
	if err := graph.Build(tasks); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	adapter := &fakeAdapter{id: models.ProviderLocal}
	registry := provider.NewRegistry()
	registry.Register(adapter)

	store := newMemStore()
	exec := NewExecutor(ExecutorConfig{
		Graph:        graph,
		Registry:     registry,
		Selector:     resolver,
		Requests:     request.NewManager(5 * time.Second),
		Store:        store,
		Emitter:      emitter,
		Preferred:    models.ProviderLocal,
		PollInterval: 10 * time.Millisecond,
		MaxTokens:    256,
	})
	return &executorFixture{graph: graph, executor: exec, adapter: adapter, store: store, emitter: emitter}
}

func runToCompletion(t *testing.T, exec *Executor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func localResolver() *fakeResolver {
	return &fakeResolver{res: provider.Resolution{Provider: models.ProviderLocal}}
}

func TestExecutorRunsBoardToCompletion(t *testing.T) {
	fx := newExecutorFixture(t, localResolver(),
		newTask("a"),
		newTask("b", "a"),
		newTask("c", "a"),
		newTask("d", "b", "c"),
	)
	runToCompletion(t, fx.executor)

	counts := fx.graph.Counts()
	if counts.Completed != 4 {
		t.Fatalf("Counts() = %+v, want 4 completed", counts)
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if st, ok := fx.store.status(id); !ok || st != models.TaskStatusCompleted {
			t.Errorf("store status for %s = %v (saved=%v), want completed", id, st, ok)
		}
	}
}

// Dependent tasks never run before their dependencies complete, and the
// dependency's result is part of the dependent's prompt.
func TestExecutorRespectsDependencyOrder(t *testing.T) {
	fx := newExecutorFixture(t, localResolver(), newTask("a"), newTask("b", "a"))
	runToCompletion(t, fx.executor)

	fx.adapter.mu.Lock()
	prompts := append([]string(nil), fx.adapter.prompts...)
	fx.adapter.mu.Unlock()

	if len(prompts) != 2 {
		t.Fatalf("adapter saw %d prompts, want 2", len(prompts))
	}
	if !strings.Contains(prompts[0], "task a") {
		t.Errorf("first prompt = %q, want task a", prompts[0])
	}
	if !strings.Contains(prompts[1], "task b") || !strings.Contains(prompts[1], "done: task a") {
		t.Errorf("second prompt = %q, want task b carrying a's result", prompts[1])
	}
}

// When selection fails entirely, the task fails with the taxonomy error and
// its dependents stay pending; the executor returns instead of spinning.
func TestExecutorFailsTaskWhenNoProviderAvailable(t *testing.T) {
	resolver := &fakeResolver{
		err: provider.NewError(provider.KindNoProviderAvailable, models.ProviderLocal, "nothing configured"),
	}
	fx := newExecutorFixture(t, resolver, newTask("a"), newTask("b", "a"))
	runToCompletion(t, fx.executor)

	a := fx.graph.Task("a")
	if a.Status != models.TaskStatusFailed {
		t.Fatalf("task a status = %s, want failed", a.Status)
	}
	if !strings.Contains(a.Error, string(provider.KindNoProviderAvailable)) {
		t.Errorf("task a error = %q, want NO_PROVIDER_AVAILABLE kind", a.Error)
	}
	if got := fx.graph.Task("b").Status; got != models.TaskStatusPending {
		t.Errorf("task b status = %s, want pending (blocked behind failure)", got)
	}
	if fx.adapter.callCount() != 0 {
		t.Errorf("adapter called %d times, want 0", fx.adapter.callCount())
	}
}

// A fallback resolution is surfaced as an event naming both providers.
func TestExecutorEmitsFallbackEvent(t *testing.T) {
	resolver := &fakeResolver{res: provider.Resolution{
		Provider: models.ProviderLocal,
		FellBack: true,
		From:     models.ProviderAnthropic,
		Reason:   "anthropic unavailable",
	}}
	fx := newExecutorFixture(t, resolver, newTask("a"))
	runToCompletion(t, fx.executor)
	fx.emitter.Close()

	var sawFallback bool
	for ev := range fx.emitter.Events() {
		if ev.Type == EventProviderFallback {
			sawFallback = true
			if ev.Provider != models.ProviderLocal {
				t.Errorf("fallback event provider = %s, want local", ev.Provider)
			}
			if !strings.Contains(ev.Message, "anthropic") || !strings.Contains(ev.Message, "local") {
				t.Errorf("fallback message = %q, want both provider names", ev.Message)
			}
		}
	}
	if !sawFallback {
		t.Error("no provider_fallback event emitted")
	}
}

// Unclassified adapter errors reach the board with an UNKNOWN prefix;
// classified errors keep their own kind.
func TestExecutorTaxonomyPrefixOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		genErr     error
		wantPrefix string
	}{
		{
			name:       "classified error keeps its kind",
			genErr:     provider.NewError(provider.KindRateLimit, models.ProviderLocal, "slow down"),
			wantPrefix: string(provider.KindRateLimit),
		},
		{
			name:       "plain error gets UNKNOWN prefix",
			genErr:     errors.New("something odd"),
			wantPrefix: string(provider.KindUnknown),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newExecutorFixture(t, localResolver(), newTask("a"))
			fx.adapter.generate = func(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
				return models.GenerationResult{}, tt.genErr
			}
			runToCompletion(t, fx.executor)

			a := fx.graph.Task("a")
			if a.Status != models.TaskStatusFailed {
				t.Fatalf("task a status = %s, want failed", a.Status)
			}
			if !strings.HasPrefix(a.Error, tt.wantPrefix) {
				t.Errorf("task a error = %q, want %s prefix", a.Error, tt.wantPrefix)
			}
		})
	}
}

func TestHasStuckTasksAndResetStuck(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	resolver := localResolver()
	fx := newExecutorFixture(t, resolver, newTask("a"))
	fx.adapter.generate = func(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return models.GenerationResult{}, provider.NewError(provider.KindNetwork, models.ProviderLocal, "connection refused")
		}
		return models.GenerationResult{Text: "recovered"}, nil
	}

	runToCompletion(t, fx.executor)
	if fx.graph.Task("a").Status != models.TaskStatusFailed {
		t.Fatalf("task a status = %s, want failed after first run", fx.graph.Task("a").Status)
	}
	if !fx.executor.HasStuckTasks() {
		t.Fatal("HasStuckTasks() = false with a failed task")
	}

	if n := fx.executor.ResetStuck(); n != 1 {
		t.Fatalf("ResetStuck() = %d, want 1", n)
	}
	if st, _ := fx.store.status("a"); st != models.TaskStatusPending {
		t.Errorf("store status after reset = %s, want pending", st)
	}

	// Exactly one more attempt: reset is a single re-queue, not a retry loop.
	runToCompletion(t, fx.executor)
	if fx.graph.Task("a").Status != models.TaskStatusCompleted {
		t.Errorf("task a status = %s, want completed after reset", fx.graph.Task("a").Status)
	}
	mu.Lock()
	total := calls
	mu.Unlock()
	if total != 2 {
		t.Errorf("adapter called %d times, want 2", total)
	}
	if fx.executor.HasStuckTasks() {
		t.Error("HasStuckTasks() = true on a fully completed board")
	}
}

// An in_progress task with no live request and no dispatch goroutine is an
// orphan from a previous process; the next tick returns it to pending.
func TestExecutorReconcilesOrphanedInProgress(t *testing.T) {
	orphan := newTask("a")
	orphan.Status = models.TaskStatusInProgress
	fx := newExecutorFixture(t, localResolver(), orphan)

	runToCompletion(t, fx.executor)

	a := fx.graph.Task("a")
	if a.Status != models.TaskStatusCompleted {
		t.Fatalf("task a status = %s, want completed after reconcile + dispatch", a.Status)
	}
	if fx.adapter.callCount() != 1 {
		t.Errorf("adapter called %d times, want 1", fx.adapter.callCount())
	}
}

// Cancellation stops the board promptly and propagates to in-flight calls.
func TestExecutorRunHonorsContextCancel(t *testing.T) {
	started := make(chan struct{})
	fx := newExecutorFixture(t, localResolver(), newTask("a"))
	fx.adapter.generate = func(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
		close(started)
		<-ctx.Done()
		return models.GenerationResult{}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- fx.executor.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// The board-done event reports the final tally.
func TestExecutorEmitsBoardDone(t *testing.T) {
	fx := newExecutorFixture(t, localResolver(), newTask("a"))
	runToCompletion(t, fx.executor)
	fx.emitter.Close()

	var sawDone bool
	for ev := range fx.emitter.Events() {
		if ev.Type == EventBoardDone {
			sawDone = true
			if !strings.Contains(ev.Message, "1 completed") {
				t.Errorf("board done message = %q, want completion tally", ev.Message)
			}
		}
	}
	if !sawDone {
		t.Error("no board_done event emitted")
	}
}

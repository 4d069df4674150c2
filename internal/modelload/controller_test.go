package modelload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFetcher blocks until released so tests can observe mid-load state.
type fakeFetcher struct {
	mu      sync.Mutex
	fetches atomic.Int32
	gate    chan struct{} // closed to release in-flight fetches
	err     error
	halfway bool // report 0.5 progress before blocking
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{gate: make(chan struct{})}
}

func (f *fakeFetcher) Fetch(ctx context.Context, model Model, dir string, progress func(float64)) error {
	f.fetches.Add(1)
	if f.halfway {
		progress(0.5)
	}
	<-f.gate
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func testCatalog() *Catalog {
	return NewCatalog([]Model{
		{ID: "small", ParamBytes: 100, FileName: "small.gguf"},
		{ID: "large", ParamBytes: 200, FileName: "large.gguf"},
	})
}

func TestLoadUnknownModel(t *testing.T) {
	c := NewController(testCatalog(), newFakeFetcher(), t.TempDir())
	if err := c.Load(context.Background(), "ghost"); err == nil {
		t.Error("Load() of unknown model expected error")
	}
}

func TestLoadMakesModelResident(t *testing.T) {
	f := newFakeFetcher()
	close(f.gate)
	c := NewController(testCatalog(), f, t.TempDir())

	if err := c.Load(context.Background(), "small"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := c.LoadedModel(); got != "small" {
		t.Errorf("LoadedModel() = %q, want %q", got, "small")
	}
	snap := c.Snapshot()
	if snap.State != StateLoaded || snap.Progress != 1 {
		t.Errorf("Snapshot() = %+v, want loaded at full progress", snap)
	}
}

func TestLoadAlreadyResidentIsNoop(t *testing.T) {
	f := newFakeFetcher()
	close(f.gate)
	c := NewController(testCatalog(), f, t.TempDir())

	if err := c.Load(context.Background(), "small"); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(context.Background(), "small"); err != nil {
		t.Fatal(err)
	}
	if n := f.fetches.Load(); n != 1 {
		t.Errorf("fetch count = %d, want 1 for repeat load of resident model", n)
	}
}

// Concurrent loads for the same id collapse into one attempt; every caller
// observes the single outcome.
func TestConcurrentLoadsCollapse(t *testing.T) {
	f := newFakeFetcher()
	c := NewController(testCatalog(), f, t.TempDir())

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- c.Load(context.Background(), "small") }()
	}

	// Wait until the single attempt is running and all callers are parked.
	waitFor(t, func() bool { return c.Snapshot().State == StateLoading })
	close(f.gate)

	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("caller %d: Load() error = %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("caller never unblocked")
		}
	}
	if n := f.fetches.Load(); n != 1 {
		t.Errorf("fetch count = %d, want 1 collapsed attempt", n)
	}
}

// A load for a different id during an in-flight attempt queues behind it and
// replaces the resident model when its turn comes.
func TestLoadDifferentModelQueues(t *testing.T) {
	f := newFakeFetcher()
	c := NewController(testCatalog(), f, t.TempDir())

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- c.Load(context.Background(), "small") }()
	waitFor(t, func() bool { return c.Snapshot().State == StateLoading })
	go func() { second <- c.Load(context.Background(), "large") }()

	// Both attempts go through the same gate; release them as they come.
	close(f.gate)

	if err := <-first; err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := c.LoadedModel(); got != "large" {
		t.Errorf("LoadedModel() = %q, want the queued model %q", got, "large")
	}
	if n := f.fetches.Load(); n != 2 {
		t.Errorf("fetch count = %d, want 2", n)
	}
}

// Mid-load, the snapshot reports loading state and partial progress without
// claiming residency.
func TestSnapshotObservableMidLoad(t *testing.T) {
	f := newFakeFetcher()
	f.halfway = true
	c := NewController(testCatalog(), f, t.TempDir())

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background(), "small") }()
	waitFor(t, func() bool { return c.Snapshot().Progress == 0.5 })

	snap := c.Snapshot()
	if snap.State != StateLoading || snap.ModelID != "small" {
		t.Errorf("Snapshot() = %+v, want loading small", snap)
	}
	if c.LoadedModel() != "" {
		t.Error("LoadedModel() non-empty mid-load")
	}

	close(f.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestLoadFailureSurfacesToAllWaiters(t *testing.T) {
	f := newFakeFetcher()
	f.err = errors.New("download failed")
	c := NewController(testCatalog(), f, t.TempDir())

	errs := make(chan error, 2)
	go func() { errs <- c.Load(context.Background(), "small") }()
	waitFor(t, func() bool { return c.Snapshot().State == StateLoading })
	go func() { errs <- c.Load(context.Background(), "small") }()
	waitFor(t, func() bool { return f.fetches.Load() == 1 })
	close(f.gate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			t.Errorf("waiter %d: Load() error = nil, want failure", i)
		}
	}
	snap := c.Snapshot()
	if snap.State != StateError || snap.Error == "" {
		t.Errorf("Snapshot() = %+v, want error state with message", snap)
	}
	if c.LoadedModel() != "" {
		t.Error("LoadedModel() non-empty after failed load")
	}
}

// The caller's ctx bounds the wait, not the attempt: a caller timing out does
// not abort the shared download.
func TestLoadWaitRespectsContext(t *testing.T) {
	f := newFakeFetcher()
	c := NewController(testCatalog(), f, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Load(ctx, "small")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Load() error = %v, want deadline exceeded", err)
	}

	// The attempt is still alive; releasing it completes the load.
	close(f.gate)
	waitFor(t, func() bool { return c.LoadedModel() == "small" })
}

func TestUnload(t *testing.T) {
	f := newFakeFetcher()
	close(f.gate)
	c := NewController(testCatalog(), f, t.TempDir())

	if err := c.Load(context.Background(), "small"); err != nil {
		t.Fatal(err)
	}
	c.Unload()
	if c.LoadedModel() != "" {
		t.Error("LoadedModel() non-empty after Unload")
	}
	if got := c.Snapshot().State; got != StateUnloaded {
		t.Errorf("state = %s, want unloaded", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

package modelload

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// State is the load-lifecycle state of the local runtime.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateError    State = "error"
)

// Snapshot is the externally observable mid-load view, safe to poll.
type Snapshot struct {
	State    State   `json:"state"`
	ModelID  string  `json:"model_id,omitempty"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// waiter is one caller blocked on an attempt's outcome.
type waiter chan error

// queued is a load request for a different model id, parked behind the
// current attempt. Only one local model is resident at a time.
type queued struct {
	modelID string
	done    waiter
}

// Controller drives asynchronous local model loads. Concurrent loads for the
// same id collapse into one attempt; all callers observe the same outcome.
type Controller struct {
	catalog *Catalog
	fetcher Fetcher
	dir     string

	mu       sync.Mutex
	state    State
	modelID  string // resident model when loaded, target while loading
	progress float64
	lastErr  error
	waiters  []waiter
	queue    []queued

	watcher *fsnotify.Watcher
	watchWg sync.WaitGroup
}

// NewController creates a Controller storing weights under dir.
func NewController(catalog *Catalog, fetcher Fetcher, dir string) *Controller {
	return &Controller{
		catalog: catalog,
		fetcher: fetcher,
		dir:     dir,
		state:   StateUnloaded,
	}
}

// LoadedModel returns the resident model id, or "" when none is loaded.
func (c *Controller) LoadedModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoaded {
		return c.modelID
	}
	return ""
}

// Progress returns the in-flight load progress in [0,1].
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Snapshot returns the observable load state. Valid mid-load.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, ModelID: c.modelID, Progress: c.progress}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}

// Load makes modelID resident. Already loaded: immediate success. Same id
// in-flight: joins that attempt. Different id in-flight: queued behind it.
// The attempt itself is detached from the caller's ctx — a caller giving up
// must not abort a download other callers are waiting on — but the wait
// respects ctx.
func (c *Controller) Load(ctx context.Context, modelID string) error {
	if _, ok := c.catalog.Get(modelID); !ok {
		return fmt.Errorf("unknown local model %q", modelID)
	}

	c.mu.Lock()
	if c.state == StateLoaded && c.modelID == modelID {
		c.mu.Unlock()
		return nil
	}

	done := make(waiter, 1)
	switch {
	case c.state == StateLoading && c.modelID == modelID:
		c.waiters = append(c.waiters, done)
	case c.state == StateLoading:
		c.queue = append(c.queue, queued{modelID: modelID, done: done})
	default:
		c.waiters = append(c.waiters, done)
		c.begin(modelID)
	}
	c.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin transitions to loading and starts the attempt goroutine.
// Caller must hold c.mu.
func (c *Controller) begin(modelID string) {
	c.state = StateLoading
	c.modelID = modelID
	c.progress = 0
	c.lastErr = nil
	go c.run(modelID)
}

// run performs one load attempt and settles waiters.
func (c *Controller) run(modelID string) {
	model, _ := c.catalog.Get(modelID)

	err := c.fetcher.Fetch(context.Background(), model, c.dir, func(p float64) {
		c.mu.Lock()
		if c.state == StateLoading && c.modelID == modelID {
			c.progress = clamp01(p)
		}
		c.mu.Unlock()
	})

	c.mu.Lock()
	if err != nil {
		c.state = StateError
		c.lastErr = err
	} else {
		c.state = StateLoaded
		c.modelID = modelID
		c.progress = 1
	}
	settled := c.waiters
	c.waiters = nil

	// A queued request for another model starts now, replacing the resident
	// one; an errored attempt does not block the queue either.
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.waiters = append(c.waiters, next.done)
		c.begin(next.modelID)
	}
	c.mu.Unlock()

	for _, w := range settled {
		w <- err
	}
}

// Unload drops the resident model. Used by explicit cache-clear.
func (c *Controller) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoaded {
		c.state = StateUnloaded
		c.modelID = ""
		c.progress = 0
	}
}

// Watch starts an fsnotify watcher on the models directory so out-of-band
// weight file deletion demotes the resident model instead of leaving the
// engine pointing at a file that no longer exists.
func (c *Controller) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(c.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}
	c.watcher = w

	c.watchWg.Add(1)
	go func() {
		defer c.watchWg.Done()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					c.onFileRemoved(ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("[modelload] watcher error: %v", err)
			}
		}
	}()
	return nil
}

// onFileRemoved demotes the resident model if its weight file went away.
func (c *Controller) onFileRemoved(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoaded {
		return
	}
	model, ok := c.catalog.Get(c.modelID)
	if !ok {
		return
	}
	if filepath.Base(path) == model.FileName {
		log.Printf("[modelload] resident model file removed: %s", path)
		c.state = StateUnloaded
		c.modelID = ""
		c.progress = 0
	}
}

// Close stops the watcher, if started.
func (c *Controller) Close() error {
	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	c.watchWg.Wait()
	return err
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

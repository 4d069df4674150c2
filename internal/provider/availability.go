package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openvibe/vibeboard/pkg/models"
)

// LocalModelStatus exposes the resident-model state of the local runtime.
// Implemented by the model load controller.
type LocalModelStatus interface {
	// LoadedModel returns the resident model id, or "" when none is loaded.
	LoadedModel() string
	// Progress returns the in-flight load progress in [0,1].
	Progress() float64
}

// CheckerConfig configures availability probing.
type CheckerConfig struct {
	// APIKey is the configured key for the hosted provider, possibly empty.
	APIKey string
	// Endpoint is the self-hosted base URL, possibly empty.
	Endpoint string
	// ProbeTimeout bounds each reachability probe.
	ProbeTimeout time.Duration
	// LocalSupported reports whether the runtime environment can execute
	// local models at all. A model need not be loaded yet.
	LocalSupported func() bool
	// LocalStatus is the resident-model view, used for provider state snapshots.
	LocalStatus LocalModelStatus
	// HTTPClient is used for reachability probes. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Checker probes whether a provider can currently serve requests. Probes are
// cheap and side-effect-free: an API key is checked for presence, not
// validated remotely, and the self-hosted endpoint gets a lightweight
// reachability request.
type Checker struct {
	cfg CheckerConfig

	mu   sync.RWMutex
	last map[models.ProviderID]models.ProviderState
}

// NewChecker creates a Checker.
func NewChecker(cfg CheckerConfig) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Checker{cfg: cfg, last: make(map[models.ProviderID]models.ProviderState)}
}

// Check probes one provider and returns whether it is currently usable.
// The result is cached for snapshot readers; callers needing freshness
// (the selector re-probes on every resolve) just call Check again.
func (c *Checker) Check(ctx context.Context, id models.ProviderID) bool {
	var available bool
	switch id {
	case models.ProviderLocal:
		available = c.cfg.LocalSupported != nil && c.cfg.LocalSupported()
	case models.ProviderAnthropic:
		available = strings.TrimSpace(c.cfg.APIKey) != ""
	case models.ProviderSelfHosted:
		available = c.probeEndpoint(ctx)
	}
	c.record(id, available)
	return available
}

// probeEndpoint performs the self-hosted reachability probe with a couple of
// quick retries. Any 2xx-4xx response counts as reachable: a 404 on the probe
// path still proves the server is up.
func (c *Checker) probeEndpoint(ctx context.Context) bool {
	endpoint := strings.TrimSpace(c.cfg.Endpoint)
	if endpoint == "" {
		return false
	}
	url := strings.TrimRight(endpoint, "/") + "/v1/models"

	probe := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 2), ctx)
	return backoff.Retry(probe, b) == nil
}

// record stores the latest probe result for snapshot readers.
func (c *Checker) record(id models.ProviderID, available bool) {
	st := models.ProviderState{Provider: id, Available: available}
	if id == models.ProviderAnthropic {
		st.RequiresAPIKey = true
	}
	if id == models.ProviderLocal && c.cfg.LocalStatus != nil {
		st.LoadedModel = c.cfg.LocalStatus.LoadedModel()
		st.LoadProgress = c.cfg.LocalStatus.Progress()
	}
	c.mu.Lock()
	c.last[id] = st
	c.mu.Unlock()
}

// Invalidate drops the cached state for a provider, forcing the next snapshot
// reader to see no stale result.
func (c *Checker) Invalidate(id models.ProviderID) {
	c.mu.Lock()
	delete(c.last, id)
	c.mu.Unlock()
}

// States returns the last recorded probe results.
func (c *Checker) States() []models.ProviderState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ProviderState, 0, len(c.last))
	for _, st := range c.last {
		out = append(out, st)
	}
	return out
}

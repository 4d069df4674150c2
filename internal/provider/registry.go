package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/openvibe/vibeboard/pkg/models"
)

// Adapter is the uniform generation surface each provider implements.
type Adapter interface {
	// ID identifies the provider this adapter serves.
	ID() models.ProviderID
	// Generate performs one generation call. It must honor ctx cancellation.
	Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error)
}

// Spec holds static metadata about one provider.
type Spec struct {
	// ID identifies the provider.
	ID models.ProviderID
	// DisplayName is the operator-facing name.
	DisplayName string
	// RequiresAPIKey is true for hosted providers that need a configured key.
	RequiresAPIKey bool
	// Local is true for the locally-executed model runtime.
	Local bool
	// FallbackRank orders providers for fallback selection; lower runs first.
	FallbackRank int
}

// Registry holds provider specs and their adapters, plus the fixed fallback
// preference order. It is process-wide state with explicit construction, not
// ambient lookup.
type Registry struct {
	mu       sync.RWMutex
	specs    map[models.ProviderID]Spec
	adapters map[models.ProviderID]Adapter
}

// NewRegistry creates a registry pre-populated with the built-in provider
// specs. Adapters are registered separately so tests can install fakes.
func NewRegistry() *Registry {
	r := &Registry{
		specs:    make(map[models.ProviderID]Spec),
		adapters: make(map[models.ProviderID]Adapter),
	}
	for _, s := range builtinSpecs() {
		r.specs[s.ID] = s
	}
	return r
}

// builtinSpecs returns the fixed provider metadata. The fallback order is:
// local model (when one is already loaded), then the self-hosted endpoint,
// then the hosted API-key provider.
func builtinSpecs() []Spec {
	return []Spec{
		{ID: models.ProviderLocal, DisplayName: "Local model", Local: true, FallbackRank: 0},
		{ID: models.ProviderSelfHosted, DisplayName: "Self-hosted endpoint", FallbackRank: 1},
		{ID: models.ProviderAnthropic, DisplayName: "Anthropic API", RequiresAPIKey: true, FallbackRank: 2},
	}
}

// Register installs an adapter for its provider id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Adapter returns the adapter for the given provider id, or nil.
func (r *Registry) Adapter(id models.ProviderID) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// Spec returns the metadata for a provider id.
func (r *Registry) Spec(id models.ProviderID) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[id]
	return s, ok
}

// FallbackOrder returns all provider ids sorted by fallback rank.
// The order is fixed: selection must be deterministic and explainable.
func (r *Registry) FallbackOrder() []models.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].FallbackRank < specs[j].FallbackRank })
	ids := make([]models.ProviderID, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

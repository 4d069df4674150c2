package provider

import (
	"context"
	"fmt"

	"github.com/openvibe/vibeboard/pkg/models"
)

// ModelLoader is the slice of the model load controller the selector needs:
// enough to see whether a model is resident and to trigger a load.
type ModelLoader interface {
	LoadedModel() string
	Load(ctx context.Context, modelID string) error
}

// ModelPicker picks a default local model when the user has not configured one.
type ModelPicker interface {
	// DefaultModel returns the preferred model id by the documented size
	// ranking, or an error when no local model is known.
	DefaultModel() (string, error)
}

// Resolution is the outcome of provider selection. FellBack is set whenever
// the effective provider differs from the preferred one; callers must surface
// it ("X unavailable, used Y instead"), it is not optional telemetry.
type Resolution struct {
	Provider models.ProviderID
	FellBack bool
	From     models.ProviderID
	Reason   string
}

// Selector translates a preferred provider id into one that can actually
// serve the next request, with deterministic fallback.
type Selector struct {
	registry *Registry
	checker  *Checker
	loader   ModelLoader
	picker   ModelPicker
	// configuredModel is the user's explicit local model choice, if any.
	configuredModel string
}

// NewSelector creates a Selector.
func NewSelector(registry *Registry, checker *Checker, loader ModelLoader, picker ModelPicker, configuredModel string) *Selector {
	return &Selector{
		registry:        registry,
		checker:         checker,
		loader:          loader,
		picker:          picker,
		configuredModel: configuredModel,
	}
}

// Resolve returns a usable provider for the request. Given the same checker
// responses it always returns the same result for the same preferred id.
func (s *Selector) Resolve(ctx context.Context, preferred models.ProviderID) (Resolution, error) {
	reason := ""

	spec, known := s.registry.Spec(preferred)
	switch {
	case !known:
		reason = fmt.Sprintf("unknown provider %q", preferred)
	case spec.Local:
		// Local preferred: a resident model short-circuits; otherwise try to
		// load one before giving up on the preference.
		if s.loader != nil && s.loader.LoadedModel() != "" {
			return Resolution{Provider: preferred}, nil
		}
		if err := s.ensureLocalModel(ctx); err == nil {
			return Resolution{Provider: preferred}, nil
		} else {
			reason = fmt.Sprintf("local model load failed: %v", err)
		}
	default:
		if s.checker.Check(ctx, preferred) {
			return Resolution{Provider: preferred}, nil
		}
		reason = fmt.Sprintf("%s unavailable", preferred)
	}

	// Fixed priority order: local only counts here when a model is already
	// loaded; loading on behalf of a non-local preference would trade one
	// unavailable provider for a long blocking download.
	for _, id := range s.registry.FallbackOrder() {
		if id == preferred {
			continue
		}
		fs, _ := s.registry.Spec(id)
		if fs.Local {
			if s.loader == nil || s.loader.LoadedModel() == "" {
				continue
			}
			return Resolution{Provider: id, FellBack: true, From: preferred, Reason: reason}, nil
		}
		if s.checker.Check(ctx, id) {
			return Resolution{Provider: id, FellBack: true, From: preferred, Reason: reason}, nil
		}
	}

	return Resolution{}, NewError(KindNoProviderAvailable, preferred,
		"no provider available (%s); check API key, endpoint, and local runtime configuration", reason)
}

// ensureLocalModel loads a local model if the runtime supports it: the user's
// configured model when set, else the catalog's size-ranked default.
func (s *Selector) ensureLocalModel(ctx context.Context) error {
	if s.loader == nil {
		return NewError(KindModelUnavailable, models.ProviderLocal, "no local runtime configured")
	}
	if !s.checker.Check(ctx, models.ProviderLocal) {
		return NewError(KindModelUnavailable, models.ProviderLocal, "local execution not supported in this environment")
	}
	modelID := s.configuredModel
	if modelID == "" {
		if s.picker == nil {
			return NewError(KindModelUnavailable, models.ProviderLocal, "no local model configured and no catalog available")
		}
		picked, err := s.picker.DefaultModel()
		if err != nil {
			return err
		}
		modelID = picked
	}
	return s.loader.Load(ctx, modelID)
}

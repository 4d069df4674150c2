// Package local implements the provider adapter for the locally-executed
// model runtime. Model residency is owned by the load controller; this
// adapter only performs generation against whatever model is resident.
package local

import (
	"context"

	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/pkg/models"
)

// Runtime is the local inference surface. The default implementation talks to
// the embedded runtime process over localhost; tests install fakes.
type Runtime interface {
	// Generate runs one completion against the given resident model.
	Generate(ctx context.Context, modelID string, req models.GenerationRequest) (models.GenerationResult, error)
}

// Adapter serves generation requests from the resident local model.
type Adapter struct {
	runtime Runtime
	status  provider.LocalModelStatus
}

// New creates a local adapter.
func New(runtime Runtime, status provider.LocalModelStatus) *Adapter {
	return &Adapter{runtime: runtime, status: status}
}

// ID implements provider.Adapter.
func (a *Adapter) ID() models.ProviderID { return models.ProviderLocal }

// Generate implements provider.Adapter. It refuses when no model is resident:
// loading is the selector's job, never a side effect of generation.
func (a *Adapter) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	modelID := ""
	if a.status != nil {
		modelID = a.status.LoadedModel()
	}
	if modelID == "" {
		return models.GenerationResult{}, provider.NewError(provider.KindModelUnavailable, a.ID(),
			"no local model loaded")
	}
	res, err := a.runtime.Generate(ctx, modelID, req)
	if err != nil {
		if kind := provider.KindOf(err); kind != provider.KindUnknown {
			return models.GenerationResult{}, provider.WrapError(kind, a.ID(), err)
		}
		return models.GenerationResult{}, provider.WrapError(provider.KindUnknown, a.ID(), err)
	}
	res.Provider = a.ID()
	if res.Model == "" {
		res.Model = modelID
	}
	return res, nil
}

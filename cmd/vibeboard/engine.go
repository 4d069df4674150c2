package main

import (
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/openvibe/vibeboard/internal/config"
	"github.com/openvibe/vibeboard/internal/modelload"
	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/internal/provider/anthropicp"
	"github.com/openvibe/vibeboard/internal/provider/local"
	"github.com/openvibe/vibeboard/internal/provider/selfhosted"
	"github.com/openvibe/vibeboard/internal/request"
)

// engine bundles the provider/request/model-load services with one lifecycle:
// built on first use, shut down explicitly. It is process-wide, not
// board-scoped.
type engine struct {
	cfg      *config.Config
	registry *provider.Registry
	checker  *provider.Checker
	selector *provider.Selector
	requests *request.Manager
	loader   *modelload.Controller
}

// buildEngine wires the provider layer from configuration.
func buildEngine(cfg *config.Config) (*engine, error) {
	catalog := modelload.BuiltinCatalog()
	loader := modelload.NewController(catalog, modelload.NewHTTPFetcher(), cfg.Models.Dir)
	if err := loader.Watch(); err != nil {
		// Watching is best-effort; loads still work without it.
		log.Printf("[engine] models dir watch disabled: %v", err)
	}

	registry := provider.NewRegistry()

	localSupported := func() bool { return cfg.Providers.Local.RuntimeURL != "" }
	checker := provider.NewChecker(provider.CheckerConfig{
		APIKey:         cfg.Providers.Anthropic.APIKey,
		Endpoint:       cfg.Providers.SelfHosted.Endpoint,
		ProbeTimeout:   cfg.Timeouts.Probe,
		LocalSupported: localSupported,
		LocalStatus:    loader,
	})

	if cfg.Providers.Local.RuntimeURL != "" {
		runtime := local.NewHTTPRuntime(cfg.Providers.Local.RuntimeURL)
		registry.Register(local.New(runtime, loader))
	}
	if cfg.Providers.SelfHosted.Endpoint != "" {
		registry.Register(selfhosted.New(selfhosted.Config{
			BaseURL:      cfg.Providers.SelfHosted.Endpoint,
			APIKey:       cfg.Providers.SelfHosted.APIKey,
			DefaultModel: cfg.Providers.SelfHosted.Model,
		}))
	}
	if cfg.Providers.Anthropic.APIKey != "" || cfg.Providers.Anthropic.UseAWSBedrock {
		adapter, err := anthropicp.New(anthropicp.Config{
			APIKey:        cfg.Providers.Anthropic.APIKey,
			Model:         anthropic.Model(cfg.Providers.Anthropic.Model),
			UseAWSBedrock: cfg.Providers.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Providers.Anthropic.AWSRegion,
			AWSProfile:    cfg.Providers.Anthropic.AWSProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		registry.Register(adapter)
	}

	selector := provider.NewSelector(registry, checker, loader, catalog, cfg.Providers.Local.Model)

	return &engine{
		cfg:      cfg,
		registry: registry,
		checker:  checker,
		selector: selector,
		requests: request.NewManager(cfg.Timeouts.Request),
		loader:   loader,
	}, nil
}

// shutdown cancels in-flight work and releases the engine's resources.
func (e *engine) shutdown() {
	e.requests.CancelAll()
	if err := e.loader.Close(); err != nil {
		log.Printf("[engine] close model watcher: %v", err)
	}
}

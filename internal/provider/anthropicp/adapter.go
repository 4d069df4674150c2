// Package anthropicp implements the hosted Anthropic provider adapter,
// either against the direct API or AWS Bedrock.
package anthropicp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/pkg/models"
)

// Config configures the Anthropic adapter.
type Config struct {
	// APIKey is the Anthropic API key. Ignored when UseAWSBedrock is set.
	APIKey string
	// Model is the default model when a request does not pin one.
	Model anthropic.Model
	// UseAWSBedrock routes calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region, e.g. "us-west-2".
	AWSRegion string
	// AWSProfile is the optional shared-config profile name.
	AWSProfile string
}

// Adapter wraps the Anthropic SDK client.
type Adapter struct {
	inner anthropic.Client
	model anthropic.Model
}

// New creates an Anthropic adapter.
func New(cfg Config) (*Adapter, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, provider.NewError(provider.KindAPIKeyMissing, models.ProviderAnthropic,
				"no API key configured")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &Adapter{inner: anthropic.NewClient(opts...), model: model}, nil
}

// ID implements provider.Adapter.
func (a *Adapter) ID() models.ProviderID { return models.ProviderAnthropic }

// Generate implements provider.Adapter.
func (a *Adapter) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	model := a.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	start := time.Now()
	resp, err := a.inner.Messages.New(ctx, params)
	if err != nil {
		return models.GenerationResult{}, classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	return models.GenerationResult{
		Text:         text,
		Provider:     models.ProviderAnthropic,
		Model:        string(resp.Model),
		Duration:     time.Since(start),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// classify folds SDK errors into the shared taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return provider.FromHTTPStatus(models.ProviderAnthropic, apiErr.StatusCode, apiErr.Error())
	}
	if kind := provider.KindOf(err); kind != provider.KindUnknown {
		return provider.WrapError(kind, models.ProviderAnthropic, err)
	}
	return provider.WrapError(provider.KindNetwork, models.ProviderAnthropic,
		fmt.Errorf("API call failed: %w", err))
}

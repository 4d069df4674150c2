package models

import "time"

// ProviderID identifies a generative-AI backend.
type ProviderID string

const (
	// ProviderLocal is the locally-executed model runtime.
	ProviderLocal ProviderID = "local"
	// ProviderSelfHosted is a user-operated OpenAI-compatible endpoint.
	ProviderSelfHosted ProviderID = "selfhosted"
	// ProviderAnthropic is the hosted Anthropic API (or Bedrock).
	ProviderAnthropic ProviderID = "anthropic"
)

// Valid returns true if the provider id is a known value.
func (p ProviderID) Valid() bool {
	switch p {
	case ProviderLocal, ProviderSelfHosted, ProviderAnthropic:
		return true
	default:
		return false
	}
}

// GenerationRequest is the provider-agnostic input to a generation call.
// It is a value object passed by value through the pipeline.
type GenerationRequest struct {
	// Prompt is the full prompt text, including any dependency results.
	Prompt string `json:"prompt"`
	// System is an optional system/instruction prefix.
	System string `json:"system,omitempty"`
	// MaxTokens caps the generated output length.
	MaxTokens int `json:"max_tokens"`
	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature"`
	// Model optionally pins a provider-specific model id.
	Model string `json:"model,omitempty"`
}

// GenerationResult is the provider-agnostic output of a generation call.
type GenerationResult struct {
	// Text is the generated completion.
	Text string `json:"text"`
	// Provider is the provider that actually served the request.
	Provider ProviderID `json:"provider"`
	// Model is the model that produced the text, when reported.
	Model string `json:"model,omitempty"`
	// Duration is wall time spent in the provider call.
	Duration time.Duration `json:"duration"`
	// InputTokens and OutputTokens are usage figures when the provider reports them.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ProviderState is a point-in-time snapshot of one provider's usability.
type ProviderState struct {
	// Provider identifies the backend.
	Provider ProviderID `json:"provider"`
	// Available is the last probe result.
	Available bool `json:"available"`
	// RequiresAPIKey is true for hosted providers that need a configured key.
	RequiresAPIKey bool `json:"requires_api_key"`
	// LoadedModel is the resident local model id, empty when none (local only).
	LoadedModel string `json:"loaded_model,omitempty"`
	// LoadProgress is the in-flight load progress in [0,1] (local only).
	LoadProgress float64 `json:"load_progress,omitempty"`
}

// Package selfhosted implements the provider adapter for a user-operated
// OpenAI-compatible inference endpoint.
package selfhosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openvibe/vibeboard/internal/provider"
	"github.com/openvibe/vibeboard/pkg/models"
)

// Config configures the self-hosted adapter.
type Config struct {
	// BaseURL is the endpoint root, e.g. http://localhost:11434.
	BaseURL string
	// APIKey is optional; some self-hosted gateways require one.
	APIKey string
	// DefaultModel is used when the request does not pin a model.
	DefaultModel string
	// HTTPClient defaults to a client with no transport timeout; the request
	// manager owns the deadline.
	HTTPClient *http.Client
}

// Adapter talks the chat/completions wire format.
type Adapter struct {
	cfg Config
}

// New creates a self-hosted adapter.
func New(cfg Config) *Adapter {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 0}
	}
	return &Adapter{cfg: cfg}
}

// ID implements provider.Adapter.
func (a *Adapter) ID() models.ProviderID { return models.ProviderSelfHosted }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements provider.Adapter.
func (a *Adapter) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationResult, error) {
	if a.cfg.BaseURL == "" {
		return models.GenerationResult{}, provider.NewError(provider.KindNetwork, a.ID(), "no endpoint configured")
	}

	model := req.Model
	if model == "" {
		model = a.cfg.DefaultModel
	}
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return models.GenerationResult{}, provider.WrapError(provider.KindNetwork, a.ID(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	start := time.Now()
	resp, err := a.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		if kind := provider.KindOf(err); kind != provider.KindUnknown {
			return models.GenerationResult{}, provider.WrapError(kind, a.ID(), err)
		}
		return models.GenerationResult{}, provider.WrapError(provider.KindNetwork, a.ID(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return models.GenerationResult{}, provider.WrapError(provider.KindNetwork, a.ID(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.GenerationResult{}, provider.FromHTTPStatus(a.ID(), resp.StatusCode, errorMessage(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return models.GenerationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return models.GenerationResult{}, provider.NewError(provider.KindUnknown, a.ID(), "%s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return models.GenerationResult{}, provider.NewError(provider.KindUnknown, a.ID(), "empty choices in response")
	}

	return models.GenerationResult{
		Text:         parsed.Choices[0].Message.Content,
		Provider:     a.ID(),
		Model:        parsed.Model,
		Duration:     time.Since(start),
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// errorMessage pulls a human-readable message out of an error body, falling
// back to raw text when the body is not the expected JSON shape.
func errorMessage(raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

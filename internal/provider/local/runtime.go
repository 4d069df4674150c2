package local

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

// HTTPRuntime talks to the embedded inference process over localhost using
// the completions wire format.
type HTTPRuntime struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRuntime creates a runtime client for the given localhost base URL.
func NewHTTPRuntime(baseURL string) *HTTPRuntime {
	return &HTTPRuntime{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 0},
	}
}

type runtimeRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type runtimeResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Error string `json:"error,omitempty"`
}

// Generate implements Runtime.
func (r *HTTPRuntime) Generate(ctx context.Context, modelID string, req models.GenerationRequest) (models.GenerationResult, error) {
	body, err := json.Marshal(runtimeRequest{
		Model:       modelID,
		Prompt:      req.Prompt,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return models.GenerationResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return models.GenerationResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return models.GenerationResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return models.GenerationResult{}, provider.FromHTTPStatus(models.ProviderLocal, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed runtimeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return models.GenerationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return models.GenerationResult{}, provider.NewError(provider.KindUnknown, models.ProviderLocal, "%s", parsed.Error)
	}

	return models.GenerationResult{
		Text:     parsed.Text,
		Model:    parsed.Model,
		Duration: time.Since(start),
	}, nil
}

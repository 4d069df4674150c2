package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/openvibe/vibeboard/pkg/models"
)

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    Kind
	}{
		{"unauthorized", 401, "invalid x-api-key", KindAPIKeyMissing},
		{"forbidden", 403, "permission denied", KindAPIKeyMissing},
		{"not found", 404, "model not found", KindModelUnavailable},
		{"request timeout", 408, "", KindTimeout},
		{"rate limited", 429, "rate limit exceeded", KindRateLimit},
		{"server error", 500, "internal error", KindNetwork},
		{"bad gateway", 502, "", KindNetwork},
		{"service unavailable", 503, "", KindNetwork},
		{"gateway timeout", 504, "", KindNetwork},
		{"bad request with policy hint", 400, "blocked by content filter", KindContentPolicy},
		{"bad request with safety hint", 400, "rejected for safety reasons", KindContentPolicy},
		{"unprocessable with model hint", 422, "model does not exist", KindModelUnavailable},
		{"bad request with key hint", 400, "missing api key", KindAPIKeyMissing},
		{"bad request unclassified", 400, "malformed payload", KindUnknown},
		{"teapot", 418, "", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromHTTPStatus(models.ProviderAnthropic, tt.status, tt.message)
			if err.Kind != tt.want {
				t.Errorf("FromHTTPStatus(%d, %q).Kind = %s, want %s", tt.status, tt.message, err.Kind, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

var _ net.Error = (*fakeNetError)(nil)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified error", NewError(KindRateLimit, models.ProviderAnthropic, "x"), KindRateLimit},
		{"wrapped classified error", fmt.Errorf("call: %w", NewError(KindContentPolicy, "", "x")), KindContentPolicy},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"cancelled", context.Canceled, KindTimeout},
		{"net timeout", &fakeNetError{timeout: true}, KindTimeout},
		{"net failure", &fakeNetError{}, KindNetwork},
		{"plain error", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKindRecoverable(t *testing.T) {
	recoverable := []Kind{KindTimeout, KindNetwork, KindRateLimit, KindModelUnavailable, KindContentPolicy}
	for _, k := range recoverable {
		if !k.Recoverable() {
			t.Errorf("%s.Recoverable() = false, want true", k)
		}
	}
	fatal := []Kind{KindAPIKeyMissing, KindNoProviderAvailable, KindInvalidTransition, KindUnknown}
	for _, k := range fatal {
		if k.Recoverable() {
			t.Errorf("%s.Recoverable() = true, want false", k)
		}
	}
}

func TestErrorStringCarriesKindAndProvider(t *testing.T) {
	err := NewError(KindRateLimit, models.ProviderAnthropic, "retry after %ds", 30)
	want := "RATE_LIMIT: anthropic: retry after 30s"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("tls handshake failed")
	err := WrapError(KindNetwork, models.ProviderSelfHosted, cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("KindOf() = %s, want NETWORK", KindOf(err))
	}
}

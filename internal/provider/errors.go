// Package provider implements provider registry, availability probing, and
// preference-ordered provider selection for generation requests.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/openvibe/vibeboard/pkg/models"
)

// Kind is the small taxonomy of failure categories surfaced to tasks.
// These are categories, not exception classes: every provider/transport failure
// is folded into exactly one kind before it reaches the board.
type Kind string

const (
	KindAPIKeyMissing       Kind = "API_KEY_MISSING"
	KindRateLimit           Kind = "RATE_LIMIT"
	KindNetwork             Kind = "NETWORK"
	KindContentPolicy       Kind = "CONTENT_POLICY"
	KindTimeout             Kind = "TIMEOUT"
	KindModelUnavailable    Kind = "MODEL_UNAVAILABLE"
	KindNoProviderAvailable Kind = "NO_PROVIDER_AVAILABLE"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindUnknown             Kind = "UNKNOWN"
)

// Recoverable returns true if a task failure of this kind may be retried via a
// user-triggered reset. Configuration errors are not transient: retrying them
// without operator action cannot succeed.
func (k Kind) Recoverable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindRateLimit, KindModelUnavailable, KindContentPolicy:
		return true
	default:
		return false
	}
}

// Error is the unified error type returned by adapters, the availability
// checker, and the selector.
type Error struct {
	Kind     Kind
	Provider models.ProviderID
	Message  string
	// Status is the HTTP status for transport failures, 0 otherwise.
	Status int
	// Wrapped is the underlying cause, if any.
	Wrapped error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Wrapped != nil {
		msg = e.Wrapped.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Provider, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// NewError constructs an Error of the given kind.
func NewError(kind Kind, provider models.ProviderID, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// WrapError folds an arbitrary failure into the taxonomy, preserving the cause.
func WrapError(kind Kind, provider models.ProviderID, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Wrapped: err}
}

// KindOf classifies an arbitrary error into the taxonomy. Already-classified
// errors keep their kind; context and transport failures get mapped; anything
// else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

// FromHTTPStatus classifies an HTTP transport failure. Ambiguous 4xx codes are
// refined by message hints, the way providers tunnel domain failures in text.
func FromHTTPStatus(provider models.ProviderID, status int, message string) *Error {
	base := &Error{Provider: provider, Message: message, Status: status}
	switch status {
	case 401, 403:
		base.Kind = KindAPIKeyMissing
	case 404:
		base.Kind = KindModelUnavailable
	case 408:
		base.Kind = KindTimeout
	case 429:
		base.Kind = KindRateLimit
	case 400, 422:
		base.Kind = classifyMessage(message)
	case 500, 502, 503, 504:
		base.Kind = KindNetwork
	default:
		base.Kind = KindUnknown
	}
	return base
}

func classifyMessage(message string) Kind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"),
		strings.Contains(lower, "policy"):
		return KindContentPolicy
	case strings.Contains(lower, "model"), strings.Contains(lower, "does not exist"):
		return KindModelUnavailable
	case strings.Contains(lower, "api key"), strings.Contains(lower, "unauthorized"):
		return KindAPIKeyMissing
	default:
		return KindUnknown
	}
}

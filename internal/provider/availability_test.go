package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openvibe/vibeboard/pkg/models"
)

func TestCheckAnthropicKeyPresence(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   bool
	}{
		{"key set", "sk-test", true},
		{"key empty", "", false},
		{"key whitespace", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(CheckerConfig{APIKey: tt.apiKey})
			if got := c.Check(context.Background(), models.ProviderAnthropic); got != tt.want {
				t.Errorf("Check(anthropic) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckLocalFollowsRuntimeSupport(t *testing.T) {
	c := NewChecker(CheckerConfig{LocalSupported: func() bool { return true }})
	if !c.Check(context.Background(), models.ProviderLocal) {
		t.Error("Check(local) = false with supported runtime")
	}
	c = NewChecker(CheckerConfig{})
	if c.Check(context.Background(), models.ProviderLocal) {
		t.Error("Check(local) = true with no runtime support")
	}
}

func TestCheckSelfHostedProbe(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"healthy endpoint", http.StatusOK, true},
		{"probe path missing still reachable", http.StatusNotFound, true},
		{"server erroring", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/models" {
					t.Errorf("probe path = %s, want /v1/models", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewChecker(CheckerConfig{Endpoint: srv.URL, ProbeTimeout: time.Second})
			if got := c.Check(context.Background(), models.ProviderSelfHosted); got != tt.want {
				t.Errorf("Check(selfhosted) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckSelfHostedNoEndpoint(t *testing.T) {
	c := NewChecker(CheckerConfig{})
	if c.Check(context.Background(), models.ProviderSelfHosted) {
		t.Error("Check(selfhosted) = true with no endpoint configured")
	}
}

// A flapping endpoint that recovers within the retry budget still counts.
func TestCheckSelfHostedRetriesProbe(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(CheckerConfig{Endpoint: srv.URL, ProbeTimeout: time.Second})
	if !c.Check(context.Background(), models.ProviderSelfHosted) {
		t.Error("Check(selfhosted) = false, want recovery on retry")
	}
	if calls.Load() < 2 {
		t.Errorf("probe calls = %d, want at least 2", calls.Load())
	}
}

type fixedStatus struct {
	model    string
	progress float64
}

func (f fixedStatus) LoadedModel() string { return f.model }
func (f fixedStatus) Progress() float64   { return f.progress }

func TestStatesSnapshot(t *testing.T) {
	c := NewChecker(CheckerConfig{
		APIKey:         "sk-test",
		LocalSupported: func() bool { return true },
		LocalStatus:    fixedStatus{model: "qwen2.5-0.5b", progress: 1},
	})
	ctx := context.Background()
	c.Check(ctx, models.ProviderLocal)
	c.Check(ctx, models.ProviderAnthropic)

	states := c.States()
	byID := make(map[models.ProviderID]models.ProviderState, len(states))
	for _, st := range states {
		byID[st.Provider] = st
	}

	local, ok := byID[models.ProviderLocal]
	if !ok || !local.Available || local.LoadedModel != "qwen2.5-0.5b" {
		t.Errorf("local state = %+v, want available with resident model", local)
	}
	anth, ok := byID[models.ProviderAnthropic]
	if !ok || !anth.Available || !anth.RequiresAPIKey {
		t.Errorf("anthropic state = %+v, want available and key-requiring", anth)
	}

	c.Invalidate(models.ProviderLocal)
	if len(c.States()) != 1 {
		t.Errorf("States() after Invalidate = %v, want 1 entry", c.States())
	}
}

package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solara-labs/prism-gateway/internal/middleware"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

func TestCheckNilRedisFailsOpen(t *testing.T) {
	l := NewLimiter(nil)
	result, err := l.Check(context.Background(), "bucket", 10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("nil redis must fail open")
	}
}

func withCreds(keys []string, proto protocol.Protocol) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := httptest.NewRequest(r.Method, r.URL.String(), nil)
			switch proto {
			case protocol.ProtocolClaude:
				req.Header.Set("x-api-key", keys[0])
			default:
				req.Header.Set("Authorization", "Bearer "+keys[0])
			}
			middleware.Extract(proto)(next).ServeHTTP(w, req)
		})
	}
}

func TestMiddlewareAllowsAndSetsHeaders(t *testing.T) {
	called := false
	handler := withCreds([]string{"key-a"}, protocol.ProtocolOpenAI)(
		Middleware(NewLimiter(nil), 60, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/v1/chat/completions", nil))

	if !called {
		t.Fatal("expected request to pass through")
	}
	if w.Header().Get(headerLimitRequests) != "60" {
		t.Errorf("expected limit header, got %q", w.Header().Get(headerLimitRequests))
	}
	if w.Header().Get(headerRemainingRequests) == "" {
		t.Error("expected remaining header")
	}
}

func TestMiddlewareDisabledWithZeroRPM(t *testing.T) {
	called := false
	handler := withCreds([]string{"key-a"}, protocol.ProtocolOpenAI)(
		Middleware(NewLimiter(nil), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/v1/chat/completions", nil))

	if !called {
		t.Fatal("expected pass-through with rpm=0")
	}
	if w.Header().Get(headerLimitRequests) != "" {
		t.Error("no rate limit headers when disabled")
	}
}

func TestMiddlewareNoCredentialsPassesThrough(t *testing.T) {
	called := false
	handler := Middleware(NewLimiter(nil), 60, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/chat/completions", nil))
	if !called {
		t.Error("requests without credentials are the extractor's problem, not ours")
	}
}

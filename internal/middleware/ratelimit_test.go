package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInMemoryRateLimitStoreAllowsWithinLimit(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, "client-a", config)
		if !allowed {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
	}
	allowed, retryAfter := store.Allow(ctx, "client-a", config)
	if allowed {
		t.Error("4th request allowed, want blocked")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter = %d, want > 0", retryAfter)
	}
}

func TestInMemoryRateLimitStoreKeysAreIndependent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	if allowed, _ := store.Allow(ctx, "client-a", config); !allowed {
		t.Fatal("first request for client-a blocked")
	}
	if allowed, _ := store.Allow(ctx, "client-b", config); !allowed {
		t.Error("client-b blocked by client-a's bucket")
	}
}

func TestInMemoryRateLimitStoreWindowResets(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond}
	ctx := context.Background()

	store.Allow(ctx, "client-a", config)
	if allowed, _ := store.Allow(ctx, "client-a", config); allowed {
		t.Fatal("second request in window allowed")
	}
	time.Sleep(15 * time.Millisecond)
	if allowed, _ := store.Allow(ctx, "client-a", config); !allowed {
		t.Error("request after window expiry blocked")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	handler := RateLimiter(store, config, IPKeyFunc())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestIPKeyFuncPreference(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{"remote addr only", "192.168.1.5:4321", "", "", "192.168.1.5"},
		{"x-forwarded-for wins", "192.168.1.5:4321", "203.0.113.9", "", "203.0.113.9"},
		{"x-real-ip fallback", "192.168.1.5:4321", "", "203.0.113.7", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitConfigValidate(t *testing.T) {
	if err := (RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := (RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}).Validate(); err == nil {
		t.Error("zero RequestsPerWindow accepted")
	}
	if err := (RateLimitConfig{RequestsPerWindow: 10}).Validate(); err == nil {
		t.Error("zero WindowDuration accepted")
	}
}

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/model"
)

func testRateLimiterConfig(generalBurst, credentialBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1, // 1 req/sec
		GeneralBurst:    generalBurst,
		CredentialRate:  0.1,
		CredentialBurst: credentialBurst,
		CleanupInterval: 1 * time.Minute,
	}
}

func requestAs(identityID, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.RemoteAddr = remoteAddr
	if identityID != "" {
		ctx := auth.WithAuthContext(req.Context(), model.AuthContext{IdentityID: identityID, Username: identityID})
		req = req.WithContext(ctx)
	}
	return req
}

// --- GeneralMiddleware (API全般) のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 1))
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("id-1", "10.0.0.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("", "10.0.0.1:1234"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("", "10.0.0.1:5678"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retrySeconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After header should be a number, got %q", resp.Header.Get("Retry-After"))
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

// TestRateLimitMiddleware_IsolatesClients はアカウントとリモートアドレスごとに独立して制限することを検証する。
func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	clients := []*http.Request{
		requestAs("id-1", "10.0.0.1:1000"),
		// 同じアドレスでも別アカウントは別枠
		requestAs("id-2", "10.0.0.1:1000"),
		requestAs("", "10.0.0.2:1000"),
	}
	for i, req := range clients {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("client %d: status = %d, want 200", i, w.Code)
		}
	}

	if got := rl.GeneralLimiterCount(); got != 3 {
		t.Errorf("GeneralLimiterCount = %d, want 3", got)
	}
}

// --- AllowCredential のテスト ---

func TestAllowCredential_UsesClientKeyFromMiddleware(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(10, 2))
	defer rl.Stop()

	var results []bool
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results = append(results, rl.AllowCredential(r.Context()))
	}))

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("", "192.0.2.7:4000"))
	}
	// 別クライアントは影響を受けない
	handler.ServeHTTP(httptest.NewRecorder(), requestAs("", "192.0.2.8:4000"))

	want := []bool{true, true, false, true}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("AllowCredential #%d = %v, want %v", i, results[i], want[i])
		}
	}
	if got := rl.CredentialLimiterCount(); got != 2 {
		t.Errorf("CredentialLimiterCount = %d, want 2", got)
	}
}

// TestAllowCredential_IndependentFromGeneralLimit は資格情報の制限が全般の制限と独立していることを検証する。
func TestAllowCredential_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	ctx := auth.WithAuthContext(context.Background(), model.AuthContext{IdentityID: "id-1", Username: "alice"})
	if !rl.AllowCredential(ctx) {
		t.Fatal("first credential request should be allowed")
	}
	if rl.AllowCredential(ctx) {
		t.Error("second credential request should be limited")
	}

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("id-1", "10.0.0.1:1000"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_CredentialRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	if got := rl.CredentialRetryAfter(); got != 10*time.Second {
		t.Errorf("CredentialRetryAfter = %v, want 10s", got)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig(5, 5)
	cfg.CleanupInterval = 50 * time.Millisecond // テスト用に短く

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.AllowCredential(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), requestAs("id-cleanup", "10.0.0.1:1000"))

	if rl.GeneralLimiterCount() == 0 || rl.CredentialLimiterCount() == 0 {
		t.Fatal("expected limiter entries")
	}

	// TTLはクリーンアップ間隔の2倍（100ms）。200ms待てば削除される
	time.Sleep(200 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 general entries after cleanup, got %d", count)
	}
	if count := rl.CredentialLimiterCount(); count != 0 {
		t.Errorf("expected 0 credential entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

// --- 設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.CredentialRate == 0 {
		t.Error("CredentialRate should not be 0")
	}
	if cfg.CredentialBurst != 10 {
		t.Errorf("CredentialBurst = %d, want 10", cfg.CredentialBurst)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want int
	}{
		{"fast", 10, 1},
		{"one per second", 1, 1},
		{"one per two seconds", 0.5, 2},
		{"zero", 0, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfterSeconds(rate.Limit(tt.rate)); got != tt.want {
				t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.rate, got, tt.want)
			}
		})
	}
}

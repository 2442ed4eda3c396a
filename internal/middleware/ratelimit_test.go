package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    2,
		SyncRate:        rate.Limit(1),
		SyncBurst:       1,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// バーストを超えたリクエストが429になることを検証する。
func TestRateLimiter_GeneralBurstExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After ヘッダーがない")
	}
}

// クライアントIPごとに独立して制限されることを検証する。
func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.SyncTriggerMiddleware()(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/api/sync/run", nil)
	first.RemoteAddr = "10.0.0.1:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first client: status = %d", w.Code)
	}

	// 同一クライアントの2回目はバースト1で拒否
	again := httptest.NewRequest(http.MethodPost, "/api/sync/run", nil)
	again.RemoteAddr = "10.0.0.1:2000" // ポートが違っても同一IP
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, again)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same client: status = %d, want 429", w.Code)
	}

	// 別クライアントは影響を受けない
	other := httptest.NewRequest(http.MethodPost, "/api/sync/run", nil)
	other.RemoteAddr = "10.0.0.2:1000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, other)
	if w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", w.Code)
	}
}

// 取り込みトリガーとAPI全般の制限が独立していることを検証する。
func TestRateLimiter_IndependentBuckets(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	syncHandler := rl.SyncTriggerMiddleware()(okHandler())
	generalHandler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/sync/run", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	w := httptest.NewRecorder()
	syncHandler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: status = %d", w.Code)
	}

	// 取り込みトリガーのバーストを使い切ってもAPI全般は通る
	req = httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	w = httptest.NewRecorder()
	generalHandler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("general: status = %d, want 200", w.Code)
	}
}

// 期限切れエントリがクリーンアップされることを検証する。
func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.CleanupInterval = time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("count = %d, want 1", rl.GeneralLimiterCount())
	}

	deadline := time.After(2 * time.Second)
	for rl.GeneralLimiterCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("期限切れエントリが削除されない")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

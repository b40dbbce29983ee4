package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zapcore"

	"MusicDownloader/internal/logger"
)

func TestCORSReflectsOrigin(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ac", nil)
	req.Header.Set("Origin", "https://web.telegram.org")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://web.telegram.org" {
		t.Fatalf("allow origin = %q", got)
	}

	rec = do(t, srv, http.MethodGet, "/api/ac", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin without Origin = %q", got)
	}
}

func TestCORSWhitelist(t *testing.T) {
	srv, _ := newTestServer(t, nil, WithAllowedOrigins([]string{"https://app.example/"}))

	req := httptest.NewRequest(http.MethodGet, "/api/ac", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/ac", nil)
	req.Header.Set("Origin", "https://app.example")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodOptions, "/api/favorites/add", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/ac", "")
	for _, h := range []string{"Content-Security-Policy", "X-Content-Type-Options", "Cross-Origin-Resource-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("header %s missing", h)
		}
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, nil, WithRateLimit(0.001, 2))
	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodGet, "/api/ac", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/api/ac", "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must bypass the limiter, status = %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.New("TEST"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   zapcore.Level
	}{
		{"/api/top", 200, zapcore.InfoLevel},
		{"/health", 200, zapcore.DebugLevel},
		{"/api/ac", 200, zapcore.DebugLevel},
		{"/api/user/x", 400, zapcore.WarnLevel},
		{"/health", 503, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		if got := pickRequestLogLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("%s %d: got %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("remote = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("forwarded = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestTelegramIDAcceptsStringAndNumber(t *testing.T) {
	var req struct {
		ID telegramID `json:"telegramId"`
	}
	for _, body := range []string{`{"telegramId":123}`, `{"telegramId":"123"}`} {
		if err := json.Unmarshal([]byte(body), &req); err != nil || req.ID != 123 {
			t.Fatalf("%s: id = %d, err = %v", body, req.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(`{"telegramId":"abc"}`), &req); err == nil {
		t.Fatal("non-numeric id must fail")
	}
}

package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/auth"
)

func TestRecoveryReturns500(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "boom")
}

func TestLoggingRecordsStatusAndSize(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/ping", entry["uri"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, float64(15), entry["size"])
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(2, nil)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"*.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/daily", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/metrics/daily", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(1, []string{"10.0.0.0/8"})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.Header.Set("X-Real-IP", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("198.51.100.3"))
}

func TestRateLimiterHonoursTrustedProxy(t *testing.T) {
	rl := NewRateLimiter(1, []string{"10.0.0.0/8", "192.0.2.10"})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(peer, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", nil)
		req.RemoteAddr = peer + ":4000"
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.1.2.3", "198.51.100.1"))
	assert.Equal(t, http.StatusOK, call("192.0.2.10", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.1.2.3", "198.51.100.1"))
	// a spoofed left-most hop does not hide the client the proxy saw
	assert.Equal(t, http.StatusTooManyRequests, call("10.1.2.3", "1.1.1.1, 198.51.100.2"))
}

func TestClientIP(t *testing.T) {
	rl := NewRateLimiter(1, []string{"10.0.0.1", "not-an-ip"})

	tests := []struct {
		name   string
		peer   string
		xff    string
		realIP string
		want   string
	}{
		{"direct", "203.0.113.7:1", "", "", "203.0.113.7"},
		{"untrusted forwarding", "203.0.113.7:1", "198.51.100.1", "198.51.100.9", "203.0.113.7"},
		{"trusted forwarding", "10.0.0.1:1", "198.51.100.1", "", "198.51.100.1"},
		{"trusted chain", "10.0.0.1:1", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"trusted real ip", "10.0.0.1:1", "", "198.51.100.9", "198.51.100.9"},
		{"trusted without headers", "10.0.0.1:1", "", "", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, rl.clientIP(req))
		})
	}
}

func TestJWTAuth(t *testing.T) {
	manager := auth.NewJWTManager("0123456789abcdef0123456789abcdef", time.Hour)
	valid, err := manager.GenerateToken("ops")
	require.NoError(t, err)
	foreign, err := auth.NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour).GenerateToken("ops")
	require.NoError(t, err)

	var subject string
	h := JWTAuth(manager, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = auth.FromContext(r.Context()).Subject
	}))

	tests := []struct {
		name   string
		header string
		status int
		errMsg string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"foreign signature", "Bearer " + foreign, http.StatusUnauthorized, "invalid or expired token"},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, "invalid or expired token"},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.errMsg != "" {
				assert.JSONEq(t, `{"error":"`+tt.errMsg+`"}`, rec.Body.String())
				assert.Empty(t, subject)
				return
			}
			assert.Equal(t, "ops", subject)
		})
	}
}

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vizorai/canvas/internal/log"
)

func TestIPLimiter_Take(t *testing.T) {
	t.Parallel()

	l := newIPLimiter(1, 2) // 1 rps, burst of 2

	assert.True(t, l.take("api:10.0.0.1", l.rps, l.burst))
	assert.True(t, l.take("api:10.0.0.1", l.rps, l.burst))
	assert.False(t, l.take("api:10.0.0.1", l.rps, l.burst), "burst exhausted")

	// A different IP has its own bucket.
	assert.True(t, l.take("api:10.0.0.2", l.rps, l.burst))
}

func TestIPLimiter_StreamBudgetIsSeparate(t *testing.T) {
	t.Parallel()

	l := newIPLimiter(0.001, 1)

	apiReq := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/messages", nil)
	streamReq := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/events", nil)

	assert.True(t, l.allow(apiReq, "10.0.0.1"))
	assert.False(t, l.allow(apiReq, "10.0.0.1"), "api bucket exhausted")

	// Draining the api bucket must not deny an event-stream connect.
	assert.True(t, l.allow(streamReq, "10.0.0.1"))
}

func TestIsStreamRoute(t *testing.T) {
	t.Parallel()

	get := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/events", nil)
	post := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/events", nil)
	other := httptest.NewRequest(http.MethodGet, "/api/sessions/s1", nil)

	assert.True(t, isStreamRoute(get))
	assert.False(t, isStreamRoute(post))
	assert.False(t, isStreamRoute(other))
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	t.Parallel()

	l := newIPLimiter(0.001, 1)
	handler := l.middleware(false, log.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), string(codeRateLimited))
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.168.1.5:1234",
			want:       "192.168.1.5",
		},
		{
			name:       "x-real-ip ignored without trust",
			remoteAddr: "192.168.1.5:1234",
			headers:    map[string]string{"X-Real-IP": "1.2.3.4"},
			want:       "192.168.1.5",
		},
		{
			name:       "x-real-ip honored with trust",
			remoteAddr: "192.168.1.5:1234",
			headers:    map[string]string{"X-Real-IP": "1.2.3.4"},
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:       "x-forwarded-for first entry",
			remoteAddr: "192.168.1.5:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"},
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:       "non-ip header value rejected",
			remoteAddr: "192.168.1.5:1234",
			headers:    map[string]string{"X-Real-IP": "not-an-ip"},
			trustProxy: true,
			want:       "192.168.1.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

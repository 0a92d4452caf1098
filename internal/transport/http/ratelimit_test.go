package http

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRateLimiter(rdb, limit, time.Minute, "test"), mr
}

func TestRedisRateLimiterBlocksAfterLimit(t *testing.T) {
	rl, mr := newTestLimiter(t, 2)
	rejected := 0
	rl.OnReject(func() { rejected++ })

	handler := rl.Middleware(nil, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, rejected)

	// A different client has its own window.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
	req.RemoteAddr = "10.0.0.2:4321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// The window expires.
	mr.FastForward(time.Minute + time.Second)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRedisRateLimiterFailOpen(t *testing.T) {
	rl, mr := newTestLimiter(t, 1)
	mr.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	rl.Middleware(nil, true)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rl.Middleware(nil, false)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRedisRateLimiterIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	rl, _ := newTestLimiter(t, 2)
	handler := rl.Middleware(nil, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	codes := make([]int, 0, 4)
	for _, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRedisRateLimiterClientKey(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	rl.TrustProxies([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer ignores header", "203.0.113.9:5555", "1.1.1.1", "203.0.113.9"},
		{"trusted proxy reports client", "10.1.2.3:80", "198.51.100.4", "198.51.100.4"},
		{"spoofed left hop is skipped", "10.1.2.3:80", "6.6.6.6, 198.51.100.4, 10.9.9.9", "198.51.100.4"},
		{"trusted proxy without header", "10.1.2.3:80", "", "10.1.2.3"},
		{"garbage hop stops the walk", "10.1.2.3:80", "nonsense", "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, rl.clientKey(req))
		})
	}
}

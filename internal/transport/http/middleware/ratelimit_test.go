package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func mustTrusted(t *testing.T, entries ...string) []netip.Prefix {
	t.Helper()
	p, err := ParseTrustedProxies(entries)
	require.NoError(t, err)
	return p
}

func fromPeer(peer string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = peer + ":54321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestClientIP_IgnoresHeadersWithoutTrustedProxies(t *testing.T) {
	req := fromPeer("6.6.6.6", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-Ip": "9.9.9.9"})
	assert.Equal(t, "6.6.6.6", clientIP(req, nil))
}

func TestClientIP_IgnoresHeadersFromUntrustedPeer(t *testing.T) {
	req := fromPeer("6.6.6.6", map[string]string{"X-Forwarded-For": "1.2.3.4"})
	assert.Equal(t, "6.6.6.6", clientIP(req, mustTrusted(t, "10.0.0.0/8")))
}

func TestClientIP_TrustedProxyForwardedFor(t *testing.T) {
	req := fromPeer("10.1.2.3", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8", "X-Real-Ip": "2.2.2.2"})
	assert.Equal(t, "1.2.3.4", clientIP(req, mustTrusted(t, "10.0.0.0/8")))
}

func TestClientIP_TrustedProxyRealIPFallback(t *testing.T) {
	req := fromPeer("10.1.2.3", map[string]string{"X-Real-Ip": "9.10.11.12"})
	assert.Equal(t, "9.10.11.12", clientIP(req, mustTrusted(t, "10.1.2.3")))
}

func TestClientIP_TrustedProxyWithoutHeaders(t *testing.T) {
	assert.Equal(t, "10.1.2.3", clientIP(fromPeer("10.1.2.3", nil), mustTrusted(t, "10.0.0.0/8")))
}

func TestParseTrustedProxies(t *testing.T) {
	p, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.7 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, p, 3)

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestRateLimiter_RotatingForwardedForDoesNotBypass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewRateLimiter(ctx, rate.Limit(0.001), 1, nil).Limit(http.HandlerFunc(okHandler))

	allowed := 0
	for i := 0; i < 20; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, fromPeer("6.6.6.6", map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)}))
		if rr.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func hit(h http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = ip + ":1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewRateLimiter(ctx, rate.Limit(0.001), 2, nil).Limit(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2"), "other clients keep their own bucket")
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeCounter) incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	rl := &RedisRateLimiter{prefix: "rl", limit: 2, window: time.Hour, incr: counter.incr}
	h := rl.Limit(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1"))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "3600", rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2"))
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	rl := &RedisRateLimiter{prefix: "rl", limit: 1, window: time.Minute, incr: counter.incr}
	h := rl.Limit(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1"))
	}
}

func TestRedisRateLimiter_RotatingForwardedForDoesNotBypass(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	rl := &RedisRateLimiter{prefix: "rl", limit: 1, window: time.Hour, incr: counter.incr}
	h := rl.Limit(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, fromPeer("6.6.6.6", map[string]string{"X-Forwarded-For": "10.0.0.1"}))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, fromPeer("6.6.6.6", map[string]string{"X-Forwarded-For": "10.0.0.2"}))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestNewRedisRateLimiter_SubMillisecondWindow(t *testing.T) {
	rl := NewRedisRateLimiter(nil, "rl", 1, 0, nil)
	require.Equal(t, time.Millisecond, rl.window)

	counter := &fakeCounter{counts: map[string]int64{}}
	rl.incr = counter.incr
	h := rl.Limit(http.HandlerFunc(okHandler))

	assert.NotPanics(t, func() { hit(h, "10.0.0.1") })
}

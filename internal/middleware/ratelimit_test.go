package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	handler := RateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 3})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_RejectsBeyondBurst(t *testing.T) {
	handler := RateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	handler := RateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})(okHandler())

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.RemoteAddr = "10.0.0.3:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, a)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Exhausting client A's budget does not affect client B.
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.RemoteAddr = "10.0.0.4:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, b)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_ConcurrentFirstRequestsShareOneBudget(t *testing.T) {
	handler := RateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})(okHandler())

	const workers = 8
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.5:1234"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, code := range codes {
		if code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestClientIP_StripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:55555"
	assert.Equal(t, "192.168.1.9", clientIP(req))
}

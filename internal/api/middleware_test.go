package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/seoscope/seoscope/internal/metrics"
)

type stubCounter struct {
	count int64
	err   error
}

func (s *stubCounter) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	s.count++
	return s.count, s.err
}

func limitedHandler(counter *stubCounter, perMinute int) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return identityMiddleware(rateLimitMiddleware(counter, perMinute)(ok))
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	t.Parallel()
	metrics.Init()

	h := limitedHandler(&stubCounter{}, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	t.Parallel()
	metrics.Init()

	counter := &stubCounter{count: 3}
	h := limitedHandler(counter, 3)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	t.Parallel()
	metrics.Init()

	counter := &stubCounter{count: 100, err: errors.New("redis down")}
	h := limitedHandler(counter, 3)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := requestIDMiddleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))

	fresh := httptest.NewRequest(http.MethodGet, "/", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, fresh)
	assert.NotEmpty(t, rec2.Header().Get("X-Request-ID"))
}

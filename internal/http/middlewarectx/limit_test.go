package middlewarectx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRateLimitMiddleware(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	t.Run("allows requests within burst", func(t *testing.T) {
		mw := RateLimitMiddleware(rate.NewLimiter(rate.Limit(0.001), 5), newNoopLogger())

		for range 5 {
			w := httptest.NewRecorder()
			mw(testHandler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
			assert.Equal(t, http.StatusAccepted, w.Code)
		}
	})

	t.Run("blocks requests exceeding rate limit", func(t *testing.T) {
		mw := RateLimitMiddleware(rate.NewLimiter(rate.Limit(0.001), 1), newNoopLogger())

		w := httptest.NewRecorder()
		mw(testHandler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)

		w = httptest.NewRecorder()
		mw(testHandler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "too many requests")
	})
}

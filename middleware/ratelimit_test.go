package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"covault/auth"
)

func rateLimitedHandler(limit RateLimit) http.Handler {
	verifier := auth.NewVerifier(auth.Config{})
	limiter := NewRateLimiter(limit)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return verifier.Authenticate(limiter.Middleware(inner))
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	handler := rateLimitedHandler(RateLimit{RequestsPerMinute: 1, Burst: 3})

	issue := func(subject string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil)
		req.Header.Set("Authorization", "Bearer "+subject+"|client")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder.Code
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, issue("alice"), "request %d inside burst", i)
	}
	require.Equal(t, http.StatusTooManyRequests, issue("alice"))

	// Budgets are per subject; another identity is unaffected.
	require.Equal(t, http.StatusOK, issue("bob"))
}

func TestRateLimiterSkipsUnauthenticated(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(inner)

	// Without claims in context the limiter defers to the auth layer.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)
	}
}

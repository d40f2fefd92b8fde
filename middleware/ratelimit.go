package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"covault/auth"
)

// RateLimit bounds how often a single identity may hit an endpoint group.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// RateLimiter keeps a token bucket per authenticated subject. PSBT admission
// and invoice creation are the protected groups; an unauthenticated request
// falls through to the auth middleware's rejection.
type RateLimiter struct {
	limit RateLimit

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter constructs a limiter with the supplied per-subject budget.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		visitors: make(map[string]*rate.Limiter),
	}
}

// Middleware enforces the configured budget per authenticated subject.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.FromContext(r.Context())
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.obtainLimiter(claims.Subject).Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) obtainLimiter(subject string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.visitors[subject]; ok {
		return limiter
	}
	perSecond := rl.limit.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := rl.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	rl.visitors[subject] = limiter
	return limiter
}

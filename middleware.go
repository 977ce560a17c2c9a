package main

import (
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/example/jwtauth/internal/oauth"
	"github.com/example/jwtauth/internal/token"
	"golang.org/x/time/rate"
)

// ProtectedHandler serves a request that passed the access guard. The
// verified claims are the only authorization context it receives.
type ProtectedHandler func(w http.ResponseWriter, r *http.Request, claims *token.Claims)

// Protect runs the guard before next and passes the claims along explicitly.
func (a *App) Protect(g *oauth.Guard, next ProtectedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Authorize(r.Header.Get("Authorization"))
		if err != nil {
			a.Metrics.Access(oauth.Code(err))
			a.Log.Infow("access denied", "path", r.URL.Path, "error", oauth.Code(err), "reason", oauth.Description(err))
			writeAccessError(w, a.Config.ResourceID, err)
			return
		}
		a.Metrics.Access("allowed")
		next(w, r, claims)
	})
}

// CORS middleware handles CORS headers for browser clients of the token endpoint.
func (a *App) CORS(next http.Handler) http.Handler {
	allowAll := slices.Contains(a.Config.AllowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(a.Config.AllowedOrigins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimiter implements per-caller rate limiting
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	perMin   int
	mu       sync.RWMutex
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   limitPerMinute,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// re-check under the write lock
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// RateLimit middleware throttles token requests per remote host. A limit of 0 disables it.
func (a *App) RateLimit(next http.Handler) http.Handler {
	if a.rateLimiter == nil || a.rateLimiter.perMin <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && !a.rateLimiter.Allow(remoteHost(r)) {
			a.Metrics.TokenRejected("rate_limited")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		client := "-"
		if id, _, ok := r.BasicAuth(); ok {
			client = id
		}
		a.Log.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"client", client,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"busbooking/internal/session"
	"busbooking/pkg/logger"
)

// SessionAuth resolves the caller from an `Authorization: Bearer <token>` session token.
func SessionAuth(secret string, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token")
				return
			}
			actor, err := session.VerifyToken(strings.TrimSpace(authz[7:]), secret, now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireActor returns the authenticated caller or writes a 401.
func RequireActor(w http.ResponseWriter, r *http.Request) (session.Actor, bool) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session")
	}
	return a, ok
}

// StoreTimeout bounds every request's store calls. Expiry surfaces as a retryable
// TIMEOUT error from the workflow.
func StoreTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimiter hands out one token bucket per client key.
type RateLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*client
	swept   time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{rps: rate.Limit(rps), burst: burst, clients: map[string]*client{}}
}

func (l *RateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > time.Minute {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > 3*time.Minute {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware keys authenticated callers by actor and everyone else by remote IP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if a, ok := ActorFromContext(r.Context()); ok {
			key = a.String()
		}
		if !l.Allow(key, time.Now()) {
			w.Header().Set("Retry-After", "1")
			WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger writes one structured line per request.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			slot := &actorSlot{}
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKeyActorSlot, slot)))

			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if slot.set {
				fields = append(fields, "actor", slot.actor.String())
			}
			log.Info("http request", fields...)
		})
	}
}

package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pressograph/prefsync"
)

// LoggerMiddleware returns a middleware that logs requests using the provided logger.
func LoggerMiddleware(logger prefsync.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t0 := time.Now()
			defer func() {
				logger.Info("Served request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"latency_ms", float64(time.Since(t0).Microseconds())/1000.0,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

// IdentityMiddleware resolves the caller's user ID from a bearer token and
// stores it in the request context. Requests without a token are anonymous;
// requests with an invalid token are rejected with 401.
func IdentityMiddleware(auth *Authenticator, logger prefsync.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || auth == nil {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := auth.UserID(token)
			if err != nil {
				logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
				respondWithJSONRaw(w, http.StatusUnauthorized, errorBody("Invalid bearer token", nil))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// RateLimitMiddleware throttles requests per user, or per client address
// for anonymous callers. A nil limiter disables throttling.
func RateLimitMiddleware(limiter *RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserIDFromContext(r.Context())
			if key == "" {
				key = "addr:" + clientHost(r.RemoteAddr)
			}
			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", "1")
				respondWithJSONRaw(w, http.StatusTooManyRequests, errorBody("Too many preference updates", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientHost drops the port so a client cannot reset its limit by opening a
// new connection.
func clientHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

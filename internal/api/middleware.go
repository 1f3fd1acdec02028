package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuitang/notedesk/internal/auth"
	"github.com/kuitang/notedesk/internal/logutil"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/ratelimit"
	"github.com/kuitang/notedesk/internal/urlutil"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Request-Id"
	corsMaxAge       = 600

	debugBodyMaxBytes = 4096
)

// Protect authenticates the caller, then applies the per-user limiter when one
// is given.
func Protect(authenticator *auth.Authenticator, limiter *ratelimit.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter != nil {
			next = ratelimit.RateLimitMiddleware(limiter, ByUserID)(next)
		}
		return authenticator.RequireAuth(next)
	}
}

// ByUserID keys authenticated requests by the session's user id.
func ByUserID(r *http.Request) (string, ratelimit.Tier) {
	return auth.UserIDFromContext(r.Context()), ratelimit.TierUser
}

// CORSMiddleware allows credentialed requests from origins the matcher accepts.
// Preflights from allowed origins get 204; preflights from other origins get
// 403. Non-preflight requests pass through either way, without CORS headers
// when the origin is not allowed.
func CORSMiddleware(origins *urlutil.OriginMatcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			allowed := origins.Allowed(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After, X-RateLimit-Remaining")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					obs.From(r.Context()).With("pkg", "api").Debug("cors_preflight_rejected", "origin", origin)
					w.WriteHeader(http.StatusForbidden)
					return
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DebugBodyMiddleware logs redacted request headers and bodies when the
// logger is at debug level. The body is restored for the next handler.
func DebugBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := obs.From(r.Context()).With("pkg", "api")
		if !logger.Enabled(r.Context(), slog.LevelDebug) {
			next.ServeHTTP(w, r)
			return
		}

		var body []byte
		truncated := false
		if r.Body != nil && r.Body != http.NoBody {
			buf, err := io.ReadAll(io.LimitReader(r.Body, debugBodyMaxBytes+1))
			if err == nil {
				if len(buf) > debugBodyMaxBytes {
					truncated = true
				}
				body = buf
				r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
			}
		}

		contentType := r.Header.Get("Content-Type")
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"headers", logutil.FormatHeadersForLog(r.Header),
		}
		if len(body) > 0 && !strings.HasPrefix(contentType, "multipart/") {
			attrs = append(attrs, "body", logutil.FormatBodyForLog(contentType, body, debugBodyMaxBytes, truncated))
		}
		logger.Debug("http_request_debug", attrs...)
		next.ServeHTTP(w, r)
	})
}

type readCloser struct {
	io.Reader
	io.Closer
}

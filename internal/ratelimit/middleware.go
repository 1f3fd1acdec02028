package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/notedesk/internal/errs"
)

// DefaultRetryAfterSeconds is sent when the bucket never refills (rate 0).
const DefaultRetryAfterSeconds = 1

// KeyFunc names the bucket for r. An empty key skips limiting.
type KeyFunc func(r *http.Request) (key string, tier Tier)

// RateLimitMiddleware rejects a caller with an empty bucket with 429 and a
// Retry-After of the seconds until the next token. Admitted requests carry
// X-RateLimit-Remaining.
func RateLimitMiddleware(limiter *RateLimiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, tier := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			lim := limiter.GetLimiter(key, tier)
			now := time.Now()
			if !lim.AllowN(now, 1) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "too many requests",
					"code":  string(errs.RateLimited),
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(int(lim.TokensAt(now)), 0)))
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter asks for a reservation to learn the wait, then hands the token back.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return DefaultRetryAfterSeconds
	}
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	if delay <= 0 || delay == rate.InfDuration {
		return DefaultRetryAfterSeconds
	}
	return int(math.Ceil(delay.Seconds()))
}

type clientIPKey struct{}

// ClientIPMiddleware resolves the caller's IP once per request. With
// trustForwarded the first X-Forwarded-For hop wins; without it the header
// is ignored, since any caller can set it.
func ClientIPMiddleware(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteHost(r)
			if trustForwarded {
				first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
				if hop := strings.TrimSpace(first); hop != "" {
					ip = hop
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// ClientIP is the IP resolved by ClientIPMiddleware, else the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ByClientIP buckets anonymous callers by IP.
func ByClientIP(r *http.Request) (string, Tier) {
	return ClientIP(r), TierAnonymous
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/obs"
)

type contextKey string

const userKey contextKey = "user"

// RequireAuth rejects requests without a valid session with
// 401 {"error":"unauthorized"} and never calls next for them.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.FromRequest(r)
		if err != nil {
			if !errs.Is(err, errs.Unauthenticated) {
				obs.From(r.Context()).With("pkg", "auth").Warn("auth_lookup_failed", "error", err)
			}
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser stores the authenticated user in ctx and tags its logs with the user id.
func WithUser(ctx context.Context, user *User) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return obs.WithUserID(ctx, user.ID)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userKey).(*User)
	return user
}

// UserIDFromContext returns the authenticated user's id, or "".
func UserIDFromContext(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

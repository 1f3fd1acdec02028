package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/notedesk/internal/db"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/obs"
)

const (
	DefaultSessionDuration = 7 * 24 * time.Hour
	SessionCookieName      = "session_token"
)

var errUnauthenticated = errs.New(errs.Unauthenticated, "unauthorized")

// SessionMeta is recorded alongside a new session.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// IssuedSession is a freshly created session credential.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

// Authenticator creates sessions and resolves presented tokens to users.
type Authenticator struct {
	db       *db.DB
	clock    Clock
	duration time.Duration
}

// NewAuthenticator creates an authenticator. A non-positive duration uses DefaultSessionDuration.
func NewAuthenticator(database *db.DB, duration time.Duration) *Authenticator {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &Authenticator{db: database, clock: realClock{}, duration: duration}
}

// SetClock replaces the clock used for expiry checks. Intended for testing.
func (a *Authenticator) SetClock(c Clock) {
	a.clock = c
}

// Duration is the lifetime given to new sessions.
func (a *Authenticator) Duration() time.Duration {
	return a.duration
}

// Create stores a new session for userID. Only the token's hash is stored.
func (a *Authenticator) Create(ctx context.Context, userID string, meta SessionMeta) (IssuedSession, error) {
	token, err := generateToken()
	if err != nil {
		return IssuedSession{}, fmt.Errorf("generate session token: %w", err)
	}
	now := a.clock.Now()
	expiresAt := now.Add(a.duration)

	err = a.db.Queries().CreateSession(ctx, db.CreateSessionParams{
		ID:        uuid.NewString(),
		Token:     hashToken(token),
		UserID:    userID,
		ExpiresAt: expiresAt.Unix(),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now.Unix(),
	})
	if err != nil {
		return IssuedSession{}, errs.Wrap(errs.Unavailable, "failed to store session", err)
	}
	return IssuedSession{Token: token, ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC()}, nil
}

// Authenticate resolves token to its user. Unknown, expired, and empty tokens
// all return the same Unauthenticated error. Nothing is written.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, errUnauthenticated
	}
	row, err := a.db.Queries().GetSessionWithUser(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errUnauthenticated
		}
		return nil, errs.Wrap(errs.Unavailable, "session lookup failed", err)
	}
	if a.clock.Now().Unix() >= row.Session.ExpiresAt {
		return nil, errUnauthenticated
	}
	return userFromRow(row.User), nil
}

// FromRequest authenticates the credential carried by r.
func (a *Authenticator) FromRequest(r *http.Request) (*User, error) {
	return a.Authenticate(r.Context(), TokenFromRequest(r))
}

// Delete removes a session (sign-out). Deleting an unknown token is not an error.
func (a *Authenticator) Delete(ctx context.Context, token string) error {
	if err := a.db.Queries().DeleteSessionByToken(ctx, hashToken(token)); err != nil {
		return errs.Wrap(errs.Unavailable, "failed to delete session", err)
	}
	return nil
}

// DeleteByUserID removes all sessions for a user.
func (a *Authenticator) DeleteByUserID(ctx context.Context, userID string) error {
	if err := a.db.Queries().DeleteSessionsByUserID(ctx, userID); err != nil {
		return errs.Wrap(errs.Unavailable, "failed to delete user sessions", err)
	}
	return nil
}

// Cleanup removes expired sessions and verification tokens.
func (a *Authenticator) Cleanup(ctx context.Context) (sessions, verifications int64, err error) {
	now := a.clock.Now().Unix()
	sessions, err = a.db.Queries().DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	verifications, err = a.db.Queries().DeleteExpiredVerifications(ctx, now)
	if err != nil {
		return sessions, 0, fmt.Errorf("cleanup expired verifications: %w", err)
	}
	return sessions, verifications, nil
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (a *Authenticator) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logger := obs.Pkg("auth")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s, v, err := a.Cleanup(ctx)
				if err != nil {
					logger.Warn("session_cleanup_failed", "error", err)
					continue
				}
				if s > 0 || v > 0 {
					logger.Info("session_cleanup", "sessions", s, "verifications", v)
				}
			}
		}
	}()
}

// Cookie helpers

// SetCookie sets the session cookie on the response.
func SetCookie(w http.ResponseWriter, issued IssuedSession, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    issued.Token,
		Path:     "/",
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// TokenFromRequest returns the session cookie value, or the bearer token
// when no cookie is present. The cookie wins when both are sent.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}

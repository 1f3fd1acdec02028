package auth

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/ratelimit"
)

const maxAuthBodyBytes = 64 << 10

// Handler provides HTTP handlers for the /api/auth routes.
type Handler struct {
	userService   *UserService
	authenticator *Authenticator
	secureCookies bool
}

// NewHandler creates a new auth handler.
func NewHandler(userService *UserService, authenticator *Authenticator, secureCookies bool) *Handler {
	return &Handler{
		userService:   userService,
		authenticator: authenticator,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers all auth routes on the given mux. wrap is applied
// to every route (rate limiting) and may be nil.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /api/auth/sign-up", wrap(http.HandlerFunc(h.HandleSignUp)))
	mux.Handle("POST /api/auth/sign-in", wrap(http.HandlerFunc(h.HandleSignIn)))
	mux.Handle("POST /api/auth/sign-out", wrap(http.HandlerFunc(h.HandleSignOut)))
	mux.Handle("POST /api/auth/forgot-password", wrap(http.HandlerFunc(h.HandleForgotPassword)))
	mux.Handle("POST /api/auth/reset-password", wrap(http.HandlerFunc(h.HandleResetPassword)))
	mux.Handle("GET /api/auth/me", h.authenticator.RequireAuth(http.HandlerFunc(h.HandleMe)))
}

// SignUpRequest is the request body for sign-up.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInRequest is the request body for sign-in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by sign-up and sign-in.
type SessionResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// ForgotPasswordRequest is the request body for forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the request body for reset-password.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// HandleSignUp creates an account and signs it in.
func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, issued, err := h.userService.SignUp(r.Context(), SignUpParams(req), sessionMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	SetCookie(w, issued, h.secureCookies)
	writeJSON(w, http.StatusCreated, SessionResponse{User: user, Token: issued.Token})
}

// HandleSignIn handles email/password sign-in.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, issued, err := h.userService.SignIn(r.Context(), req.Email, req.Password, sessionMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	SetCookie(w, issued, h.secureCookies)
	writeJSON(w, http.StatusOK, SessionResponse{User: user, Token: issued.Token})
}

// HandleSignOut deletes the presented session.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := TokenFromRequest(r); token != "" {
		if err := h.authenticator.Delete(r.Context(), token); err != nil {
			writeError(w, r, err)
			return
		}
	}
	ClearCookie(w, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleMe returns the authenticated user.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*User{"user": UserFromContext(r.Context())})
}

// HandleForgotPassword always answers 200 so accounts cannot be enumerated.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		obs.From(r.Context()).With("pkg", "auth").Warn("password_reset_request_failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

// HandleResetPassword sets a new password from a reset token.
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func sessionMeta(r *http.Request) SessionMeta {
	return SessionMeta{IPAddress: ratelimit.ClientIP(r), UserAgent: r.UserAgent()}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).With("pkg", "auth").Error("auth_request_failed", "code", code, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": errs.MessageOf(err)})
}

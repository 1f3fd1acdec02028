package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/notedesk/internal/db"
	"github.com/kuitang/notedesk/internal/email"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/logutil"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/urlutil"
)

const (
	ResetTokenExpiry = time.Hour
	MaxNameLength    = 100

	resetIdentifierPrefix = "reset-password:"
)

var (
	ErrInvalidCredentials = errs.New(errs.Unauthenticated, "invalid email or password")
	ErrAccountExists      = errs.New(errs.AlreadyExists, "an account with this email already exists")
	ErrInvalidToken       = errs.New(errs.InvalidArgument, "invalid or expired token")
)

// User is the authenticated principal.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func userFromRow(u db.User) *User {
	return &User{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		CreatedAt:     time.Unix(u.CreatedAt, 0).UTC(),
	}
}

// UserService handles signup, sign-in, and password reset.
type UserService struct {
	db           *db.DB
	sessions     *Authenticator
	hasher       PasswordHasher
	emailService email.EmailService
	clientURL    string // Base URL for reset links
	clock        Clock
}

// NewUserService creates a new user service.
func NewUserService(database *db.DB, sessions *Authenticator, emailSvc email.EmailService, clientURL string) *UserService {
	return &UserService{
		db:           database,
		sessions:     sessions,
		hasher:       Argon2Hasher{},
		emailService: emailSvc,
		clientURL:    clientURL,
		clock:        realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// SetHasher replaces the password hasher. Intended for testing.
func (s *UserService) SetHasher(h PasswordHasher) {
	s.hasher = h
}

// SignUpParams is the sign-up input.
type SignUpParams struct {
	Name     string
	Email    string
	Password string
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func validateEmail(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || !strings.Contains(addr[strings.LastIndex(addr, "@")+1:], ".") {
		return errs.New(errs.InvalidArgument, "invalid email address")
	}
	return nil
}

// SignUp creates the user and its credential account in one transaction,
// then opens a session for it.
func (s *UserService) SignUp(ctx context.Context, p SignUpParams, meta SessionMeta) (*User, IssuedSession, error) {
	name := strings.TrimSpace(p.Name)
	addr := NormalizeEmail(p.Email)
	if name == "" || len([]rune(name)) > MaxNameLength {
		return nil, IssuedSession{}, errs.New(errs.InvalidArgument, "name must be between 1 and 100 characters")
	}
	if err := validateEmail(addr); err != nil {
		return nil, IssuedSession{}, err
	}
	if err := ValidatePasswordStrength(p.Password); err != nil {
		return nil, IssuedSession{}, errs.Wrap(errs.InvalidArgument, err.Error(), err)
	}

	passwordHash, err := s.hasher.HashPassword(p.Password)
	if err != nil {
		return nil, IssuedSession{}, errs.Wrap(errs.Internal, "failed to hash password", err)
	}

	now := s.clock.Now().Unix()
	var created db.User
	err = s.db.InTx(ctx, func(q *db.Queries) error {
		u, err := q.CreateUser(ctx, db.CreateUserParams{
			ID:        uuid.NewString(),
			Name:      name,
			Email:     addr,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		created = u
		return q.CreateCredentialAccount(ctx, db.CreateAccountParams{
			ID:           uuid.NewString(),
			UserID:       u.ID,
			PasswordHash: passwordHash,
			CreatedAt:    now,
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, IssuedSession{}, ErrAccountExists
		}
		return nil, IssuedSession{}, errs.Wrap(errs.Unavailable, "failed to create account", err)
	}

	issued, err := s.sessions.Create(ctx, created.ID, meta)
	if err != nil {
		return nil, IssuedSession{}, err
	}

	user := userFromRow(created)
	if err := s.emailService.Send(ctx, user.Email, email.TemplateWelcome, email.WelcomeData{
		Name:      user.Name,
		ClientURL: s.clientURL,
	}); err != nil {
		obs.From(ctx).With("pkg", "auth").Warn("welcome_email_failed", "to", logutil.MaskEmail(user.Email), "error", err)
	}
	return user, issued, nil
}

// SignIn verifies credentials and opens a session. Unknown email and wrong
// password return the same error.
func (s *UserService) SignIn(ctx context.Context, emailAddr, password string, meta SessionMeta) (*User, IssuedSession, error) {
	addr := NormalizeEmail(emailAddr)
	if addr == "" || password == "" {
		return nil, IssuedSession{}, ErrInvalidCredentials
	}

	u, err := s.db.Queries().GetUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Burn comparable time so unknown emails aren't distinguishable by latency.
			_, _ = s.hasher.HashPassword(password)
			return nil, IssuedSession{}, ErrInvalidCredentials
		}
		return nil, IssuedSession{}, errs.Wrap(errs.Unavailable, "failed to look up user", err)
	}

	account, err := s.db.Queries().GetCredentialAccount(ctx, u.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, IssuedSession{}, ErrInvalidCredentials
		}
		return nil, IssuedSession{}, errs.Wrap(errs.Unavailable, "failed to look up account", err)
	}
	if !account.Password.Valid || !s.hasher.VerifyPassword(password, account.Password.String) {
		return nil, IssuedSession{}, ErrInvalidCredentials
	}

	issued, err := s.sessions.Create(ctx, u.ID, meta)
	if err != nil {
		return nil, IssuedSession{}, err
	}
	return userFromRow(u), issued, nil
}

// GetUser loads a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := s.db.Queries().GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "user not found")
		}
		return nil, errs.Wrap(errs.Unavailable, "failed to load user", err)
	}
	return userFromRow(u), nil
}

// RequestPasswordReset emails a single-use reset link when the address
// belongs to an account. It reports success either way.
func (s *UserService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	logger := obs.From(ctx).With("pkg", "auth")
	u, err := s.db.Queries().GetUserByEmail(ctx, NormalizeEmail(emailAddr))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn("password_reset_lookup_failed", "error", err)
		}
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to generate token", err)
	}
	now := s.clock.Now()
	err = s.db.Queries().UpsertVerification(ctx, db.CreateVerificationParams{
		ID:         uuid.NewString(),
		Identifier: resetIdentifierPrefix + hashToken(token),
		Value:      u.ID,
		ExpiresAt:  now.Add(ResetTokenExpiry).Unix(),
		CreatedAt:  now.Unix(),
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "failed to store reset token", err)
	}

	link := urlutil.BuildAbsolute(s.clientURL, "/reset-password?token="+url.QueryEscape(token))
	if err := s.emailService.Send(ctx, u.Email, email.TemplatePasswordReset, email.PasswordResetData{
		Link:      link,
		ExpiresIn: "1 hour",
	}); err != nil {
		logger.Warn("password_reset_email_failed", "to", logutil.MaskEmail(u.Email), "error", err)
	}
	return nil
}

// ResetPassword consumes token, sets the new password, and signs the user
// out everywhere.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return errs.Wrap(errs.InvalidArgument, err.Error(), err)
	}
	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to hash password", err)
	}

	identifier := resetIdentifierPrefix + hashToken(token)
	now := s.clock.Now()
	err = s.db.InTx(ctx, func(q *db.Queries) error {
		v, err := q.GetVerification(ctx, identifier)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInvalidToken
			}
			return err
		}
		if now.Unix() >= v.ExpiresAt {
			return ErrInvalidToken
		}
		if _, err := q.DeleteVerification(ctx, identifier); err != nil {
			return err
		}
		if err := q.UpdateCredentialPassword(ctx, v.Value, passwordHash, now.Unix()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInvalidToken
			}
			return err
		}
		return q.DeleteSessionsByUserID(ctx, v.Value)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			// Expired tokens are consumed too; the transaction rolled back.
			_, _ = s.db.Queries().DeleteVerification(ctx, identifier)
			return err
		}
		return errs.Wrap(errs.Unavailable, "failed to reset password", err)
	}
	return nil
}

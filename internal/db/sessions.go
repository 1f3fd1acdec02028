package db

import (
	"context"
	"fmt"
)

type CreateSessionParams struct {
	ID        string
	Token     string // hex sha256 of the bearer credential
	UserID    string
	ExpiresAt int64
	IPAddress string
	UserAgent string
	CreatedAt int64
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO session (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.Token, arg.UserID, arg.ExpiresAt,
		nullString(arg.IPAddress), nullString(arg.UserAgent),
		arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionWithUser resolves a token to its session and owning user in one statement.
// Expiry is not checked here.
func (q *Queries) GetSessionWithUser(ctx context.Context, token string) (SessionWithUser, error) {
	var out SessionWithUser
	var verified int64
	s, u := &out.Session, &out.User
	err := q.db.QueryRowContext(ctx, `
		SELECT s.id, s.token, s.user_id, s.expires_at, s.ip_address, s.user_agent, s.created_at, s.updated_at,
		       u.id, u.name, u.email, u.email_verified, u.image, u.created_at, u.updated_at
		FROM session s
		JOIN "user" u ON u.id = s.user_id
		WHERE s.token = ?`, token,
	).Scan(
		&s.ID, &s.Token, &s.UserID, &s.ExpiresAt, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.UpdatedAt,
		&u.ID, &u.Name, &u.Email, &verified, &u.Image, &u.CreatedAt, &u.UpdatedAt,
	)
	u.EmailVerified = verified == 1
	return out, err
}

func (q *Queries) DeleteSessionByToken(ctx context.Context, token string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM session WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (q *Queries) DeleteSessionsByUserID(ctx context.Context, userID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM session WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions with expires_at <= now and returns how many went.
func (q *Queries) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM session WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (q *Queries) CountSessionsByUserID(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

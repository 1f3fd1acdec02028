package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ProviderCredential is the account provider for email/password sign-in.
const ProviderCredential = "credential"

const userColumns = `id, name, email, email_verified, image, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var u User
	var verified int64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &verified, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	u.EmailVerified = verified == 1
	return u, err
}

type CreateUserParams struct {
	ID        string
	Name      string
	Email     string
	CreatedAt int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO "user" (id, name, email, email_verified, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		arg.ID, arg.Name, arg.Email, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return q.GetUserByID(ctx, arg.ID)
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = ?`, id)
	return scanUser(row)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM "user" WHERE email = ?`, email)
	return scanUser(row)
}

type CreateAccountParams struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    int64
}

// CreateCredentialAccount stores the password hash for a user. account_id equals the user id.
func (q *Queries) CreateCredentialAccount(ctx context.Context, arg CreateAccountParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO account (id, account_id, provider_id, user_id, password, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.UserID, ProviderCredential, arg.UserID, arg.PasswordHash, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *Queries) GetCredentialAccount(ctx context.Context, userID string) (Account, error) {
	var a Account
	err := q.db.QueryRowContext(ctx,
		`SELECT id, account_id, provider_id, user_id, password, created_at, updated_at
		 FROM account WHERE user_id = ? AND provider_id = ?`,
		userID, ProviderCredential,
	).Scan(&a.ID, &a.AccountID, &a.ProviderID, &a.UserID, &a.Password, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// UpdateCredentialPassword returns sql.ErrNoRows when the user has no credential account.
func (q *Queries) UpdateCredentialPassword(ctx context.Context, userID, passwordHash string, now int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE account SET password = ?, updated_at = ? WHERE user_id = ? AND provider_id = ?`,
		passwordHash, now, userID, ProviderCredential,
	)
	if err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

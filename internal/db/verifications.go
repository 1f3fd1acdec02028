package db

import (
	"context"
	"fmt"
)

type CreateVerificationParams struct {
	ID         string
	Identifier string
	Value      string
	ExpiresAt  int64
	CreatedAt  int64
}

// UpsertVerification stores a token, replacing any row with the same identifier.
func (q *Queries) UpsertVerification(ctx context.Context, arg CreateVerificationParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO verification (id, identifier, value, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (identifier) DO UPDATE SET
		     value = excluded.value,
		     expires_at = excluded.expires_at,
		     updated_at = excluded.updated_at`,
		arg.ID, arg.Identifier, arg.Value, arg.ExpiresAt, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verification: %w", err)
	}
	return nil
}

func (q *Queries) GetVerification(ctx context.Context, identifier string) (Verification, error) {
	var v Verification
	err := q.db.QueryRowContext(ctx,
		`SELECT id, identifier, value, expires_at, created_at, updated_at FROM verification WHERE identifier = ?`,
		identifier,
	).Scan(&v.ID, &v.Identifier, &v.Value, &v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// DeleteVerification reports whether a row was removed, so a token can be consumed once.
func (q *Queries) DeleteVerification(ctx context.Context, identifier string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM verification WHERE identifier = ?`, identifier)
	if err != nil {
		return false, fmt.Errorf("delete verification: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q *Queries) DeleteExpiredVerifications(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM verification WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired verifications: %w", err)
	}
	return res.RowsAffected()
}

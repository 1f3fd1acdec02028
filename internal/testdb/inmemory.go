// Package testdb provides isolated in-memory databases for tests.
package testdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/notedesk/internal/db"
)

var counter atomic.Int64

// FastPragmas trade durability for speed; only for throwaway databases.
var FastPragmas = []string{
	"PRAGMA journal_mode=MEMORY",
	"PRAGMA synchronous=OFF",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA secure_delete=OFF",
}

// New opens a fresh in-memory database with the schema applied.
// Each call gets a unique name, so databases never share state.
func New() (*db.DB, error) {
	name := fmt.Sprintf("testdb_%d_%d", time.Now().UnixNano(), counter.Add(1))
	d, err := db.OpenInMemory(context.Background(), name, FastPragmas...)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return d, nil
}

// CreateUser inserts a user row directly and returns it.
func CreateUser(ctx context.Context, d *db.DB, name, email string) (db.User, error) {
	return d.Queries().CreateUser(ctx, db.CreateUserParams{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().Unix(),
	})
}

// CreateUsers inserts n users with generated emails and returns their ids.
func CreateUsers(ctx context.Context, d *db.DB, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		seq := counter.Add(1)
		u, err := CreateUser(ctx, d, fmt.Sprintf("user %d", seq), fmt.Sprintf("user%d@example.com", seq))
		if err != nil {
			return nil, err
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

package db

import "database/sql"

// Row types mirror the schema columns. Times are unix seconds.

type User struct {
	ID            string
	Name          string
	Email         string
	EmailVerified bool
	Image         sql.NullString
	CreatedAt     int64
	UpdatedAt     int64
}

type Session struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt int64
	IPAddress sql.NullString
	UserAgent sql.NullString
	CreatedAt int64
	UpdatedAt int64
}

// SessionWithUser is a session row joined with its owner.
type SessionWithUser struct {
	Session Session
	User    User
}

type Account struct {
	ID         string
	AccountID  string
	ProviderID string
	UserID     string
	Password   sql.NullString
	CreatedAt  int64
	UpdatedAt  int64
}

type Verification struct {
	ID         string
	Identifier string
	Value      string
	ExpiresAt  int64
	CreatedAt  int64
	UpdatedAt  int64
}

type Task struct {
	ID          int64
	UserID      string
	Title       string
	Content     string
	IsCompleted bool
	Date        int64
	ImageURL    sql.NullString
	CreatedAt   int64
}

type Note struct {
	ID        int64
	UserID    string
	Title     string
	Content   string
	Summary   sql.NullString
	ImageURL  sql.NullString
	Date      int64
	CreatedAt int64
	UpdatedAt int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Package db owns the SQLite (SQLCipher) connection, the schema, and every
// SQL statement the service runs. Reads and writes of task and note rows
// always bind both the row id and the owning user id in one predicate.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxOpenConns caps pool size. SQLite is single-writer, so high counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle pooled connections.
	MaxIdleConns = 2

	// KeyLength is the SQLCipher raw key length in bytes.
	KeyLength = 32
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against a DB or an open transaction.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// DB wraps the pooled connection and its Queries.
type DB struct {
	db      *sql.DB
	queries *Queries
}

// Options configures Open.
type Options struct {
	// Path is the database file. Parent directories are created.
	Path string
	// Key is an optional 32-byte SQLCipher key. Empty means an unencrypted file.
	Key []byte
}

// NewFromSQL wraps an existing sql.DB. The schema is not applied.
func NewFromSQL(sqlDB *sql.DB) *DB {
	return &DB{db: sqlDB, queries: New(sqlDB)}
}

// Open opens (creating if needed) the database file and applies the schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if len(opts.Key) != 0 && len(opts.Key) != KeyLength {
		return nil, fmt.Errorf("database key must be exactly %d bytes, got %d", KeyLength, len(opts.Key))
	}

	if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := opts.Path
	if len(opts.Key) != 0 {
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", opts.Path, hex.EncodeToString(opts.Key))
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	d := NewFromSQL(sqlDB)
	if err := d.init(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// OpenInMemory opens a named shared-cache in-memory database with the schema applied.
// Distinct names give isolated databases; the same name shares one.
func OpenInMemory(ctx context.Context, name string, pragmas ...string) (*DB, error) {
	if name == "" {
		name = "notedesk"
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// One connection keeps the memory database alive and avoids shared-cache table locks.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	d := NewFromSQL(sqlDB)
	if err := d.init(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) init(ctx context.Context) error {
	// Reading sqlite_master touches page 1, so a wrong encryption key fails here.
	var tables int64
	if err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&tables); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// DB returns the underlying sql.DB for direct access when needed.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Queries returns the statement set bound to the pool.
func (d *DB) Queries() *Queries {
	return d.queries
}

// InTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func (d *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(d.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func sqliteCommonParams() string {
	// WAL + NORMAL gives good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

package db

import (
	"context"
	"fmt"
)

const noteColumns = `id, user_id, title, content, summary, image_url, date, created_at, updated_at`

func scanNote(row rowScanner) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Summary, &n.ImageURL, &n.Date, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

type CreateNoteParams struct {
	UserID    string
	Title     string
	Content   string
	Summary   string
	ImageURL  string
	Date      int64
	CreatedAt int64
}

// CreateNote inserts and returns the stored row with its assigned id.
func (q *Queries) CreateNote(ctx context.Context, arg CreateNoteParams) (Note, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO note (user_id, title, content, summary, image_url, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.UserID, arg.Title, arg.Content, nullString(arg.Summary), nullString(arg.ImageURL),
		arg.Date, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return q.GetNote(ctx, id, arg.UserID)
}

// GetNote returns sql.ErrNoRows when the id is missing or owned by another user.
func (q *Queries) GetNote(ctx context.Context, id int64, userID string) (Note, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM note WHERE id = ? AND user_id = ?`, id, userID)
	return scanNote(row)
}

// ListNotes returns the user's notes, newest date first.
func (q *Queries) ListNotes(ctx context.Context, userID string) ([]Note, error) {
	return q.listNotes(ctx,
		`SELECT `+noteColumns+` FROM note WHERE user_id = ? ORDER BY date DESC, id DESC`,
		userID,
	)
}

// ListNotesOnDay returns notes whose date falls on day (YYYY-MM-DD) at the given UTC offset.
func (q *Queries) ListNotesOnDay(ctx context.Context, userID, day string, offsetMinutes int64) ([]Note, error) {
	return q.listNotes(ctx,
		`SELECT `+noteColumns+` FROM note WHERE user_id = ? AND calendar_day(date, ?) = ? ORDER BY date DESC, id DESC`,
		userID, offsetMinutes, day,
	)
}

func (q *Queries) listNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// UpdateNote applies u to the note, stamping updated_at, and returns the affected row count.
func (q *Queries) UpdateNote(ctx context.Context, id int64, userID string, u *NoteUpdate, now int64) (int64, error) {
	query, args, err := u.Build(id, userID, now)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update note: %w", err)
	}
	return res.RowsAffected()
}

// DeleteNote returns the affected row count (0 or 1).
func (q *Queries) DeleteNote(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM note WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete note: %w", err)
	}
	return res.RowsAffected()
}

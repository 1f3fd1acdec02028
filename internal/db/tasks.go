package db

import (
	"context"
	"fmt"
)

const taskColumns = `id, user_id, title, content, is_completed, date, image_url, created_at`

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var completed int64
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Content, &completed, &t.Date, &t.ImageURL, &t.CreatedAt)
	t.IsCompleted = completed == 1
	return t, err
}

type CreateTaskParams struct {
	UserID      string
	Title       string
	Content     string
	IsCompleted bool
	Date        int64
	ImageURL    string
	CreatedAt   int64
}

// CreateTask inserts and returns the stored row with its assigned id.
func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) (Task, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO task (user_id, title, content, is_completed, date, image_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.UserID, arg.Title, arg.Content, boolToInt(arg.IsCompleted), arg.Date, nullString(arg.ImageURL), arg.CreatedAt,
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return q.GetTask(ctx, id, arg.UserID)
}

// GetTask returns sql.ErrNoRows when the id is missing or owned by another user.
func (q *Queries) GetTask(ctx context.Context, id int64, userID string) (Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task WHERE id = ? AND user_id = ?`, id, userID)
	return scanTask(row)
}

// ListTasks returns the user's tasks, newest date first.
func (q *Queries) ListTasks(ctx context.Context, userID string) ([]Task, error) {
	return q.listTasks(ctx,
		`SELECT `+taskColumns+` FROM task WHERE user_id = ? ORDER BY date DESC, id DESC`,
		userID,
	)
}

// ListTasksOnDay returns tasks whose date falls on day (YYYY-MM-DD) at the given UTC offset.
func (q *Queries) ListTasksOnDay(ctx context.Context, userID, day string, offsetMinutes int64) ([]Task, error) {
	return q.listTasks(ctx,
		`SELECT `+taskColumns+` FROM task WHERE user_id = ? AND calendar_day(date, ?) = ? ORDER BY date DESC, id DESC`,
		userID, offsetMinutes, day,
	)
}

func (q *Queries) listTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask applies u to the task and returns the affected row count (0 or 1).
func (q *Queries) UpdateTask(ctx context.Context, id int64, userID string, u *TaskUpdate) (int64, error) {
	query, args, err := u.Build(id, userID)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update task: %w", err)
	}
	return res.RowsAffected()
}

// DeleteTask returns the affected row count (0 or 1).
func (q *Queries) DeleteTask(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM task WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}
	return res.RowsAffected()
}

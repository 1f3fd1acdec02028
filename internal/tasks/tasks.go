// Package tasks is the owner-scoped task gateway. Every operation takes the
// caller's user id and touches only that user's rows.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kuitang/notedesk/internal/dates"
	"github.com/kuitang/notedesk/internal/db"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/images"
)

const (
	MinTitleLength   = 3
	MaxTitleLength   = 50
	MaxContentLength = 2500
)

var errNotFound = errs.New(errs.NotFound, "task not found")

// Task is the API shape of a task row.
type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	IsCompleted bool      `json:"isCompleted"`
	Date        time.Time `json:"date"`
	Image       *string   `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateParams creates a task. Nil Date means now; nil IsCompleted means false.
type CreateParams struct {
	Title       string
	Content     string
	IsCompleted *bool
	Date        *time.Time
	Image       string
}

// UpdateParams is a partial update. Nil fields are left unchanged.
// An empty Image clears it.
type UpdateParams struct {
	Title       *string
	Content     *string
	IsCompleted *bool
	Date        *time.Time
	Image       *string
}

// Service handles task CRUD for a single store.
type Service struct {
	db     *db.DB
	images images.Store
	now    func() time.Time
}

// NewService creates a task service. store may be nil, in which case images stay inline.
func NewService(database *db.DB, store images.Store) *Service {
	return &Service{db: database, images: store, now: time.Now}
}

// SetNow overrides the clock. Intended for testing.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return errs.New(errs.InvalidArgument, "title must be between 3 and 50 characters")
	}
	return nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > MaxContentLength {
		return errs.New(errs.InvalidArgument, "content must be at most 2500 characters")
	}
	return nil
}

// Create validates p and inserts a task owned by userID.
func (s *Service) Create(ctx context.Context, userID string, p CreateParams) (*Task, error) {
	title := strings.TrimSpace(p.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateContent(p.Content); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	date := now
	if p.Date != nil {
		date = p.Date.UTC()
	}
	completed := p.IsCompleted != nil && *p.IsCompleted

	image, err := images.Offload(ctx, s.images, userID, p.Image)
	if err != nil {
		return nil, err
	}

	row, err := s.db.Queries().CreateTask(ctx, db.CreateTaskParams{
		UserID:      userID,
		Title:       title,
		Content:     p.Content,
		IsCompleted: completed,
		Date:        date.Unix(),
		ImageURL:    image,
		CreatedAt:   now.Unix(),
	})
	if err != nil {
		images.Discard(ctx, s.images, image, p.Image)
		return nil, storeError("failed to create task", err)
	}
	return fromRow(row), nil
}

// List returns the owner's tasks, newest date first. Never nil.
func (s *Service) List(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.db.Queries().ListTasks(ctx, userID)
	if err != nil {
		return nil, storeError("failed to list tasks", err)
	}
	return fromRows(rows), nil
}

// ListOn returns the owner's tasks dated on day (YYYY-MM-DD) as seen at
// offsetMinutes east of UTC.
func (s *Service) ListOn(ctx context.Context, userID, day string, offsetMinutes int) ([]Task, error) {
	if err := dates.ValidateDay(day, offsetMinutes); err != nil {
		return nil, err
	}
	rows, err := s.db.Queries().ListTasksOnDay(ctx, userID, day, int64(offsetMinutes))
	if err != nil {
		return nil, storeError("failed to list tasks", err)
	}
	return fromRows(rows), nil
}

// Get returns one task. Missing and foreign ids are indistinguishable.
func (s *Service) Get(ctx context.Context, userID string, id int64) (*Task, error) {
	row, err := s.db.Queries().GetTask(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, storeError("failed to get task", err)
	}
	return fromRow(row), nil
}

// Update applies the supplied fields and returns the stored result.
func (s *Service) Update(ctx context.Context, userID string, id int64, p UpdateParams) (*Task, error) {
	u := db.NewTaskUpdate()
	var uploaded string
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		u.Title(title)
	}
	if p.Content != nil {
		if err := validateContent(*p.Content); err != nil {
			return nil, err
		}
		u.Content(*p.Content)
	}
	if p.IsCompleted != nil {
		u.IsCompleted(*p.IsCompleted)
	}
	if p.Date != nil {
		u.Date(p.Date.UTC().Unix())
	}
	if p.Image != nil {
		image, err := images.Offload(ctx, s.images, userID, *p.Image)
		if err != nil {
			return nil, err
		}
		u.ImageURL(image)
		uploaded = image
	}
	if u.Len() == 0 {
		return nil, errs.New(errs.InvalidArgument, "no fields to update")
	}

	n, err := s.db.Queries().UpdateTask(ctx, id, userID, u)
	if err != nil || n == 0 {
		if p.Image != nil {
			images.Discard(ctx, s.images, uploaded, *p.Image)
		}
		if err != nil {
			return nil, storeError("failed to update task", err)
		}
		return nil, errNotFound
	}
	return s.Get(ctx, userID, id)
}

// Delete removes one task.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	n, err := s.db.Queries().DeleteTask(ctx, id, userID)
	if err != nil {
		return storeError("failed to delete task", err)
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

func storeError(msg string, err error) error {
	if db.IsCheckViolation(err) {
		return errs.Wrap(errs.InvalidArgument, "task fields out of bounds", err)
	}
	return errs.Wrap(errs.Unavailable, msg, err)
}

func fromRow(r db.Task) *Task {
	t := &Task{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Content:     r.Content,
		IsCompleted: r.IsCompleted,
		Date:        time.Unix(r.Date, 0).UTC(),
		CreatedAt:   time.Unix(r.CreatedAt, 0).UTC(),
	}
	if r.ImageURL.Valid {
		image := r.ImageURL.String
		t.Image = &image
	}
	return t
}

func fromRows(rows []db.Task) []Task {
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, *fromRow(r))
	}
	return out
}

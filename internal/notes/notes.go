// Package notes is the owner-scoped note gateway.
package notes

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
	// PlaceholderTitle is used when a note is saved without a title.
	PlaceholderTitle = "Untitled Note"

	MinTitleLength   = 3
	MaxTitleLength   = 50
	MaxContentLength = 2500
)

var errNotFound = errs.New(errs.NotFound, "note not found")

// Note is the API shape of a note row.
type Note struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   *string   `json:"summary"`
	Image     *string   `json:"image"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateParams creates a note. An empty Title becomes PlaceholderTitle; a nil Date means now.
type CreateParams struct {
	Title   string
	Content string
	Summary string
	Image   string
	Date    *time.Time
}

// UpdateParams is a partial update. Nil fields are left unchanged.
type UpdateParams struct {
	Title   *string
	Content *string
	Summary *string
	Image   *string
	Date    *time.Time
}

// Service handles note CRUD.
type Service struct {
	db     *db.DB
	images images.Store
	now    func() time.Time
}

// NewService creates a note service. store may be nil.
func NewService(database *db.DB, store images.Store) *Service {
	return &Service{db: database, images: store, now: time.Now}
}

// SetNow overrides the clock. Intended for testing.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return PlaceholderTitle, nil
	}
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return "", errs.New(errs.InvalidArgument, "title must be between 3 and 50 characters")
	}
	return title, nil
}

func validateContent(content string) error {
	if content == "" {
		return errs.New(errs.InvalidArgument, "content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return errs.New(errs.InvalidArgument, "content must be at most 2500 characters")
	}
	return nil
}

func validateSummary(summary string) error {
	if utf8.RuneCountInString(summary) > MaxContentLength {
		return errs.New(errs.InvalidArgument, "summary must be at most 2500 characters")
	}
	return nil
}

// Create validates p and inserts a note owned by userID.
func (s *Service) Create(ctx context.Context, userID string, p CreateParams) (*Note, error) {
	title, err := normalizeTitle(p.Title)
	if err != nil {
		return nil, err
	}
	if err := validateContent(p.Content); err != nil {
		return nil, err
	}
	if err := validateSummary(p.Summary); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	date := now
	if p.Date != nil {
		date = p.Date.UTC()
	}
	image, err := images.Offload(ctx, s.images, userID, p.Image)
	if err != nil {
		return nil, err
	}

	row, err := s.db.Queries().CreateNote(ctx, db.CreateNoteParams{
		UserID:    userID,
		Title:     title,
		Content:   p.Content,
		Summary:   p.Summary,
		ImageURL:  image,
		Date:      date.Unix(),
		CreatedAt: now.Unix(),
	})
	if err != nil {
		images.Discard(ctx, s.images, image, p.Image)
		return nil, storeError("failed to create note", err)
	}
	return fromRow(row), nil
}

// List returns the owner's notes, newest date first. Never nil.
func (s *Service) List(ctx context.Context, userID string) ([]Note, error) {
	rows, err := s.db.Queries().ListNotes(ctx, userID)
	if err != nil {
		return nil, storeError("failed to list notes", err)
	}
	return fromRows(rows), nil
}

// ListOn returns the owner's notes dated on day at offsetMinutes east of UTC.
func (s *Service) ListOn(ctx context.Context, userID, day string, offsetMinutes int) ([]Note, error) {
	if err := dates.ValidateDay(day, offsetMinutes); err != nil {
		return nil, err
	}
	rows, err := s.db.Queries().ListNotesOnDay(ctx, userID, day, int64(offsetMinutes))
	if err != nil {
		return nil, storeError("failed to list notes", err)
	}
	return fromRows(rows), nil
}

// Get returns one note. Missing and foreign ids are indistinguishable.
func (s *Service) Get(ctx context.Context, userID string, id int64) (*Note, error) {
	row, err := s.db.Queries().GetNote(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound
		}
		return nil, storeError("failed to get note", err)
	}
	return fromRow(row), nil
}

// Update applies the supplied fields, stamps updated_at, and returns the stored result.
func (s *Service) Update(ctx context.Context, userID string, id int64, p UpdateParams) (*Note, error) {
	u := db.NewNoteUpdate()
	var uploaded string
	if p.Title != nil {
		title, err := normalizeTitle(*p.Title)
		if err != nil {
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
	if p.Summary != nil {
		if err := validateSummary(*p.Summary); err != nil {
			return nil, err
		}
		u.Summary(*p.Summary)
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

	n, err := s.db.Queries().UpdateNote(ctx, id, userID, u, s.now().UTC().Unix())
	if err != nil || n == 0 {
		if p.Image != nil {
			images.Discard(ctx, s.images, uploaded, *p.Image)
		}
		if err != nil {
			return nil, storeError("failed to update note", err)
		}
		return nil, errNotFound
	}
	return s.Get(ctx, userID, id)
}

// Delete removes one note.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	n, err := s.db.Queries().DeleteNote(ctx, id, userID)
	if err != nil {
		return storeError("failed to delete note", err)
	}
	if n == 0 {
		return errNotFound
	}
	return nil
}

// Render returns the note's content as sanitized HTML.
func (s *Service) Render(ctx context.Context, userID string, id int64) (string, error) {
	note, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(note.Content), nil
}

func storeError(msg string, err error) error {
	if db.IsCheckViolation(err) {
		return errs.Wrap(errs.InvalidArgument, "note fields out of bounds", err)
	}
	return errs.Wrap(errs.Unavailable, msg, err)
}

func fromRow(r db.Note) *Note {
	n := &Note{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Content:   r.Content,
		Date:      time.Unix(r.Date, 0).UTC(),
		CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(r.UpdatedAt, 0).UTC(),
	}
	if r.Summary.Valid {
		summary := r.Summary.String
		n.Summary = &summary
	}
	if r.ImageURL.Valid {
		image := r.ImageURL.String
		n.Image = &image
	}
	return n
}

func fromRows(rows []db.Note) []Note {
	out := make([]Note, 0, len(rows))
	for _, r := range rows {
		out = append(out, *fromRow(r))
	}
	return out
}

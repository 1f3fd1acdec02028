package db

import (
	"errors"
	"strings"
)

// ErrEmptyUpdate is returned when an update carries no fields.
var ErrEmptyUpdate = errors.New("no fields to update")

// updateSet collects column assignments for one table. Columns only ever come
// from the typed setters below, and values are always bound as parameters.
type updateSet struct {
	table string
	cols  []string
	args  []any
}

func (s *updateSet) set(col string, v any) {
	for i, c := range s.cols {
		if c == col {
			s.args[i] = v
			return
		}
	}
	s.cols = append(s.cols, col)
	s.args = append(s.args, v)
}

// Len is the number of assigned columns.
func (s *updateSet) Len() int {
	return len(s.cols)
}

// Columns returns the assigned columns in assignment order.
func (s *updateSet) Columns() []string {
	return append([]string(nil), s.cols...)
}

// build renders an owner-scoped UPDATE. extra assignments (e.g. updated_at)
// are appended but do not count toward emptiness.
func (s *updateSet) build(id int64, userID string, extraCols []string, extraArgs []any) (string, []any, error) {
	if len(s.cols) == 0 {
		return "", nil, ErrEmptyUpdate
	}
	cols := append(append([]string(nil), s.cols...), extraCols...)
	args := append(append([]any(nil), s.args...), extraArgs...)

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(s.table)
	b.WriteString(" SET ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(" = ?")
	}
	b.WriteString(" WHERE id = ? AND user_id = ?")
	return b.String(), append(args, id, userID), nil
}

// TaskUpdate is a typed set of task column changes. Unset fields are left untouched.
type TaskUpdate struct {
	updateSet
}

func NewTaskUpdate() *TaskUpdate {
	return &TaskUpdate{updateSet{table: "task"}}
}

func (u *TaskUpdate) Title(v string) *TaskUpdate     { u.set("title", v); return u }
func (u *TaskUpdate) Content(v string) *TaskUpdate   { u.set("content", v); return u }
func (u *TaskUpdate) IsCompleted(v bool) *TaskUpdate { u.set("is_completed", boolToInt(v)); return u }
func (u *TaskUpdate) Date(unix int64) *TaskUpdate    { u.set("date", unix); return u }

// ImageURL sets image_url; an empty string clears it to NULL.
func (u *TaskUpdate) ImageURL(v string) *TaskUpdate { u.set("image_url", nullString(v)); return u }

// Build renders the statement for task id owned by userID.
func (u *TaskUpdate) Build(id int64, userID string) (string, []any, error) {
	return u.build(id, userID, nil, nil)
}

// NoteUpdate is a typed set of note column changes. Unset fields are left untouched.
type NoteUpdate struct {
	updateSet
}

func NewNoteUpdate() *NoteUpdate {
	return &NoteUpdate{updateSet{table: "note"}}
}

func (u *NoteUpdate) Title(v string) *NoteUpdate   { u.set("title", v); return u }
func (u *NoteUpdate) Content(v string) *NoteUpdate { u.set("content", v); return u }
func (u *NoteUpdate) Date(unix int64) *NoteUpdate  { u.set("date", unix); return u }

// Summary sets summary; an empty string clears it to NULL.
func (u *NoteUpdate) Summary(v string) *NoteUpdate { u.set("summary", nullString(v)); return u }

// ImageURL sets image_url; an empty string clears it to NULL.
func (u *NoteUpdate) ImageURL(v string) *NoteUpdate { u.set("image_url", nullString(v)); return u }

// Build renders the statement for note id owned by userID, stamping updated_at.
func (u *NoteUpdate) Build(id int64, userID string, updatedAt int64) (string, []any, error) {
	return u.build(id, userID, []string{"updated_at"}, []any{updatedAt})
}

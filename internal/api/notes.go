package api

import (
	"net/http"

	"github.com/kuitang/notedesk/internal/dates"
	"github.com/kuitang/notedesk/internal/notes"
)

// NoteRequest is the body of POST and PUT /api/user/notes.
type NoteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Summary *string `json:"summary"`
	Image   *string `json:"image"`
	Date    *string `json:"date"`
}

// ListNotes handles GET /api/user/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	day, offset, filtered, err := dayFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var list []notes.Note
	if filtered {
		list, err = h.notes.ListOn(r.Context(), userID(r), day, offset)
	} else {
		list, err = h.notes.List(r.Context(), userID(r))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateNote handles POST /api/user/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := dates.ParseOptional(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	note, err := h.notes.Create(r.Context(), userID(r), notes.CreateParams{
		Title:   deref(req.Title),
		Content: deref(req.Content),
		Summary: deref(req.Summary),
		Image:   deref(req.Image),
		Date:    date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/user/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errNoteNotFound)
		return
	}
	note, err := h.notes.Get(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/user/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errNoteNotFound)
		return
	}
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := dates.ParseOptional(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	note, err := h.notes.Update(r.Context(), userID(r), id, notes.UpdateParams{
		Title:   req.Title,
		Content: req.Content,
		Summary: req.Summary,
		Image:   req.Image,
		Date:    date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/user/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errNoteNotFound)
		return
	}
	if err := h.notes.Delete(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, ID: id})
}

// RenderNote handles GET /api/user/notes/{id}/html.
func (h *Handler) RenderNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errNoteNotFound)
		return
	}
	html, err := h.notes.Render(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": html})
}

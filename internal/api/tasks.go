package api

import (
	"net/http"

	"github.com/kuitang/notedesk/internal/dates"
	"github.com/kuitang/notedesk/internal/tasks"
)

// TaskRequest is the body of POST and PUT /api/user/tasks. Absent fields are
// left unchanged on update. A userId field, if sent, is ignored.
type TaskRequest struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	IsCompleted *bool   `json:"isCompleted"`
	Date        *string `json:"date"`
	Image       *string `json:"image"`
}

// ListTasks handles GET /api/user/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	day, offset, filtered, err := dayFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var list []tasks.Task
	if filtered {
		list, err = h.tasks.ListOn(r.Context(), userID(r), day, offset)
	} else {
		list, err = h.tasks.List(r.Context(), userID(r))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateTask handles POST /api/user/tasks.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := dates.ParseOptional(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), userID(r), tasks.CreateParams{
		Title:       deref(req.Title),
		Content:     deref(req.Content),
		IsCompleted: req.IsCompleted,
		Date:        date,
		Image:       deref(req.Image),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// GetTask handles GET /api/user/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errTaskNotFound)
		return
	}
	task, err := h.tasks.Get(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PUT /api/user/tasks/{id}.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errTaskNotFound)
		return
	}
	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := dates.ParseOptional(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), userID(r), id, tasks.UpdateParams{
		Title:       req.Title,
		Content:     req.Content,
		IsCompleted: req.IsCompleted,
		Date:        date,
		Image:       req.Image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/user/tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errTaskNotFound)
		return
	}
	if err := h.tasks.Delete(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, ID: id})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

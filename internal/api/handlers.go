// Package api serves the /api/user gateway, the /api/ai helpers and the ping
// endpoints. Every /api/user and /api/ai route runs behind session auth; the
// owner id always comes from the session, never from the request body.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuitang/notedesk/internal/ai"
	"github.com/kuitang/notedesk/internal/auth"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/notes"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/tasks"
)

// maxBodyBytes leaves room for an inline 5 MiB image encoded as base64.
const maxBodyBytes = 8 << 20

var (
	errTaskNotFound = errs.New(errs.NotFound, "task not found")
	errNoteNotFound = errs.New(errs.NotFound, "note not found")
	errBadJSON      = errs.New(errs.InvalidArgument, "invalid JSON body")
)

// Handler wraps the task and note services and provides HTTP handlers.
type Handler struct {
	tasks     *tasks.Service
	notes     *notes.Service
	assistant ai.Assistant
}

// NewHandler creates a new API handler. assistant may be nil, in which case the
// AI routes always answer with their fallbacks.
func NewHandler(tasksService *tasks.Service, notesService *notes.Service, assistant ai.Assistant) *Handler {
	return &Handler{tasks: tasksService, notes: notesService, assistant: assistant}
}

// RegisterRoutes registers the gateway and AI routes behind protect, plus the
// public ping and health routes. protect must authenticate the caller.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	handle("GET /api/user/tasks", h.ListTasks)
	handle("POST /api/user/tasks", h.CreateTask)
	handle("GET /api/user/tasks/{id}", h.GetTask)
	handle("PUT /api/user/tasks/{id}", h.UpdateTask)
	handle("DELETE /api/user/tasks/{id}", h.DeleteTask)

	handle("GET /api/user/notes", h.ListNotes)
	handle("POST /api/user/notes", h.CreateNote)
	handle("GET /api/user/notes/{id}", h.GetNote)
	handle("PUT /api/user/notes/{id}", h.UpdateNote)
	handle("DELETE /api/user/notes/{id}", h.DeleteNote)
	handle("GET /api/user/notes/{id}/html", h.RenderNote)

	handle("POST /api/ai/generate-summary-title", h.GenerateSummaryTitle)
	handle("POST /api/ai/generate-enhanced-content", h.GenerateEnhancedContent)

	mux.HandleFunc("GET /ping", HandlePing)
	mux.HandleFunc("GET /api/ping", HandlePing)
	mux.HandleFunc("GET /health", HandleHealth)
}

// DeleteResponse is the body of a successful delete.
type DeleteResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

// pathID parses the {id} segment. Anything that is not a positive integer reads
// as an id nobody owns.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// dayFilter reads ?day=YYYY-MM-DD&tzOffset=N. tzOffset uses the browser
// convention (minutes, UTC minus local), so it is negated into minutes east.
func dayFilter(r *http.Request) (day string, offsetEast int, ok bool, err error) {
	q := r.URL.Query()
	day = strings.TrimSpace(q.Get("day"))
	if day == "" {
		return "", 0, false, nil
	}
	if raw := strings.TrimSpace(q.Get("tzOffset")); raw != "" {
		minutes, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return "", 0, false, errs.New(errs.InvalidArgument, "tzOffset must be an integer number of minutes")
		}
		offsetEast = -minutes
	}
	return day, offsetEast, true, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.New(errs.InvalidArgument, "request body too large")
		}
		return errBadJSON
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).With("pkg", "api").Error("api_request_failed",
			"method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": errs.MessageOf(err)})
}

func userID(r *http.Request) string {
	return auth.UserIDFromContext(r.Context())
}

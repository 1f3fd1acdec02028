package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notedesk/internal/ai"
	"github.com/kuitang/notedesk/internal/auth"
	"github.com/kuitang/notedesk/internal/db"
	"github.com/kuitang/notedesk/internal/notes"
	"github.com/kuitang/notedesk/internal/ratelimit"
	"github.com/kuitang/notedesk/internal/tasks"
	"github.com/kuitang/notedesk/internal/testdb"
	"github.com/kuitang/notedesk/internal/urlutil"
)

type testServer struct {
	mux   *http.ServeMux
	db    *db.DB
	authn *auth.Authenticator
	tasks *tasks.Service
	notes *notes.Service
}

// testingT is the subset of *testing.T and *rapid.T the helpers need.
type testingT interface {
	require.TestingT
	Helper()
}

func newTestServer(t *testing.T, assistant ai.Assistant, limiter *ratelimit.RateLimiter) *testServer {
	t.Helper()
	s := openTestServer(t, assistant, limiter)
	t.Cleanup(func() { _ = s.db.Close() })
	return s
}

func openTestServer(t testingT, assistant ai.Assistant, limiter *ratelimit.RateLimiter) *testServer {
	t.Helper()
	d, err := testdb.New()
	require.NoError(t, err)

	s := &testServer{
		mux:   http.NewServeMux(),
		db:    d,
		authn: auth.NewAuthenticator(d, 0),
		tasks: tasks.NewService(d, nil),
		notes: notes.NewService(d, nil),
	}
	NewHandler(s.tasks, s.notes, assistant).RegisterRoutes(s.mux, Protect(s.authn, limiter))
	return s
}

// signIn creates a user and returns its id and a bearer token.
func (s *testServer) signIn(t testingT, email string) (string, string) {
	t.Helper()
	ctx := context.Background()
	u, err := testdb.CreateUser(ctx, s.db, "Test User", email)
	require.NoError(t, err)
	issued, err := s.authn.Create(ctx, u.ID, auth.SessionMeta{})
	require.NoError(t, err)
	return u.ID, issued.Token
}

func (s *testServer) do(t testingT, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t testingT, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func errorMessage(t testingT, rec *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rec)["error"]
}

func TestUnauthenticatedRequestsGet401WithoutDataAccess(t *testing.T) {
	s := newTestServer(t, ai.LocalAssistant{}, nil)
	userID, _ := s.signIn(t, "owner@example.com")
	task, err := s.tasks.Create(context.Background(), userID, tasks.CreateParams{Title: "secret task"})
	require.NoError(t, err)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/user/tasks"},
		{http.MethodPost, "/api/user/tasks"},
		{http.MethodGet, "/api/user/tasks/1"},
		{http.MethodPut, "/api/user/tasks/1"},
		{http.MethodDelete, "/api/user/tasks/1"},
		{http.MethodGet, "/api/user/notes"},
		{http.MethodPost, "/api/user/notes"},
		{http.MethodGet, "/api/user/notes/1"},
		{http.MethodPut, "/api/user/notes/1"},
		{http.MethodDelete, "/api/user/notes/1"},
		{http.MethodGet, "/api/user/notes/1/html"},
		{http.MethodPost, "/api/ai/generate-summary-title"},
		{http.MethodPost, "/api/ai/generate-enhanced-content"},
	}
	for _, token := range []string{"", "not-a-session"} {
		for _, rt := range routes {
			rec := s.do(t, rt.method, rt.path, token, `{"title":"hijack","content":"x"}`)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
			assert.Equal(t, "unauthorized", errorMessage(t, rec))
			assert.NotContains(t, rec.Body.String(), "secret task")
		}
	}

	// The row survived every rejected write.
	got, err := s.tasks.Get(context.Background(), userID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret task", got.Title)
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t, nil, nil)
	userID, token := s.signIn(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/user/tasks", token, map[string]any{
		"title":   "Buy milk",
		"content": "two liters",
		"date":    "2026-03-01",
		"userId":  "someone-else",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[tasks.Task](t, rec)
	assert.Equal(t, userID, created.UserID, "userId from the body must be ignored")
	assert.Equal(t, "Buy milk", created.Title)
	assert.False(t, created.IsCompleted)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), created.Date.UTC())

	path := "/api/user/tasks/" + itoa(created.ID)
	rec = s.do(t, http.MethodPut, path, token, map[string]any{"isCompleted": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[tasks.Task](t, rec)
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, "Buy milk", updated.Title, "omitted fields keep their values")
	assert.Equal(t, "two liters", updated.Content)

	rec = s.do(t, http.MethodGet, "/api/user/tasks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]tasks.Task](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = s.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DeleteResponse{Success: true, ID: created.ID}, decode[DeleteResponse](t, rec))

	rec = s.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForeignIDsLookMissing(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ownerID, _ := s.signIn(t, "owner@example.com")
	_, intruder := s.signIn(t, "intruder@example.com")
	ctx := context.Background()

	task, err := s.tasks.Create(ctx, ownerID, tasks.CreateParams{Title: "Owner task"})
	require.NoError(t, err)
	note, err := s.notes.Create(ctx, ownerID, notes.CreateParams{Content: "owner note"})
	require.NoError(t, err)

	taskPath := "/api/user/tasks/" + itoa(task.ID)
	notePath := "/api/user/notes/" + itoa(note.ID)
	missing := s.do(t, http.MethodGet, "/api/user/tasks/999999", intruder, nil)
	foreign := s.do(t, http.MethodGet, taskPath, intruder, nil)
	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, missing.Body.String(), foreign.Body.String())

	for _, rec := range []*httptest.ResponseRecorder{
		s.do(t, http.MethodPut, taskPath, intruder, map[string]any{"title": "Hijacked"}),
		s.do(t, http.MethodDelete, taskPath, intruder, nil),
		s.do(t, http.MethodGet, notePath, intruder, nil),
		s.do(t, http.MethodPut, notePath, intruder, map[string]any{"content": "hijacked"}),
		s.do(t, http.MethodDelete, notePath, intruder, nil),
		s.do(t, http.MethodGet, notePath+"/html", intruder, nil),
	} {
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/user/tasks", intruder, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	gotTask, err := s.tasks.Get(ctx, ownerID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Owner task", gotTask.Title)
	gotNote, err := s.notes.Get(ctx, ownerID, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner note", gotNote.Content)
}

func TestBadInputs(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.signIn(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/user/tasks", token, `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", errorMessage(t, rec))

	rec = s.do(t, http.MethodPost, "/api/user/tasks", token, map[string]any{"title": "ab"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/user/tasks", token, map[string]any{"title": "Valid", "date": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/user/tasks?day=2026-03-01&tzOffset=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/user/tasks?day=03/01/2026", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing was written by any rejected request.
	rec = s.do(t, http.MethodGet, "/api/user/tasks", token, nil)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func testNonNumericIDIsNotFound(t *rapid.T) {
	s := openTestServer(t, nil, nil)
	defer s.db.Close()
	_, token := s.signIn(t, "ada@example.com")

	id := rapid.StringMatching(`[a-zA-Z_\-]{1,12}|-[0-9]{1,5}|0`).Draw(t, "id")
	collection := rapid.SampledFrom([]string{"tasks", "notes"}).Draw(t, "collection")
	method := rapid.SampledFrom([]string{http.MethodGet, http.MethodPut, http.MethodDelete}).Draw(t, "method")

	rec := s.do(t, method, "/api/user/"+collection+"/"+id, token, map[string]any{"title": "Anything"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("%s /api/user/%s/%s: got %d, want 404", method, collection, id, rec.Code)
	}
}

func TestNonNumericIDIsNotFound(t *testing.T) {
	rapid.Check(t, testNonNumericIDIsNotFound)
}

func FuzzNonNumericIDIsNotFound(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testNonNumericIDIsNotFound))
}

func TestListByCalendarDayUsesBrowserOffset(t *testing.T) {
	s := newTestServer(t, nil, nil)
	userID, token := s.signIn(t, "ada@example.com")
	ctx := context.Background()

	// 03:00 UTC on March 2 is still March 1 in UTC-5.
	late := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	_, err := s.tasks.Create(ctx, userID, tasks.CreateParams{Title: "Late task", Date: &late})
	require.NoError(t, err)
	_, err = s.notes.Create(ctx, userID, notes.CreateParams{Content: "late note", Date: &late})
	require.NoError(t, err)

	for _, collection := range []string{"tasks", "notes"} {
		rec := s.do(t, http.MethodGet, "/api/user/"+collection+"?day=2026-03-01&tzOffset=300", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decode[[]map[string]any](t, rec), 1, collection)

		rec = s.do(t, http.MethodGet, "/api/user/"+collection+"?day=2026-03-02&tzOffset=300", token, nil)
		assert.Empty(t, decode[[]map[string]any](t, rec), collection)

		rec = s.do(t, http.MethodGet, "/api/user/"+collection+"?day=2026-03-02", token, nil)
		assert.Len(t, decode[[]map[string]any](t, rec), 1, collection)
	}
}

func TestNoteLifecycleAndRender(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, token := s.signIn(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/user/notes", token, map[string]any{
		"content": "# Groceries\n\n- milk\n<script>alert(1)</script>",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decode[notes.Note](t, rec)
	assert.Equal(t, notes.PlaceholderTitle, note.Title)

	path := "/api/user/notes/" + itoa(note.ID)
	rec = s.do(t, http.MethodGet, path+"/html", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	html := decode[map[string]string](t, rec)["html"]
	assert.Contains(t, html, "Groceries</h1>")
	assert.Contains(t, html, "<li>milk</li>")
	assert.NotContains(t, html, "<script")

	rec = s.do(t, http.MethodPut, path, token, map[string]any{"title": "Groceries", "summary": "shopping"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[notes.Note](t, rec)
	assert.Equal(t, "Groceries", updated.Title)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, "shopping", *updated.Summary)
	assert.Equal(t, note.Content, updated.Content)

	rec = s.do(t, http.MethodPut, path, token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no fields to update", errorMessage(t, rec))

	rec = s.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DeleteResponse{Success: true, ID: note.ID}, decode[DeleteResponse](t, rec))
}

type failingAssistant struct{}

func (failingAssistant) Summarize(context.Context, string) (string, error) {
	return "", errors.New("upstream down")
}

func (failingAssistant) Enhance(context.Context, string) (string, error) {
	return "", errors.New("upstream down")
}

func TestAIRoutes(t *testing.T) {
	s := newTestServer(t, ai.LocalAssistant{}, nil)
	_, token := s.signIn(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/ai/generate-summary-title", token, AIRequest{Content: "plan the team offsite in march please"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plan the team offsite in march", decode[map[string]string](t, rec)["title"])

	rec = s.do(t, http.MethodPost, "/api/ai/generate-enhanced-content", token, AIRequest{Content: "hello   world. second line"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["enhancedContent"])

	for _, path := range []string{"/api/ai/generate-summary-title", "/api/ai/generate-enhanced-content"} {
		rec = s.do(t, http.MethodPost, path, token, AIRequest{Content: "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "content is required", errorMessage(t, rec))
	}
}

func TestAIRoutesFallBackOnFailure(t *testing.T) {
	s := newTestServer(t, failingAssistant{}, nil)
	_, token := s.signIn(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/ai/generate-summary-title", token, AIRequest{Content: "some note"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ai.FallbackTitle, decode[map[string]string](t, rec)["title"])

	rec = s.do(t, http.MethodPost, "/api/ai/generate-enhanced-content", token, AIRequest{Content: "keep me as is"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "keep me as is", decode[map[string]string](t, rec)["enhancedContent"])
}

func TestPing(t *testing.T) {
	s := newTestServer(t, nil, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	client := fixed.Add(-250 * time.Millisecond).UnixMilli()
	for _, path := range []string{"/ping", "/api/ping"} {
		rec := s.do(t, http.MethodGet, path+"?timestamp="+itoa(client), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[PingResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "2026-03-01T12:00:00Z", resp.ServerTimestamp)
		require.NotNil(t, resp.TimeDiff)
		assert.Equal(t, int64(250), *resp.TimeDiff)
	}

	rec := s.do(t, http.MethodGet, "/api/ping?clientTimestamp=2026-03-01T11:59:59Z", "", nil)
	resp := decode[PingResponse](t, rec)
	require.NotNil(t, resp.TimeDiff)
	assert.Equal(t, int64(1000), *resp.TimeDiff)

	rec = s.do(t, http.MethodGet, "/ping", "", nil)
	resp = decode[PingResponse](t, rec)
	assert.Nil(t, resp.ClientTimestamp)
	assert.Nil(t, resp.TimeDiff)

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, rec))
}

func TestPerUserRateLimit(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(ratelimit.Config{UserRPS: 0.001, UserBurst: 2, AnonRPS: 1, AnonBurst: 1})
	t.Cleanup(limiter.Stop)
	s := newTestServer(t, nil, limiter)
	_, first := s.signIn(t, "first@example.com")
	_, second := s.signIn(t, "second@example.com")

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/user/tasks", first, nil).Code)
	}
	rec := s.do(t, http.MethodGet, "/api/user/tasks", first, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Buckets are per user.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/user/tasks", second, nil).Code)
}

func TestCORSMiddleware(t *testing.T) {
	origins := urlutil.NewOriginMatcher([]string{"http://localhost:3000", "https://*.vercel.app"})
	handler := CORSMiddleware(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	serve := func(method, origin string, preflight bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/user/tasks", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if preflight {
			req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(http.MethodOptions, "https://preview-42.vercel.app", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://preview-42.vercel.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	rec = serve(http.MethodOptions, "https://evil.example.com", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(http.MethodGet, "http://localhost:3000", false)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(http.MethodGet, "https://evil.example.com", false)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(http.MethodGet, "", false)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Package client is a typed HTTP client for the notedesk gateway plus an
// optimistic in-memory cache for UI consumers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/notedesk/internal/api"
	"github.com/kuitang/notedesk/internal/auth"
	"github.com/kuitang/notedesk/internal/dates"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/notes"
	"github.com/kuitang/notedesk/internal/tasks"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// APIError is a non-2xx gateway response. errs.CodeOf reports its Code.
type APIError struct {
	Status  int
	Code    errs.Code
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap exposes the error as a coded errs.Error.
func (e *APIError) Unwrap() error {
	return errs.New(e.Code, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (a cookie jar and a 15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken presents token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client calls the gateway over HTTP. Sessions are carried both by the
// cookie jar and, after SignIn or SignUp, as a bearer token.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token, or "".
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SignUp creates an account and keeps the issued session.
func (c *Client) SignUp(ctx context.Context, name, email, password string) (*auth.User, error) {
	var resp auth.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/sign-up", auth.SignUpRequest{Name: name, Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.setToken(resp.Token)
	return resp.User, nil
}

// SignIn authenticates and keeps the issued session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*auth.User, error) {
	var resp auth.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/sign-in", auth.SignInRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.setToken(resp.Token)
	return resp.User, nil
}

// SignOut ends the session server-side and forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-out", nil, nil)
	c.setToken("")
	return err
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*auth.User, error) {
	var resp struct {
		User *auth.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ListTasks returns every task of the signed-in user, newest date first.
func (c *Client) ListTasks(ctx context.Context) ([]tasks.Task, error) {
	var out []tasks.Task
	if err := c.do(ctx, http.MethodGet, "/api/user/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTasksOn returns tasks dated on day as seen in loc.
func (c *Client) ListTasksOn(ctx context.Context, day string, loc *time.Location) ([]tasks.Task, error) {
	var out []tasks.Task
	if err := c.do(ctx, http.MethodGet, "/api/user/tasks?"+dayQuery(day, loc), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTask(ctx context.Context, in api.TaskRequest) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodPost, "/api/user/tasks", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, in api.TaskRequest) (*tasks.Task, error) {
	var out tasks.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

// ListNotes returns every note of the signed-in user, newest date first.
func (c *Client) ListNotes(ctx context.Context) ([]notes.Note, error) {
	var out []notes.Note
	if err := c.do(ctx, http.MethodGet, "/api/user/notes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNotesOn returns notes dated on day as seen in loc.
func (c *Client) ListNotesOn(ctx context.Context, day string, loc *time.Location) ([]notes.Note, error) {
	var out []notes.Note
	if err := c.do(ctx, http.MethodGet, "/api/user/notes?"+dayQuery(day, loc), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetNote(ctx context.Context, id int64) (*notes.Note, error) {
	var out notes.Note
	if err := c.do(ctx, http.MethodGet, notePath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateNote(ctx context.Context, in api.NoteRequest) (*notes.Note, error) {
	var out notes.Note
	if err := c.do(ctx, http.MethodPost, "/api/user/notes", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateNote(ctx context.Context, id int64, in api.NoteRequest) (*notes.Note, error) {
	var out notes.Note
	if err := c.do(ctx, http.MethodPut, notePath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteNote(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, notePath(id), nil, nil)
}

// RenderNote returns the note's sanitized HTML.
func (c *Client) RenderNote(ctx context.Context, id int64) (string, error) {
	var out struct {
		HTML string `json:"html"`
	}
	if err := c.do(ctx, http.MethodGet, notePath(id)+"/html", nil, &out); err != nil {
		return "", err
	}
	return out.HTML, nil
}

// SummaryTitle asks the server for a short title for content.
func (c *Client) SummaryTitle(ctx context.Context, content string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/ai/generate-summary-title", api.AIRequest{Content: content}, &out); err != nil {
		return "", err
	}
	return out.Title, nil
}

// EnhancedContent asks the server to polish content.
func (c *Client) EnhancedContent(ctx context.Context, content string) (string, error) {
	var out struct {
		EnhancedContent string `json:"enhancedContent"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/ai/generate-enhanced-content", api.AIRequest{Content: content}, &out); err != nil {
		return "", err
	}
	return out.EnhancedContent, nil
}

// Ping reports the server clock and its offset from the local clock.
func (c *Client) Ping(ctx context.Context) (*api.PingResponse, error) {
	var out api.PingResponse
	path := "/api/ping?timestamp=" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Unavailable, "invalid response body", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Code:    errs.FromHTTPStatus(resp.StatusCode),
		Message: http.StatusText(resp.StatusCode),
	}
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

func taskPath(id int64) string { return "/api/user/tasks/" + strconv.FormatInt(id, 10) }
func notePath(id int64) string { return "/api/user/notes/" + strconv.FormatInt(id, 10) }

// dayQuery encodes the browser offset convention: minutes, UTC minus local.
// The offset is taken at noon of day, so DST transitions resolve to that day.
func dayQuery(day string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	at := time.Now().In(loc)
	if t, err := time.ParseInLocation(dates.DayLayout, day, loc); err == nil {
		at = t.Add(12 * time.Hour)
	}
	_, offsetSeconds := at.Zone()
	v := url.Values{}
	v.Set("day", day)
	v.Set("tzOffset", strconv.Itoa(-offsetSeconds/60))
	return v.Encode()
}

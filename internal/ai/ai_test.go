package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func completionServer(t *testing.T, reply string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func newTestAssistant(url string) *OpenAIAssistant {
	return NewOpenAIAssistant(Config{APIKey: "test-key", BaseURL: url, Model: "test-model"})
}

func TestOpenAIAssistant_Summarize(t *testing.T) {
	ts, calls := completionServer(t, "  \"Weekly Grocery Plan\"\n", http.StatusOK)
	title, err := newTestAssistant(ts.URL).Summarize(context.Background(), "milk, eggs, bread")
	require.NoError(t, err)
	assert.Equal(t, "Weekly Grocery Plan", title)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIAssistant_Enhance(t *testing.T) {
	ts, _ := completionServer(t, "Buy milk and eggs.\n", http.StatusOK)
	out, err := newTestAssistant(ts.URL).Enhance(context.Background(), "buy milk n eggs")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk and eggs.", out)
}

func TestOpenAIAssistant_Errors(t *testing.T) {
	ts, _ := completionServer(t, "", http.StatusOK)
	_, err := newTestAssistant(ts.URL).Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	failing, _ := completionServer(t, "", http.StatusBadRequest)
	_, err = newTestAssistant(failing.URL).Enhance(context.Background(), "x")
	assert.Error(t, err)
}

func testCleanTitle_Bounded(t *rapid.T) {
	s := rapid.String().Draw(t, "s")
	got := CleanTitle(s)
	if utf8.RuneCountInString(got) > MaxTitleLength {
		t.Fatalf("title too long: %d runes", utf8.RuneCountInString(got))
	}
	if strings.Contains(got, "\n") || got != strings.TrimSpace(got) {
		t.Fatalf("title not trimmed to one line: %q", got)
	}
	if strings.HasPrefix(got, `"`) || strings.HasSuffix(got, `"`) {
		t.Fatalf("title keeps quotes: %q", got)
	}
}

func TestCleanTitle_Bounded(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCleanTitle_Bounded)
}

func FuzzCleanTitle_Bounded(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testCleanTitle_Bounded))
}

func TestLocalAssistant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var a Assistant = LocalAssistant{}

	title, err := a.Summarize(ctx, "plan the   team offsite for next spring quarter please")
	require.NoError(t, err)
	assert.Equal(t, "plan the team offsite for next", title)

	_, err = a.Summarize(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	out, err := a.Enhance(ctx, "  hello   world. this is  fine!  ok\nsecond line ")
	require.NoError(t, err)
	assert.Equal(t, "Hello world. This is fine! Ok\nSecond line", out)
}

// Package ai generates note titles and polished rewrites through an
// OpenAI-compatible chat completions API.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kuitang/notedesk/internal/logutil"
	"github.com/kuitang/notedesk/internal/obs"
)

const (
	// FallbackTitle is returned to clients when no title can be generated.
	FallbackTitle = "Untitled Note"
	// MaxTitleLength matches the note title bound.
	MaxTitleLength = 50

	summarizeSystemPrompt = "You are a helpful AI assistant that summarizes the content of user notes. Output ONLY the summary of the text, without any introductory or concluding remarks."
	enhanceSystemPrompt   = "You are a helpful AI assistant that improves the clarity, grammar, and tone of user notes. Output ONLY the enhanced version of the text, without any introductory or concluding remarks."
)

// ErrEmptyCompletion means the model answered with no usable text.
var ErrEmptyCompletion = errors.New("ai: empty completion")

// Assistant writes titles and rewrites for note content.
type Assistant interface {
	// Summarize returns a short title for content.
	Summarize(ctx context.Context, content string) (string, error)
	// Enhance returns content rewritten for clarity and grammar.
	Enhance(ctx context.Context, content string) (string, error)
}

// Config configures the chat completions client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIAssistant calls a chat completions endpoint (Groq by default).
type OpenAIAssistant struct {
	client openai.Client
	model  string
}

// NewOpenAIAssistant creates an assistant. Extra options are appended after
// the ones derived from cfg.
func NewOpenAIAssistant(cfg Config, opts ...option.RequestOption) *OpenAIAssistant {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIAssistant{
		client: openai.NewClient(append(base, opts...)...),
		model:  cfg.Model,
	}
}

// Summarize asks the model for a 5 to 6 word title.
func (a *OpenAIAssistant) Summarize(ctx context.Context, content string) (string, error) {
	out, err := a.complete(ctx, "summarize", summarizeSystemPrompt,
		`Summarize the following note into a short, concise title (max 5-6 words): "`+content+`"`)
	if err != nil {
		return "", err
	}
	title := CleanTitle(out)
	if title == "" {
		return "", ErrEmptyCompletion
	}
	return title, nil
}

// Enhance asks the model to polish content.
func (a *OpenAIAssistant) Enhance(ctx context.Context, content string) (string, error) {
	out, err := a.complete(ctx, "enhance", enhanceSystemPrompt, "Enhance and polish the following text:\n\n"+content)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}

func (a *OpenAIAssistant) complete(ctx context.Context, op, system, user string) (string, error) {
	logger := obs.From(ctx).With("pkg", "ai", "op", op, "model", a.model)
	start := time.Now()

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		logger.Warn("ai_completion_failed", "duration", time.Since(start), "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		logger.Warn("ai_completion_empty", "duration", time.Since(start))
		return "", ErrEmptyCompletion
	}
	out := resp.Choices[0].Message.Content
	logger.Debug("ai_completion",
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"output", logutil.TruncateForLog(out, 200),
	)
	return out, nil
}

// CleanTitle trims whitespace and wrapping quotes, keeps the first line, and
// caps the result at MaxTitleLength runes.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = strings.TrimSpace(line)
	}
	s = trimTitleEdges(strings.TrimPrefix(s, "Title:"))
	if utf8.RuneCountInString(s) > MaxTitleLength {
		s = trimTitleEdges(string([]rune(s)[:MaxTitleLength]))
	}
	return s
}

func trimTitleEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("\"'`“”‘’*", r)
	})
}

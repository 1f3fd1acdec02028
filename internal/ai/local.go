package ai

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LocalAssistant is a deterministic offline Assistant for --no-ai and tests.
// Titles are the first words of the note; enhancement normalizes whitespace
// and capitalizes sentence starts.
type LocalAssistant struct{}

const localTitleWords = 6

func (LocalAssistant) Summarize(ctx context.Context, content string) (string, error) {
	words := strings.Fields(content)
	if len(words) == 0 {
		return "", ErrEmptyCompletion
	}
	if len(words) > localTitleWords {
		words = words[:localTitleWords]
	}
	title := CleanTitle(strings.Join(words, " "))
	if title == "" {
		return "", ErrEmptyCompletion
	}
	return title, nil
}

func (LocalAssistant) Enhance(ctx context.Context, content string) (string, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	for i, line := range lines {
		lines[i] = capitalizeSentences(strings.Join(strings.Fields(line), " "))
	}
	out := strings.Join(lines, "\n")
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}

func capitalizeSentences(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if start && unicode.IsLetter(r) {
			r = unicode.ToUpper(r)
			start = false
		} else if !unicode.IsSpace(r) {
			start = false
		}
		if r == '.' || r == '!' || r == '?' {
			start = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

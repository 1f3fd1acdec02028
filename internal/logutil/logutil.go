// Package logutil keeps credentials and oversized payloads out of log lines.
package logutil

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

// Matched against keys with case, '-' and '_' removed.
var sensitiveFragments = []string{"auth", "token", "secret", "password", "apikey", "cookie", "session"}

// IsSensitiveLogField reports whether a header or JSON key may hold a credential.
func IsSensitiveLogField(key string) bool {
	k := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
	return slices.ContainsFunc(sensitiveFragments, func(f string) bool {
		return strings.Contains(k, f)
	})
}

// FormatHeadersForLog renders headers as `name="v1, v2"; ...` sorted by name,
// with sensitive values replaced.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(strings.ToLower(name))
		b.WriteByte('=')
		switch {
		case len(headers[name]) == 0:
			b.WriteString("<empty>")
		case IsSensitiveLogField(name):
			b.WriteString(strconv.Quote(redacted))
		default:
			b.WriteString(strconv.Quote(strings.Join(headers[name], ", ")))
		}
	}
	return b.String()
}

// RedactBodyForLog masks sensitive keys at any depth of a JSON body. Bodies
// that are not JSON, or do not parse, come back unchanged.
func RedactBodyForLog(contentType string, body []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return string(body)
	}
	var payload any
	if json.Unmarshal(body, &payload) != nil {
		return string(body)
	}
	out, err := json.Marshal(redactValue(payload))
	if err != nil {
		return string(body)
	}
	return string(out)
}

func redactValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, child := range v {
			if IsSensitiveLogField(k) {
				v[k] = redacted
			} else {
				v[k] = redactValue(child)
			}
		}
	case []any:
		for i, child := range v {
			v[i] = redactValue(child)
		}
	}
	return v
}

// FormatBodyForLog caps body at maxBytes (0 means no cap) and redacts it.
// truncated marks a body the caller already cut short.
func FormatBodyForLog(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body, truncated = body[:maxBytes], true
	}
	text := RedactBodyForLog(contentType, body)
	if truncated {
		text += " [truncated]"
	}
	return text
}

// TruncateForLog flattens value onto one line and keeps at most maxChars runes.
func TruncateForLog(value string, maxChars int) string {
	s := strings.ReplaceAll(strings.TrimSpace(value), "\n", `\n`)
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars]) + "... [truncated]"
}

// MaskEmail turns "ada@example.com" into "a***@example.com".
func MaskEmail(addr string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || local == "" {
		return redacted
	}
	first, _ := utf8.DecodeRuneInString(local)
	return string(first) + "***@" + domain
}

// Package urlutil normalizes origins, matches them against an allow-list,
// and builds absolute links.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

// BuildAbsolute builds an absolute URL from a base origin and a path.
func BuildAbsolute(base, path string) string {
	base = normalizeBaseURL(base)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// NormalizeOrigin reduces a URL or origin to lowercase scheme://host[:port].
// Default ports are dropped. It returns "" for anything without a scheme and host.
func NormalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// OriginMatcher is an origin allow-list. Patterns may contain "*", which
// matches any run of characters other than "/".
type OriginMatcher struct {
	exact    map[string]bool
	patterns []*regexp.Regexp
}

// NewOriginMatcher compiles patterns. Entries that are neither a valid origin
// nor a wildcard pattern are ignored.
func NewOriginMatcher(patterns []string) *OriginMatcher {
	m := &OriginMatcher{exact: make(map[string]bool)}
	for _, p := range patterns {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if !strings.Contains(p, "*") {
			if o := NormalizeOrigin(p); o != "" {
				m.exact[o] = true
			}
			continue
		}
		quoted := strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(p)), `\*`, `[^/]*`)
		m.patterns = append(m.patterns, regexp.MustCompile("^"+quoted+"$"))
	}
	return m
}

// Allowed reports whether origin is on the list.
func (m *OriginMatcher) Allowed(origin string) bool {
	o := NormalizeOrigin(origin)
	if o == "" {
		return false
	}
	if m.exact[o] {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(o) {
			return true
		}
	}
	return false
}

// Len is the number of configured entries.
func (m *OriginMatcher) Len() int {
	return len(m.exact) + len(m.patterns)
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}

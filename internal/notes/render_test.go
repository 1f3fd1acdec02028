package notes

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func testRenderMarkdown_HeadingsRender(t *rapid.T) {
	level := rapid.IntRange(1, 6).Draw(t, "level")
	text := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 ]{0,49}`).Draw(t, "text")

	html := RenderMarkdown(strings.Repeat("#", level) + " " + text)
	tag := "h" + string(rune('0'+level))
	if !strings.Contains(html, "<"+tag) || !strings.Contains(html, "</"+tag+">") {
		t.Fatalf("expected %s for %q, got %s", tag, text, html)
	}
	if !strings.Contains(html, strings.TrimSpace(text)) {
		t.Fatalf("heading text missing: %s", html)
	}
}

func TestRenderMarkdown_HeadingsRender(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRenderMarkdown_HeadingsRender)
}

func FuzzRenderMarkdown_HeadingsRender(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testRenderMarkdown_HeadingsRender))
}

func testRenderMarkdown_NeverEmitsScripts(t *rapid.T) {
	prefix := rapid.StringMatching(`[A-Za-z0-9 #*\n]{0,40}`).Draw(t, "prefix")
	payload := rapid.SampledFrom([]string{
		"<script>alert(1)</script>",
		`<img src=x onerror="alert(1)">`,
		`[click](javascript:alert(1))`,
		`<a href="javascript:alert(1)">x</a>`,
		`<iframe src="https://evil.example"></iframe>`,
	}).Draw(t, "payload")

	html := strings.ToLower(RenderMarkdown(prefix + "\n\n" + payload))
	for _, bad := range []string{"<script", "onerror", "javascript:", "<iframe"} {
		if strings.Contains(html, bad) {
			t.Fatalf("sanitized output contains %q: %s", bad, html)
		}
	}
}

func TestRenderMarkdown_NeverEmitsScripts(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRenderMarkdown_NeverEmitsScripts)
}

func FuzzRenderMarkdown_NeverEmitsScripts(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testRenderMarkdown_NeverEmitsScripts))
}

func TestRenderMarkdown_LinksAndCode(t *testing.T) {
	t.Parallel()
	html := RenderMarkdown("See [docs](https://example.com).\n\n```\nx := 1\n```")
	if !strings.Contains(html, `href="https://example.com"`) {
		t.Fatalf("link missing: %s", html)
	}
	if !strings.Contains(html, "<code>") || !strings.Contains(html, "x := 1") {
		t.Fatalf("code block missing: %s", html)
	}
}

func TestRenderMarkdown_KeepsLanguageClassOpensLinksInNewTab(t *testing.T) {
	t.Parallel()
	html := RenderMarkdown("```go\nfmt.Println(1)\n```\n\n[site](https://example.com)")
	if !strings.Contains(html, `class="language-go"`) {
		t.Fatalf("language class dropped: %s", html)
	}
	if !strings.Contains(html, `target="_blank"`) {
		t.Fatalf("external link not opened in new tab: %s", html)
	}
}

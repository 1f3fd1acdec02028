package notes

import (
	"regexp"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const markdownExtensions = parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock

// notePolicy is bluemonday's UGC set plus fenced-code language classes.
// Outbound links open in a new tab with rel=noopener.
var notePolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w-]+$`)).OnElements("code")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

// RenderMarkdown turns note content into an HTML fragment that is safe to
// inject into the client page.
func RenderMarkdown(content string) string {
	// gomarkdown parsers are single use.
	doc := parser.NewWithExtensions(markdownExtensions).Parse([]byte(content))
	out := markdown.Render(doc, mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags}))
	return string(notePolicy.SanitizeBytes(out))
}

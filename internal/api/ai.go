package api

import (
	"net/http"
	"strings"

	"github.com/kuitang/notedesk/internal/ai"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/obs"
)

// AIRequest is the body of both /api/ai routes.
type AIRequest struct {
	Content string `json:"content"`
}

var errContentRequired = errs.New(errs.InvalidArgument, "content is required")

// GenerateSummaryTitle handles POST /api/ai/generate-summary-title. Any
// assistant failure answers with ai.FallbackTitle.
func (h *Handler) GenerateSummaryTitle(w http.ResponseWriter, r *http.Request) {
	content, ok := h.aiContent(w, r)
	if !ok {
		return
	}

	title := ai.FallbackTitle
	if h.assistant != nil {
		generated, err := h.assistant.Summarize(r.Context(), content)
		if err != nil {
			obs.From(r.Context()).With("pkg", "api").Warn("ai_summarize_fallback", "error", err)
		} else if cleaned := ai.CleanTitle(generated); cleaned != "" {
			title = cleaned
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// GenerateEnhancedContent handles POST /api/ai/generate-enhanced-content. Any
// assistant failure answers with the original content.
func (h *Handler) GenerateEnhancedContent(w http.ResponseWriter, r *http.Request) {
	content, ok := h.aiContent(w, r)
	if !ok {
		return
	}

	enhanced := content
	if h.assistant != nil {
		out, err := h.assistant.Enhance(r.Context(), content)
		if err != nil {
			obs.From(r.Context()).With("pkg", "api").Warn("ai_enhance_fallback", "error", err)
		} else if strings.TrimSpace(out) != "" {
			enhanced = out
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"enhancedContent": enhanced})
}

func (h *Handler) aiContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req AIRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return "", false
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, errContentRequired)
		return "", false
	}
	return req.Content, true
}

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PingResponse reports server time and, when the caller sent its own clock,
// the difference in milliseconds.
type PingResponse struct {
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	ServerTimestamp string  `json:"serverTimestamp"`
	ClientTimestamp *string `json:"clientTimestamp"`
	TimeDiff        *int64  `json:"timeDiff"`
}

// now is swapped in tests.
var now = time.Now

// HandlePing handles GET /ping and /api/ping. The client clock is read from
// ?timestamp= or ?clientTimestamp=, as RFC3339 or Unix milliseconds.
func HandlePing(w http.ResponseWriter, r *http.Request) {
	serverTime := now().UTC()
	resp := PingResponse{
		Status:          "ok",
		Message:         "Ping",
		ServerTimestamp: serverTime.Format(time.RFC3339Nano),
	}

	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("timestamp"))
	if raw == "" {
		raw = strings.TrimSpace(q.Get("clientTimestamp"))
	}
	if raw != "" {
		resp.ClientTimestamp = &raw
		if clientTime, ok := parseClientTimestamp(raw); ok {
			diff := serverTime.Sub(clientTime).Milliseconds()
			resp.TimeDiff = &diff
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /health.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseClientTimestamp(raw string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

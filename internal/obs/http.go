package obs

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusWriter remembers the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach Flush and deadlines.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// RequestContextMiddleware opens a request scope. A client X-Request-Id is
// kept, otherwise the W3C trace id is reused, otherwise one is generated.
// The id is echoed in the response.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := traceIDOf(r.Header.Get("traceparent"))
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		switch {
		case requestID != "":
		case traceID != "":
			requestID = traceID
		default:
			requestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(WithRequest(r.Context(), requestID, traceID)))
	})
}

// AccessLogMiddleware writes one http_access line per request: warn for 5xx,
// debug otherwise.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		lvl := slog.LevelDebug
		if sw.code() >= http.StatusInternalServerError {
			lvl = slog.LevelWarn
		}
		From(r.Context()).With("pkg", pkg).Log(r.Context(), lvl, "http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.code(),
			"dur_ms", float64(time.Since(start).Microseconds())/1000,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", sw.bytes,
		)
	})
}

// traceIDOf extracts the trace id from a version-00 traceparent header.
func traceIDOf(traceparent string) string {
	parts := strings.Split(strings.TrimSpace(traceparent), "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	id := strings.ToLower(parts[1])
	if strings.Trim(id, "0") == "" || strings.Trim(id, "0123456789abcdef") != "" {
		return ""
	}
	return id
}

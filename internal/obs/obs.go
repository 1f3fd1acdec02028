// Package obs owns the process logger and the per-request fields every log
// line carries.
package obs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	current  atomic.Pointer[slog.Logger]
	initOnce sync.Once
	level    = new(slog.LevelVar)
)

// Init installs the JSON logger on stderr as the slog default. Later calls
// are no-ops.
func Init() {
	initOnce.Do(func() { install(os.Stderr) })
}

// SetLevel accepts debug, info, warn or error. Anything else is ignored.
func SetLevel(name string) {
	var l slog.Level
	if l.UnmarshalText([]byte(strings.TrimSpace(name))) == nil {
		level.Set(l)
	}
}

// CaptureForTests sends log output to w until the returned func runs.
func CaptureForTests(w io.Writer) (restore func()) {
	Init()
	prev := current.Load()
	install(w)
	return func() {
		current.Store(prev)
		slog.SetDefault(prev)
	}
}

func install(w io.Writer) {
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}))
	current.Store(l)
	slog.SetDefault(l)
}

func root() *slog.Logger {
	Init()
	return current.Load()
}

// Pkg is the root logger tagged with pkg.
func Pkg(pkg string) *slog.Logger {
	return root().With("pkg", pkg)
}

// fields is shared by every context derived from one request, so the access
// log sees a user id recorded deeper in the handler chain.
type fields struct {
	mu        sync.Mutex
	requestID string
	traceID   string
	userID    string
}

type fieldsKey struct{}

func fieldsFrom(ctx context.Context) *fields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(fieldsKey{}).(*fields)
	return f
}

// WithRequest starts a request scope carrying requestID and traceID.
func WithRequest(ctx context.Context, requestID, traceID string) context.Context {
	return context.WithValue(ctx, fieldsKey{}, &fields{requestID: requestID, traceID: traceID})
}

// WithUserID records the authenticated user for the rest of the request.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if f := fieldsFrom(ctx); f != nil {
		f.mu.Lock()
		f.userID = userID
		f.mu.Unlock()
		return ctx
	}
	return context.WithValue(ctx, fieldsKey{}, &fields{userID: userID})
}

// RequestID returns the id assigned by RequestContextMiddleware, if any.
func RequestID(ctx context.Context) string {
	f := fieldsFrom(ctx)
	if f == nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestID
}

// From is the root logger with the request's fields attached.
func From(ctx context.Context) *slog.Logger {
	l := root()
	f := fieldsFrom(ctx)
	if f == nil {
		return l
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var attrs []any
	for _, kv := range [][2]string{{"request_id", f.requestID}, {"trace_id", f.traceID}, {"user_id", f.userID}} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

func newRequestID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "req-unknown"
	}
	return "req-" + hex.EncodeToString(buf[:])
}

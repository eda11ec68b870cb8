package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	JobIDKey     contextKey = "job_id"
)

type RedactingHandler struct {
	slog.Handler
}

func NewLogger(level slog.Level) *slog.Logger {
	return NewLoggerWithWriter(os.Stdout, level)
}

func NewLoggerWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewJSONHandler(w, opts)
	return slog.New(&RedactingHandler{Handler: handler})
}

// WithJobID returns a context whose log lines carry job_id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func JobID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(JobIDKey).(string)
	return v
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("request_id", reqID))
	}
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		r.AddAttrs(slog.String("job_id", jobID))
	}

	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(h.redactAttr(a))
		return true
	})

	return h.Handler.Handle(ctx, newRecord)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{Handler: h.Handler.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{Handler: h.Handler.WithGroup(name)}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	key := strings.ToLower(a.Key)
	switch key {
	case "ak", "access_key":
		val := a.Value.String()
		if len(val) > 4 {
			return slog.String(a.Key, val[:4]+"...")
		}
		return slog.String(a.Key, val+"...")
	case "sk", "secret_key", "api_key", "authorization":
		return slog.String(a.Key, "***")
	}

	if a.Value.Kind() == slog.KindString {
		if elided, ok := elideDataURI(a.Value.String()); ok {
			return slog.String(a.Key, elided)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = h.redactAttr(attr)
		}
		return slog.Group(a.Key, anySliceToAny(newAttrs)...)
	}

	return a
}

// elideDataURI shortens inline base64 payloads (reference images, storyboard
// artifacts) to their mime type and size.
func elideDataURI(v string) (string, bool) {
	idx := strings.Index(v, ";base64,")
	if idx < 0 || idx > 128 {
		return "", false
	}
	head := v[:idx]
	if !strings.HasPrefix(head, "data:") && !strings.Contains(head, "/") {
		return "", false
	}
	payload := len(v) - idx - len(";base64,")
	return fmt.Sprintf("%s;base64,<%d bytes>", head, payload), true
}

func anySliceToAny(attrs []slog.Attr) []any {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return args
}

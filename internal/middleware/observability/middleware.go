package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/logging"
)

const RequestIDHeader = "X-Request-Id"

// Middleware tags each request with a request id (taken from X-Request-Id or
// generated), echoes it back, and logs one access line when the handler
// returns.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if reqID == "" {
				reqID = "req_" + randomHex(8)
			}
			w.Header().Set(RequestIDHeader, reqID)

			ctx := context.WithValue(r.Context(), logging.RequestIDKey, reqID)
			tw := &statusTrackingResponseWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(tw, r.WithContext(ctx))

			logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", tw.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}

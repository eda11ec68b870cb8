package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

type statusTrackingResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
	status      int
}

func (w *statusTrackingResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.status = statusCode
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusTrackingResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusTrackingResponseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusTrackingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func RecoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &statusTrackingResponseWriter{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(
						r.Context(),
						"panic recovered",
						"panic", fmt.Sprint(rec),
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)
					if !tw.wroteHeader {
						tw.Header().Set("Content-Type", "application/json")
						tw.WriteHeader(http.StatusInternalServerError)
						_, _ = tw.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`))
					}
				}
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

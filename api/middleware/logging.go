package middleware

import (
	"net/http"
	"time"

	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// statusWriter captures the status code a handler wrote so the access log
// can report it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Logging emits one access-log pair per request: a start line with method
// and path, and a completion line with status and duration.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if logg == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			logg.Info(ctx, "request.start")

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(ctx))

			logg.Info(logg.WithFields(ctx, map[string]any{
				"status":      sw.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}), "request.complete")
		}
		return http.HandlerFunc(fn)
	}
}

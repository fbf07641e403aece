package health

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the response status and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging logs method, path, status, size and latency of every request.
// Server errors are logged at warn and everything else at debug. 503 stays at
// debug: /readyz answers it for as long as the exporter is not ready.
func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError && rec.status != http.StatusServiceUnavailable {
			level = slog.LevelWarn
		}
		logger.Log(req.Context(), level, "HTTP request served",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

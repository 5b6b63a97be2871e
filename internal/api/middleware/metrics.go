package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sendmedown/bio-quantum-platform/internal/metrics"
)

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status. The chi wrapper keeps
		// http.Hijacker so websocket upgrades pass through.
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(status(wrapped)),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/session/") && len(path) > len("/session/"):
		return "/session/:id"
	case strings.HasPrefix(path, "/nugget/"):
		rest := strings.TrimPrefix(path, "/nugget/")
		switch rest {
		case "create", "query", "outcome":
			return path
		}
		if i := strings.IndexByte(rest, '/'); i > 0 {
			return "/nugget/:id" + rest[i:]
		}
	}
	return path
}

// status reports the written status; handlers that never call WriteHeader
// answered 200.
func status(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

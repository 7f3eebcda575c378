package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"signup/internal/metrics"
)

// DefaultSlowRequest is the default threshold for slow request warnings.
// Page loads wait on the backend, so it is more generous than a plain API.
const DefaultSlowRequest = 500 * time.Millisecond

// requestIDCounter is an atomic counter for request IDs.
var requestIDCounter uint64

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the underlying ResponseWriter.
// PRE: code is a valid HTTP status code
// POST: status stored, header written to underlying ResponseWriter
func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// statusWriterPool reduces allocations on the hot path.
var statusWriterPool = sync.Pool{
	New: func() any {
		return &statusWriter{}
	},
}

// Timing returns middleware that logs request duration and feeds the
// HTTP request histogram. Requests to /static/ and /metrics are excluded.
// Normal requests log at DEBUG; requests slower than slow log at WARN.
func Timing(log *zap.Logger, slow time.Duration) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if slow <= 0 {
		slow = DefaultSlowRequest
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasPrefix(path, "/static/") || path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID := atomic.AddUint64(&requestIDCounter, 1)

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			defer func() {
				elapsed := time.Since(start)
				metrics.HTTPRequestDuration.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Observe(elapsed.Seconds())

				fields := []zap.Field{
					zap.Uint64("request_id", reqID),
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.Int("status", sw.status),
					zap.Duration("duration", elapsed),
				}
				if elapsed >= slow {
					log.Warn("slow_request", fields...)
				} else {
					log.Debug("request", fields...)
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"signup/internal/metrics"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// TestTimingMiddleware_LogsRequest verifies that a request is logged with its fields.
func TestTimingMiddleware_LogsRequest(t *testing.T) {
	log, logs := observed()
	handler := Timing(log, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/register", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/register", fields["path"])
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}

// TestTimingMiddleware_SlowRequestWarns verifies the slow threshold.
func TestTimingMiddleware_SlowRequestWarns(t *testing.T) {
	log, logs := observed()
	handler := Timing(log, time.Nanosecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	entries := logs.FilterMessage("slow_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

// TestTimingMiddleware_SkipsStaticAndMetrics verifies excluded paths are not timed.
func TestTimingMiddleware_SkipsStaticAndMetrics(t *testing.T) {
	log, logs := observed()
	handler := Timing(log, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/static/style.css", "/metrics"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Zero(t, logs.Len())
}

// TestTimingMiddleware_RecordsHistogram verifies the request histogram is fed.
func TestTimingMiddleware_RecordsHistogram(t *testing.T) {
	handler := Timing(zap.NewNop(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/teapot", nil))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.HTTPRequestDuration), 1)
}

// TestTimingMiddleware_HandlerPanic verifies that a panicking handler does not
// prevent the deferred timing logic from running.
func TestTimingMiddleware_HandlerPanic(t *testing.T) {
	log, logs := observed()
	handler := Timing(log, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate, got nil")
		}
		assert.Equal(t, 1, logs.FilterMessage("request").Len(), "defer must run even on panic")
	}()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/panic", nil))
}

// TestTimingMiddleware_PoolNoStateLeak verifies that statusWriter pool reuse
// does not leak status codes between requests.
func TestTimingMiddleware_PoolNoStateLeak(t *testing.T) {
	log, logs := observed()
	handler500 := Timing(log, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler500.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/fail", nil))

	// Implicit 200: if the pool leaked, the second entry would say 500.
	handler200 := Timing(log, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rr := httptest.NewRecorder()
	handler200.ServeHTTP(rr, httptest.NewRequest("GET", "/ok", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(http.StatusOK), entries[1].ContextMap()["status"])
	assert.Equal(t, http.StatusOK, rr.Code)
}

// BenchmarkTimingMiddleware measures per-request overhead.
func BenchmarkTimingMiddleware(b *testing.B) {
	handler := Timing(zap.NewNop(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest("GET", "/bench", nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

package web

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"signup/internal/adapters/http/middleware"
	"signup/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Deps holds everything the portal needs to serve requests.
type Deps struct {
	Config   config.Config
	Visitors *middleware.VisitorStore
	Limiter  *middleware.RateLimiter
	CSRFKey  []byte
	Log      *zap.Logger
}

// app carries handler dependencies.
type app struct {
	log   *zap.Logger
	pages *pageRenderer
	// waitFor bounds how long a request waits for the controller to apply
	// its command and the follow-up catalog fetch.
	waitFor time.Duration
}

// NewMux wires HTTP handlers for the portal.
// PRE: d.Visitors and d.Limiter are non-nil; d.CSRFKey is 32 bytes
// POST: Returns the fully wrapped handler
func NewMux(d Deps) (http.Handler, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	a, err := newApp(d.Config.Backend.Timeout, log)
	if err != nil {
		return nil, err
	}
	middleware.SecureCookies = d.Config.IsProduction()

	pages := http.NewServeMux()
	a.registerRoutes(pages)

	mux := http.NewServeMux()
	mux.Handle("/", middleware.Visitors(d.Visitors)(pages))
	mux.Handle("GET /static/", http.FileServerFS(staticFS))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", handleHealth)

	// Apply middleware: Timing -> RateLimit -> SecurityHeaders -> CSRF -> Mux
	return middleware.Chain(mux,
		middleware.CSRF(d.CSRFKey, d.Config.IsProduction(), nil),
		middleware.SecurityHeaders,
		middleware.RateLimit(d.Limiter),
		middleware.Timing(log, 0),
	), nil
}

func newApp(backendTimeout time.Duration, log *zap.Logger) (*app, error) {
	pages, err := newPageRenderer(templateFS)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if backendTimeout <= 0 {
		backendTimeout = 10 * time.Second
	}
	return &app{
		log:     log,
		pages:   pages,
		waitFor: 2*backendTimeout + time.Second,
	}, nil
}

// waitContext bounds a wait on the visitor's controller by the request.
func (a *app) waitContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.waitFor)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

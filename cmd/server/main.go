package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"signup/internal/adapters/backend"
	web "signup/internal/adapters/http"
	"signup/internal/adapters/http/middleware"
	"signup/internal/application/controller"
	"signup/internal/config"
	"signup/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configDir := flag.String("config", ".", "directory holding config.yaml and .env")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	csrfKey, generated, err := cfg.CSRFKey()
	if err != nil {
		return err
	}
	if generated {
		log.Warn("using random CSRF key (forms won't survive restart); set PORTAL_CSRF_KEY for production")
	}

	ctrlCfg := controller.Config{
		BannerTTL:          cfg.UI.BannerTTL,
		LoginCloseDelay:    cfg.UI.LoginCloseDelay,
		RegisterCloseDelay: cfg.UI.RegisterCloseDelay,
	}
	// Each visitor gets its own backend client so backend session cookies never mix.
	visitors := middleware.NewVisitorStore(cfg.Visitor.TTL, func(visitorID string) (*controller.Controller, error) {
		vlog := log.With(zap.String("visitor", visitorID))
		client, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, vlog)
		if err != nil {
			return nil, err
		}
		return controller.New(client, ctrlCfg, controller.WithLogger(vlog)), nil
	}, log,
		middleware.WithMaxVisitors(cfg.Visitor.Max),
		middleware.WithFirstContactTTL(cfg.Visitor.FirstContactTTL),
	)
	defer visitors.Close()
	go visitors.Run(ctx, time.Minute)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, time.Second, log)
	go limiter.Run(ctx)

	handler, err := web.NewMux(web.Deps{
		Config:   cfg,
		Visitors: visitors,
		Limiter:  limiter,
		CSRFKey:  csrfKey,
		Log:      log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("portal_starting",
			zap.String("version", version),
			zap.String("addr", cfg.Addr),
			zap.String("env", cfg.Env),
			zap.String("backend", cfg.Backend.URL),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("portal_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

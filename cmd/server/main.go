package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/gst-reconciler/cmd/api"
	"github.com/FACorreiaa/gst-reconciler/pkg/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := run(logger); err != nil {
		logger.Error("reconciliation API exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting gst reconciliation API",
		"archive", cfg.Archive.Backend,
		"run_index", cfg.Database.Enabled,
		"tolerance", cfg.Reconcile.Tolerance.String())

	deps, err := api.InitDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Cleanup()

	servers := []*http.Server{newAPIServer(cfg, api.SetupRouter(deps))}
	if cfg.Profiling.Enabled {
		servers = append(servers, newPprofServer(cfg))
	}

	return serve(ctx, logger, servers...)
}

func newAPIServer(cfg *config.Config, handler http.Handler) *http.Server {
	// h2c lets gRPC clients reach the Connect handlers without TLS.
	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: handler,
		// Uploads can be tens of megabytes.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		Protocols:    protocols,
	}
}

func newPprofServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", cfg.Profiling.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serve runs every server until one fails or ctx is cancelled, then shuts
// them all down.
func serve(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	failed := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failed <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-failed:
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			runErr = errors.Join(runErr, fmt.Errorf("graceful shutdown of %s failed: %w", srv.Addr, err))
		}
	}

	if runErr == nil {
		logger.Info("server stopped gracefully")
	}
	return runErr
}

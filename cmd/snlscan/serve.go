package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snl-sec/snlscan/internal/api"
	"github.com/snl-sec/snlscan/internal/auth"
	"github.com/snl-sec/snlscan/internal/config"
	"github.com/snl-sec/snlscan/internal/database"
	"github.com/snl-sec/snlscan/internal/jobs"
	"github.com/snl-sec/snlscan/internal/log"
	"github.com/snl-sec/snlscan/internal/pipeline"
)

// shutdownTimeout bounds graceful HTTP shutdown. In-flight requests get
// this long to finish; background scans are cancelled immediately.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan pipeline behind an HTTP API",
		Long: `Serve starts an HTTP API that accepts scan jobs and runs them
asynchronously in the background.

Submitted jobs move through a lifecycle (pending, running, completed or
failed) and can be polled, listed, cancelled, and deleted. Job state and
findings are persisted to the local database, so history survives restarts
of the server.

When an auth secret is configured, every endpoint except /health requires
a bearer token, and each caller only sees their own jobs.

Endpoints:
  POST   /scan             Submit a scan job
  GET    /scan/{id}        Get job status and result
  GET    /scans            List jobs
  POST   /scan/{id}/cancel Cancel a pending or running job
  DELETE /scan/{id}        Delete a finished job
  GET    /health           Liveness check (unauthenticated)

Examples:
  # Serve on the default local address
  snlscan serve

  # Serve on a specific address
  snlscan serve --listen 0.0.0.0:8080

  # Use a custom configuration file
  snlscan serve -c myconfig.yaml`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", "",
		"HTTP listen address (default "+config.DefaultListenAddr+")")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .snlscan in current or home directory)")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(os.Stderr, getVerboseFlag(cmd))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, stopping...")
		cancel()
	}()

	return runServe(ctx, cfg, logger)
}

// buildServeConfig creates a Config for serve mode from the config file
// and cobra flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	found := config.FindConfigFile(configPath)
	if found != "" {
		cf, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		cfg.Apply(cf)
	} else if configPath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return nil, err
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}

	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// runServe wires the job registry, orchestrator, and HTTP server together
// and serves until the context is cancelled.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := database.Open(cfg.DataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open job database: %w", err)
	}
	defer store.Close()
	logger.Info("job database opened", "dir", cfg.DataDir)

	registry := jobs.NewRegistry(
		jobs.WithSnapshotStore(store),
		jobs.WithRegistryLogger(logger),
	)
	orchestrator := pipeline.NewOrchestrator(cfg, registry,
		pipeline.WithOrchestratorLogger(logger),
		pipeline.WithFindingSink(store),
	)

	serverOpts := []api.ServerOption{
		api.WithServerLogger(logger),
		// Background scans outlive the submitting request but not the
		// server itself
		api.WithBaseContext(ctx),
	}
	if cfg.AuthSecret != "" {
		verifierOpts := []auth.VerifierOption{}
		if cfg.AuthAudience != "" {
			verifierOpts = append(verifierOpts, auth.WithAudience(cfg.AuthAudience))
		}
		serverOpts = append(serverOpts, api.WithVerifier(auth.NewVerifier(cfg.AuthSecret, verifierOpts...)))
		logger.Info("bearer-token authentication enabled")
	} else {
		logger.Warn("authentication disabled; all jobs share one namespace")
	}

	server := api.NewServer(registry, orchestrator, serverOpts...)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

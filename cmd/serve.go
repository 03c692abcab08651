package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/analysis"
	"github.com/jhu-ep/gradcafe-pipeline/internal/api"
	"github.com/jhu-ep/gradcafe-pipeline/internal/jobs"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and job coordinator",
		Long: `Starts the HTTP server exposing pull and update-analysis as guarded
background operations, plus status, analysis, health and metrics endpoints.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, err := buildOrchestrator(store)
	if err != nil {
		return err
	}

	analyzer, err := analysis.New(store.Pool(), store.Table())
	if err != nil {
		return fmt.Errorf("init analysis: %w", err)
	}

	coordinator := jobs.NewCoordinator(ctx, orch, analyzer, logger)
	server := api.NewServer(coordinator, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	coordinator.Wait()
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fbpublish/internal/archive"
	"fbpublish/internal/facebook"
	"fbpublish/internal/server"
	"fbpublish/pkg/config"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the video publishing HTTP service",
	Long: `Start an HTTP server exposing video upload, token exchange, and
archive listing endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	fb := facebook.NewClient(facebook.Options{
		HTTPClient:    &http.Client{},
		GraphURL:      cfg.Facebook.GraphURL,
		GraphVideoURL: cfg.Facebook.GraphVideoURL,
		Version:       cfg.Facebook.APIVersion,
	})

	store, cleanup, err := buildArchiveStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := slog.Default()
	handler := server.NewHandler(fb, store, logger, cfg.Server.MaxUploadSize)
	timeout := time.Duration(cfg.Server.UploadTimeoutSeconds) * time.Second
	router := server.NewRouter(logger, handler, timeout)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildArchiveStore(ctx context.Context, cfg *config.Config) (archive.Store, func(), error) {
	if !cfg.Archive.Enabled {
		return nil, func() {}, nil
	}

	if cfg.GCSBucket != "" {
		store, err := archive.NewGCSStore(ctx, cfg.GCSBucket, cfg.Archive.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs archive: %w", err)
		}
		slog.Info("Archiving uploads to GCS", "bucket", cfg.GCSBucket, "prefix", cfg.Archive.Prefix)
		return store, func() { _ = store.Close() }, nil
	}

	slog.Info("Archiving uploads locally", "dir", cfg.Archive.Dir)
	return archive.NewLocalStore(cfg.Archive.Dir), func() {}, nil
}

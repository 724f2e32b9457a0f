package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/selfcheckout/internal/blob"
	"github.com/roach88/selfcheckout/internal/catalog"
	"github.com/roach88/selfcheckout/internal/engine"
	"github.com/roach88/selfcheckout/internal/httpapi"
	"github.com/roach88/selfcheckout/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string // overrides HTTP_ADDR
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP API",
		Long: `Run the checkout HTTP API.

Opens the database, seeds the catalog from the label file (and
CATALOG_PATH when set), and serves sessions, frames, checkout and
scan endpoints until interrupted.

Environment:
  HTTP_ADDR, DB_PATH, STORAGE_DIR, THRESHOLD, LABELS_PATH, CATALOG_PATH,
  DEFAULT_PRICE, CLASSIFIER_URL, CLASSIFIER_TIMEOUT_MS, MAX_UPLOAD_BYTES,
  SHUTDOWN_TIMEOUT, LOG_LEVEL, LOG_FORMAT, CORS_ORIGINS

Examples:
  checkoutd serve
  checkoutd serve --addr :9000 --env-file prod.env`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides HTTP_ADDR)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTPAddr = opts.Addr
	}

	cls, err := newClassifier(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "classifier not configured", err)
	}

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cat := catalog.New(st)
	rep, err := seedCatalog(ctx, cat, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to seed catalog", err)
	}
	slog.Info("catalog ready", "labels_inserted", rep.Labels, "catalog_inserted", rep.Catalog)

	reg := metrics.NewRegistry()
	eng := engine.New(st, cls, cat, blob.NewFS(cfg.StorageDir, time.Now),
		engine.WithThreshold(cfg.Threshold),
		engine.WithMetrics(reg),
	)

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(eng, httpapi.Options{
		Metrics:        reg,
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Ready:          st.DB().PingContext,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening",
			"addr", cfg.HTTPAddr,
			"threshold", cfg.Threshold,
			"classifier", cfg.ClassifierURL,
		)
		errCh <- srv.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "http server failed", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "graceful shutdown failed", err)
	}
	slog.Info("server stopped")
	return nil
}

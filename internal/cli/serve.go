package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HanTheDev/content-gateway/internal/api"
	"github.com/HanTheDev/content-gateway/internal/auth"
)

const shutdownTimeout = 30 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the generation HTTP API",
		Long: `Run the generation HTTP API.

Routes:
  GET  /health
  POST /api/generate           (bearer token)
  GET  /admin/...              (bearer token with role=admin)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	var usage api.UsageStore
	if a.db != nil {
		usage = a.db
	}

	router := api.NewRouter(api.RouterDeps{
		Generate: api.NewGenerateHandler(a.coordinator, a.logger),
		Admin: api.NewAdminHandler(api.AdminDeps{
			Providers: a.providers,
			Routing:   a.routing,
			Cache:     a.cache,
			Ledger:    a.ledger,
			Usage:     usage,
			Failures:  a.failures,
			Logger:    a.logger,
		}),
		Auth:    auth.NewMiddleware(cfg.JWTSecret),
		Logger:  a.logger,
		Version: Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation can legitimately take up to the overall timeout.
		WriteTimeout: cfg.Generation.OverallTimeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "port", cfg.ServerPort, "providers", a.providers.Len(), "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

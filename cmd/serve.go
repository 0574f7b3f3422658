package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/calcutta/console/internal/access"
	"github.com/calcutta/console/internal/config"
	"github.com/calcutta/console/internal/database"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/navigation"
	"github.com/calcutta/console/internal/pipeline"
	"github.com/calcutta/console/internal/routes"
	"github.com/calcutta/console/internal/routes/deps"
	"github.com/calcutta/console/internal/telemetry"
	"github.com/calcutta/console/internal/upstream"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewLogger("server")
	defer func() { _ = log.Sync() }()
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, every session token will be rejected")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	menu, err := navigation.Load(cfg.NavConfigPath)
	if err != nil {
		return err
	}

	metrics := telemetry.New()
	api := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout)
	resolver := access.NewResolver(api, access.ResolverConfig{
		TTL:           cfg.PermissionCacheTTL,
		LoadingBudget: cfg.PermissionLoadingBudget,
		FetchTimeout:  cfg.UpstreamTimeout,
	})
	guard := middleware.NewGuard(resolver, access.Routes{Login: cfg.LoginRoute, Fallback: cfg.FallbackRoute},
		logger.NewLogger("guard"), metrics)

	hub := pipeline.NewHub(api, cfg.PipelinePollInterval, logger.NewLogger("pipeline-hub"), metrics)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	router := routes.RegisterAllRoutes(&deps.Deps{
		Config:  cfg,
		API:     api,
		Store:   database.NewStore(db),
		Auth:    middleware.NewAuthenticator(cfg.JWTSecret, logger.NewLogger("auth")),
		Guard:   guard,
		Hub:     hub,
		Menu:    menu,
		Metrics: metrics,
		Log:     logger.NewLogger("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server is running", "port", cfg.Port, "env", cfg.Environment, "upstream", cfg.UpstreamURL, "db_driver", cfg.DB.Driver)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)
	stopHub()
	return shutdownErr
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/circulation-core/config"
	"github.com/AntonStoeckl/circulation-core/transport/httpapi"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the circulation HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")

	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Observability, os.Stdout)
	if err != nil {
		return err
	}

	providers, err := config.NewObservabilityProviders(ctx, cfg.Observability)
	if err != nil {
		return err
	}

	defer func() {
		if err := providers.Shutdown(); err != nil {
			logger.Error("observability shutdown failed", "error", err.Error())
		}
	}()

	s, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	services, err := buildServices(s, cfg, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	router, err := httpapi.NewRouter(services,
		httpapi.WithLogger(logger),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...),
		httpapi.WithRequestTimeout(cfg.HTTP.RequestTimeout),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.RequestTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)

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

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

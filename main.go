package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/config"
	"github.com/lvanfai123/moving-service-sub001/logging"
	"github.com/lvanfai123/moving-service-sub001/middleware"
	"github.com/lvanfai123/moving-service-sub001/routes"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "moving-payments",
		Short:        "Order payments, refunds and referral credit for the moving service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale payments, credit and referrals once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := logging.New(cfg.IsProduction())
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer logger.Sync()

			ctx := cmd.Context()
			app, err := newApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			report, err := app.sweeper.RunOnce(ctx, time.Now())
			logger.Info("sweep finished",
				zap.Int("payments", report.Payments),
				zap.Int("credits", report.Credits),
				zap.Int64("referrals", report.Referrals),
			)
			return err
		},
	}
}

func runServe(cfg *config.Config) error {
	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(context.Background())

	rateLimiter := middleware.NewRateLimiter()
	go rateLimiter.Cleanup(ctx, time.Minute)
	go app.sweeper.Run(ctx)

	e := routes.NewServer(logger, rateLimiter, cfg.CORSAllowedOrigins)
	paymentController, creditController, referralController := app.controllers()
	routes.SetupRoutes(e, routes.Dependencies{
		Payments:  paymentController,
		Credits:   creditController,
		Referrals: referralController,
		JWTSecret: cfg.JWTSecret,
		Ping:      app.ping(),
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apihttp "guardduty-billing/internal/api/http"
	"guardduty-billing/internal/auth"
	"guardduty-billing/internal/config"
	"guardduty-billing/internal/observability/tracing"
	"guardduty-billing/internal/seed"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(configPath *string) *cobra.Command {
	var (
		seedFile string
		migrate  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, seedFile, migrate)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML reference data loaded at startup")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, seedFile string, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       true,
		SamplingRatio:  cfg.Tracing.SamplingRatio,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	var seedData *seed.Data
	if seedFile != "" {
		if seedData, err = seed.LoadFile(seedFile); err != nil {
			return err
		}
	}
	b, err := openBackend(ctx, cfg, seedData, migrate, log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	dispatcher, notifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	dispatcher.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			log.Warn("notification dispatcher close failed", zap.Error(err))
		}
	}()

	handler, err := newHandler(cfg, b, notifier, log)
	if err != nil {
		return err
	}
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil), log)
	router := apihttp.NewRouter(handler, apihttp.RouterOptions{
		Auth:           authMiddleware,
		Metrics:        promhttp.Handler(),
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		Log:            log,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("driver", cfg.Database.Driver),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

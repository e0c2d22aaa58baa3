package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HuuThai2910/wisdom-books-sub000/api/routes"
	"github.com/HuuThai2910/wisdom-books-sub000/internal/cartclient"
	"github.com/HuuThai2910/wisdom-books-sub000/internal/session"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/config"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/metrics"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/redis"
)

const (
	serviceName     = "cartd"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; add guard and rate limiting disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cartMetrics := metrics.NewCartSyncMetrics(reg)
	jobMetrics := metrics.NewJobMetrics(reg)

	client, err := cartclient.NewClient(cfg.Remote.BaseURL,
		cartclient.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
		cartclient.WithRetry(cfg.Remote.MaxRetries, cfg.Remote.RetryBaseDelay),
	)
	if err != nil {
		logg.Error(ctx, "failed to build cart service client", err)
		os.Exit(1)
	}

	var guard session.Guard
	if redisClient != nil {
		addGuard, err := session.NewAddGuard(redisClient, cfg.Session.AddGuardWindow, logg)
		if err != nil {
			logg.Error(ctx, "failed to build add guard", err)
			os.Exit(1)
		}
		guard = addGuard
	}

	cartCfg := session.ConfigFrom(cfg.Cart)
	factory := func(ctx context.Context, userID string, creds *session.Credentials) (*session.Session, error) {
		opts := []session.Option{
			session.WithLogger(logg),
			session.WithObserver(cartMetrics),
		}
		if guard != nil {
			opts = append(opts, session.WithGuard(guard))
		}
		return session.New(ctx, userID, client.ForSession(creds.Token), creds, cartCfg, opts...)
	}

	registry, err := session.NewRegistry(factory, session.RegistryOptions{
		IdleTTL:      cfg.Session.IdleTTL,
		DrainTimeout: cfg.Session.DrainTimeout,
		Logger:       logg,
		Gauge:        cartMetrics,
		Jobs:         jobMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to build session registry", err)
		os.Exit(1)
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		registry.Run(ctx, cfg.Session.SweepInterval)
	}()

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Sessions: registry,
			Redis:    redisClient,
			Gatherer: reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"remote_url": cfg.Remote.BaseURL,
	})
	logg.Info(logCtx, "starting cart gateway")

	exitCode := 0
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "cart gateway stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http server shutdown failed", err)
		exitCode = 1
	}
	// pending debounced writes are flushed before the process exits
	if err := registry.Close(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "cart sessions did not drain cleanly", err)
		exitCode = 1
	}
	<-sweepDone

	logg.Info(shutdownCtx, "cart gateway stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

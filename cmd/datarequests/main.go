package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/datarequests/pkg/access"
	"github.com/platinummonkey/datarequests/pkg/api"
	"github.com/platinummonkey/datarequests/pkg/auth"
	"github.com/platinummonkey/datarequests/pkg/config"
	"github.com/platinummonkey/datarequests/pkg/executor"
	"github.com/platinummonkey/datarequests/pkg/middleware"
	"github.com/platinummonkey/datarequests/pkg/observability"
	"github.com/platinummonkey/datarequests/pkg/rbac"
	"github.com/platinummonkey/datarequests/pkg/storage"
	"github.com/platinummonkey/datarequests/pkg/storage/cache"
	"github.com/platinummonkey/datarequests/pkg/storage/memory"
	"github.com/platinummonkey/datarequests/pkg/storage/postgres"
	"github.com/platinummonkey/datarequests/pkg/teams"
	"github.com/platinummonkey/datarequests/pkg/upstream"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "datarequests: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	var closers []observability.ShutdownFunc
	if tp != nil {
		closers = append(closers, func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, tp, logger)
		})
	}

	store, db, storeClosers, err := openStore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	closers = append(closers, storeClosers...)

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		rc, err := cache.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		redisClient = rc.Client()
		closers = append(closers, func(context.Context) error { return rc.Close() })
		if cfg.Storage.CacheEnabled {
			store = wrapCache(store, rc, cfg, metrics, logger)
		}
	} else if cfg.Storage.CacheEnabled {
		store = wrapCache(store, nil, cfg, metrics, logger)
	}

	policy, err := rbac.NewHolder(cfg.Policy.Path, logger)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	source, err := upstream.NewClient(cfg.Upstream, upstream.WithMetrics(metrics))
	if err != nil {
		return err
	}

	validator := access.NewValidator(store, teams.NewResolver(store))
	exec := executor.New(store, source, metrics, logger)
	handlers := api.NewDataRequestHandlers(store, validator, policy, exec, metrics)

	var rateLimit *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			return err
		}
		rateLimit = middleware.NewRateLimitMiddleware(newLimiter(cfg, redisClient), logger, middleware.WithTrustedProxies(proxies))
	}

	apiServer := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(api.ServerOptions{
			Auth:         middleware.NewAuthMiddleware(tokens),
			RateLimit:    rateLimit,
			Metrics:      metrics,
			Logger:       logger,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
		}, handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	for _, fn := range closers {
		shutdown.RegisterShutdownFunc(fn)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health and metrics listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	if cfg.Policy.Path != "" && cfg.Policy.Watch {
		g.Go(func() error {
			return policy.Watch(gctx)
		})
	}
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	err = g.Wait()
	logger.Info("Service stopped")
	return err
}

// serve runs srv until it is shut down
func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

// openStore builds the configured entity store. db is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) (storage.Store, *sql.DB, []observability.ShutdownFunc, error) {
	if cfg.Storage.Type == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil, nil, nil
	}

	conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL:  cfg.Storage.PostgresURL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Storage.PostgresReplicaURLs),
		MaxConns:    cfg.Storage.PostgresMaxConns,
		MinConns:    cfg.Storage.PostgresMinConns,
		Timeout:     cfg.Storage.PostgresTimeout,
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if cfg.Server.RunMigrations {
		if err := postgres.RunMigrations(ctx, conns.Primary(), logger); err != nil {
			conns.Close()
			return nil, nil, nil, err
		}
	}

	conns.StartHealthCheckRoutine(ctx, 30*time.Second, metrics)

	closeFn := func(context.Context) error { return conns.Close() }
	return postgres.NewStore(conns), conns.Primary(), []observability.ShutdownFunc{closeFn}, nil
}

func wrapCache(store storage.Store, rc *cache.RedisClient, cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) storage.Store {
	return cache.New(store, cache.Options{
		Redis:   rc,
		Size:    cfg.Storage.L1CacheSize,
		L1TTL:   cfg.Storage.CacheTTL["l1"],
		Metrics: metrics,
		Logger:  logger,
	})
}

func newLimiter(cfg *config.Config, redisClient *redis.Client) middleware.Limiter {
	rl := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimit.Burst,
	}
	if cfg.RateLimit.Distributed && redisClient != nil {
		return middleware.NewRedisLimiter(redisClient, rl, "datarequests:ratelimit")
	}
	return middleware.NewLocalLimiter(rl)
}

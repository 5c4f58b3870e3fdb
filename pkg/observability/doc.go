// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for the data request service.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("data_request_id", id).Info("executed")
//
// Request-scoped loggers travel on the context:
//
//	observability.FromContext(ctx).WithError(err).Warn("upstream failed")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ExecutionsTotal.WithLabelValues("fresh").Inc()
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Tracing
//
//	tp, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, tp, logger)
package observability

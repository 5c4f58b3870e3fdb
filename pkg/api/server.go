package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/datarequests/pkg/httputil"
	"github.com/platinummonkey/datarequests/pkg/middleware"
	"github.com/platinummonkey/datarequests/pkg/observability"
)

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// ServerOptions wires the server. Auth is required; RateLimit is optional.
type ServerOptions struct {
	Auth         *middleware.AuthMiddleware
	RateLimit    *middleware.RateLimitMiddleware
	Metrics      *observability.Metrics
	Logger       *observability.Logger
	MaxBodyBytes int64
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// NewServer creates the API server. Registrars are mounted behind the
// authentication and rate limiting middleware.
func NewServer(opts ServerOptions, registrars ...RouteRegistrar) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	router.Use(opts.Auth.Handler)
	if opts.RateLimit != nil {
		router.Use(opts.RateLimit.Handler)
	}

	for _, r := range registrars {
		r.RegisterRoutes(router)
	}

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.LoggingMiddleware(opts.Logger),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)

	return &Server{
		router:  router,
		handler: otelhttp.NewHandler(chain(router), "datarequests.api"),
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

// Package middleware provides the HTTP middleware that authenticates callers
// and rate limits them.
//
// AuthMiddleware: Bearer token authentication
//
//	router.Use(middleware.NewAuthMiddleware(tokenManager).Handler)
//	// Validates the token and adds *auth.AuthContext and the user id to the context
//
// RateLimitMiddleware: per-caller limits, in-process or shared through Redis
//
//	limiter := middleware.NewLocalLimiter(middleware.DefaultRateLimitConfig())
//	// or middleware.NewRedisLimiter(redisClient, cfg, "datarequests:ratelimit")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, logger).Handler)
//
// Authenticated callers are keyed by user id, everything else by client IP.
package middleware

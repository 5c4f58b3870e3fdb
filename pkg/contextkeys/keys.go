// Package contextkeys names the values the HTTP middleware chain stores on a
// request context. Auth and logger values are stored as interfaces so this
// package stays free of service imports; readers type-assert:
//
//	authCtx, _ := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
package contextkeys

import (
	"context"
	"time"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey holds the *auth.AuthContext of the bearer token
	AuthKey Key = "auth_context"
	// RequestIDKey holds the X-Request-ID value
	RequestIDKey Key = "request_id"
	// UserIDKey holds the authenticated user id in decimal form
	UserIDKey Key = "user_id"
	// LoggerKey holds the per-request *observability.Logger
	LoggerKey Key = "logger"
	// RequestStartTimeKey holds the time the logging middleware saw the request
	RequestStartTimeKey Key = "request_start_time"
)

func lookup[T any](ctx context.Context, k Key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

func WithAuth(ctx context.Context, authCtx any) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithLogger(ctx context.Context, logger any) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

func WithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestID returns the request id, empty outside the middleware chain
func GetRequestID(ctx context.Context) string {
	return lookup[string](ctx, RequestIDKey)
}

// GetUserID returns the caller's user id, empty before authentication
func GetUserID(ctx context.Context) string {
	return lookup[string](ctx, UserIDKey)
}

// GetRequestStartTime returns the zero time when the logging middleware did not run
func GetRequestStartTime(ctx context.Context) time.Time {
	return lookup[time.Time](ctx, RequestStartTimeKey)
}

// Package httputil holds the JSON response writers, request parsers and
// generic middleware shared by the HTTP handlers.
//
// Responses are always JSON. Errors use a single shape:
//
//	{"error": "Not authorized"}
//
// Middleware is composed with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil

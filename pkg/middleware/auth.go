package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/datarequests/pkg/auth"
	"github.com/platinummonkey/datarequests/pkg/contextkeys"
	"github.com/platinummonkey/datarequests/pkg/httputil"
	"github.com/platinummonkey/datarequests/pkg/observability"
)

// TokenValidator verifies a bearer token
type TokenValidator interface {
	ValidateToken(token string) (*auth.AuthContext, error)
}

// AuthMiddleware rejects requests without a valid bearer token
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := observability.FromContext(r.Context())

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			logger.Debug("Missing or malformed authorization header")
			httputil.WriteUnauthorized(w)
			return
		}

		authCtx, err := m.tokens.ValidateToken(token)
		if err != nil {
			logger.WithError(err).Debug("Token rejected")
			httputil.WriteUnauthorized(w)
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, authCtx.UserIDString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from "Bearer <token>"
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, _ := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	return authCtx
}

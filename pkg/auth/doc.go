// Package auth verifies the bearer tokens callers present and turns them into
// a request-scoped AuthContext.
//
// Tokens are HS256 JWTs whose subject is the numeric user id:
//
//	tm, err := auth.NewTokenManager(secret, "datarequests", 24*time.Hour)
//	token, err := tm.IssueToken(42)
//	authCtx, err := tm.ValidateToken(token)
//	// authCtx.UserID == 42
//
// Every failure matches ErrInvalidToken. The HTTP layer answers those with
// 401 and never says which check failed.
package auth

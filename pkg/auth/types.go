package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthContext is the authenticated caller of one request
type AuthContext struct {
	UserID    int64
	Email     string
	ExpiresAt time.Time
}

// UserIDString is the user id as it is logged and stored in context
func (a *AuthContext) UserIDString() string {
	if a == nil {
		return ""
	}
	return strconv.FormatInt(a.UserID, 10)
}

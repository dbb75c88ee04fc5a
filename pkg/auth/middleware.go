package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyUserID is the gin context key holding the caller's user id.
const ContextKeyUserID = "user_id"

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the "token" query parameter used by browser websockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return strings.TrimSpace(h)
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid token and stores the user
// id in the gin context.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := v.ValidateToken(TokenFromRequest(c.Request))
		if err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, ErrMissingToken):
				msg = "authorization header required"
			case errors.Is(err, ErrExpiredToken):
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "status": http.StatusUnauthorized})
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

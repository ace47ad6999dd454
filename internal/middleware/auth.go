// Package middleware provides gin middleware for authentication, rate
// limiting, request telemetry and operator endpoints.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/coinsight-go/internal/identity"
	"github.com/irfndi/coinsight-go/internal/utils"
)

// Context keys set by RequireAuth.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextToken     = "session_token"
)

// Authenticator validates a session token, including its revocation state.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.Claims, error)
}

// AuthMiddleware guards routes that need a signed-in user.
type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth validates the Bearer token. WebSocket clients that cannot set
// headers may pass it as the access_token query parameter instead.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := am.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := utils.HTTPStatus(err)
			message := "Invalid token"
			if status != http.StatusUnauthorized {
				message = utils.UserMessage(c.GetHeader("Accept-Language"), err)
			}
			c.AbortWithStatusJSON(status, gin.H{"error": message})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// BearerToken extracts the session token from the Authorization header
// (scheme is case-insensitive per RFC 6750) or the access_token query.
func BearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// UserID returns the authenticated user id, or "" outside RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// Token returns the raw session token accepted by RequireAuth.
func Token(c *gin.Context) string {
	return c.GetString(ContextToken)
}

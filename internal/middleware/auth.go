package middleware

import (
	"net/http"
	"strings"

	"github.com/chachabrian/devforum-backend/pkg/utils"
	"github.com/gin-gonic/gin"
)

// TokenCookie is the cookie login sets alongside the JSON token.
const TokenCookie = "token"

// AuthMiddleware requires a valid session token, read from the
// Authorization header or the token cookie, and stores the caller's id
// under "userId" and profile under "user".
func AuthMiddleware(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		// First try to get token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			if cookie, err := c.Cookie(TokenCookie); err == nil {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  http.StatusUnauthorized,
				"message": "Authorization header or token cookie required",
			})
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  http.StatusUnauthorized,
				"message": "Invalid token",
			})
			return
		}

		c.Set("userId", claims.Subject)
		c.Set("user", claims.User)
		c.Next()
	}
}

package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AdminGuard protects the destructive bulk-delete routes. When no
// ADMIN_SECRET is configured the guard is a no-op, so a dev instance keeps
// the full open surface.
func AdminGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if os.Getenv("ADMIN_SECRET") == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			jsonError(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return jwtSecret(), nil
		})
		if err != nil || !token.Valid {
			jsonError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || claims["role"] != "admin" {
			jsonError(c, http.StatusForbidden, "admin token required")
			c.Abort()
			return
		}

		c.Next()
	}
}

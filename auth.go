package main

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func jwtSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "defaultsecret"
	}
	return []byte(secret)
}

func GenerateAdminToken() (string, error) {
	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}

// IssueAdminToken exchanges the configured admin secret for a bearer token
// accepted by AdminGuard. With no ADMIN_SECRET configured there is nothing
// to exchange against.
func IssueAdminToken(c *gin.Context) {
	adminSecret := os.Getenv("ADMIN_SECRET")
	if adminSecret == "" {
		jsonError(c, http.StatusServiceUnavailable, "admin tokens are not configured")
		return
	}

	var body TokenRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	if body.Secret != adminSecret {
		jsonError(c, http.StatusUnauthorized, "invalid secret")
		return
	}

	token, err := GenerateAdminToken()
	if err != nil {
		internalError(c, err, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAdminTokenUnconfigured(t *testing.T) {
	r := setupTestRouter(t)
	t.Setenv("ADMIN_SECRET", "")

	w := performRequest(r, http.MethodPost, "/auth/token", gin.H{"secret": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminGuardPassThroughWithoutSecret(t *testing.T) {
	r := setupTestRouter(t)
	t.Setenv("ADMIN_SECRET", "")

	w := performRequest(r, http.MethodDelete, "/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminGuardProtectsBulkDeletes(t *testing.T) {
	r := setupTestRouter(t)
	t.Setenv("ADMIN_SECRET", "s3cret")
	t.Setenv("JWT_SECRET", "test-signing-key")

	// no token
	w := performRequest(r, http.MethodDelete, "/users", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// wrong secret is rejected
	w = performRequest(r, http.MethodPost, "/auth/token", gin.H{"secret": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// right secret mints a token
	w = performRequest(r, http.MethodPost, "/auth/token", gin.H{"secret": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token := resp["token"]
	require.NotEmpty(t, token)

	// garbage token
	w = authedRequest(r, http.MethodDelete, "/users", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// minted token passes
	w = authedRequest(r, http.MethodDelete, "/users", token)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func authedRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedeal/internal/authz"
)

var secret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.Use(AuthMiddleware(secret), ReadOnlyGuard())
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(CtxUserID), "role": c.GetInt(CtxRoleID)})
	})
	r.POST("/write", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/admin", RequireRoles(authz.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(t *testing.T, r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, key []byte, role int, ttl time.Duration) string {
	t.Helper()
	tok, err := IssueToken(key, "u-1", role, ttl)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/me", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, r, http.MethodGet, "/me", token(t, []byte("other"), authz.RoleSales, time.Hour)).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, r, http.MethodGet, "/me", token(t, secret, authz.RoleSales, -time.Hour)).Code)

	w := do(t, r, http.MethodGet, "/me", token(t, secret, authz.RoleSales, time.Hour))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u-1","role":10}`, w.Body.String())
}

func TestWebsocketQueryToken(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token(t, secret, authz.RoleSales, time.Hour), nil)
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	plain := httptest.NewRequest(http.MethodGet, "/me?access_token="+token(t, secret, authz.RoleSales, time.Hour), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, plain)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query tokens are only read on upgrades")
}

func TestRoleGuards(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPost, "/write", token(t, secret, authz.RoleAudit, time.Hour)).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/me", token(t, secret, authz.RoleAudit, time.Hour)).Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/write", token(t, secret, authz.RoleSales, time.Hour)).Code)

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPost, "/admin", token(t, secret, authz.RoleSales, time.Hour)).Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodPost, "/admin", token(t, secret, authz.RoleAdmin, time.Hour)).Code)
}

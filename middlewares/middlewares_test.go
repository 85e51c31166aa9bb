package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestMiddleware())
	api := router.Group("/api", AuthMiddleware())
	api.GET("/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		id, _ := utils.GetOperatorIdFromContext(ctx)
		name, _ := utils.GetOperatorNameFromContext(ctx)
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{"id": id, "name": name, "correlation_id": correlationId})
	})
	api.POST("/adjust", RequirePermission("stock.adjust"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func call(router *gin.Engine, method, path, token string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("API_SECRET", "middleware-secret")
	t.Setenv("REDIS_ENABLED", "false")
	router := newTestRouter()

	token, err := utils.JwtGenerate("op-9", "Ma Aye", []string{"sale.create"})
	require.NoError(t, err)

	w := call(router, http.MethodGet, "/api/whoami", token, map[string]string{CorrelationIdHeader: "req-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"op-9","name":"Ma Aye","correlation_id":"req-1"}`, w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(CorrelationIdHeader))

	w = call(router, http.MethodGet, "/api/whoami", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get(CorrelationIdHeader))

	w = call(router, http.MethodGet, "/api/whoami", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission(t *testing.T) {
	t.Setenv("API_SECRET", "middleware-secret")
	t.Setenv("REDIS_ENABLED", "false")
	router := newTestRouter()

	seller, err := utils.JwtGenerate("op-1", "Seller", []string{"sale.create"})
	require.NoError(t, err)
	admin, err := utils.JwtGenerate("op-2", "Admin", []string{"*"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, call(router, http.MethodPost, "/api/adjust", seller, nil).Code)
	assert.Equal(t, http.StatusNoContent, call(router, http.MethodPost, "/api/adjust", admin, nil).Code)
}

func TestAuthMiddlewareRejectsRevokedTokens(t *testing.T) {
	t.Setenv("API_SECRET", "middleware-secret")
	t.Setenv("REDIS_ENABLED", "true")
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.SetRedis(client)
	t.Cleanup(func() {
		config.SetRedis(nil)
		_ = client.Close()
	})
	router := newTestRouter()

	token, err := utils.JwtGenerate("op-3", "Leaver", []string{"*"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(router, http.MethodGet, "/api/whoami", token, nil).Code)

	require.NoError(t, config.SetRedisObject(RevokedTokenKey(token), true, time.Hour))
	assert.Equal(t, http.StatusUnauthorized, call(router, http.MethodGet, "/api/whoami", token, nil).Code)
}

func TestRequestMiddlewareReplacesOversizedCorrelationId(t *testing.T) {
	router := gin.New()
	router.Use(RequestMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	w := call(router, http.MethodGet, "/ping", "", map[string]string{CorrelationIdHeader: string(long)})
	assert.Equal(t, http.StatusNoContent, w.Code)
	got := w.Header().Get(CorrelationIdHeader)
	assert.NotEqual(t, string(long), got)
	assert.Len(t, got, 36)
}

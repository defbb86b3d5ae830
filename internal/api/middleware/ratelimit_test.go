package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"family-backend/pkg/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow sits at the start of a 60 second window
var fixedNow = time.Unix(1700000040, 0)

func setupTestMiddleware(t *testing.T) (*gin.Engine, *miniredis.Miniredis, func()) {
	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	err = client.Ping(context.Background()).Err()
	require.NoError(t, err)

	rules := []ratelimit.Rule{
		{Prefix: "/api/auth", Config: ratelimit.Config{Limit: 1, Burst: 1}},
	}
	policy, err := ratelimit.NewPolicy(
		ratelimit.NewRedisStore(client),
		ratelimit.Config{Limit: 5},
		rules,
		[]string{"/api/v1/health"},
		ratelimit.WithClock(func() time.Time { return fixedNow }),
		ratelimit.WithTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(policy))

	router.POST("/api/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "login successful"})
	})
	router.GET("/api/families/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"family": c.Param("id")})
	})
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return router, mr, cleanup
}

func doRequest(router *gin.Engine, method, path, clientIP string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_BasicFunctionality(t *testing.T) {
	router, _, cleanup := setupTestMiddleware(t)
	defer cleanup()

	w1 := doRequest(router, http.MethodGet, "/api/families/1", "192.168.1.1")
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "5", w1.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w1.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000100", w1.Header().Get("X-RateLimit-Reset"))

	w2 := doRequest(router, http.MethodGet, "/api/families/2", "192.168.1.1")
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "3", w2.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddleware_RateLimitExceeded(t *testing.T) {
	router, _, cleanup := setupTestMiddleware(t)
	defer cleanup()

	clientIP := "192.168.1.2"

	w1 := doRequest(router, http.MethodPost, "/api/auth/login", clientIP)
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "1", w1.Header().Get("X-RateLimit-Limit"))

	w2 := doRequest(router, http.MethodPost, "/api/auth/login", clientIP)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "60", w2.Header().Get("Retry-After"))
	assert.Equal(t, "0", w2.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, w2.Body.String())
}

func TestRateLimitMiddleware_DifferentClients(t *testing.T) {
	router, _, cleanup := setupTestMiddleware(t)
	defer cleanup()

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/auth/login", "192.168.1.3").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodPost, "/api/auth/login", "192.168.1.3").Code)

	// Client 2 should still be able to make a request
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/api/auth/login", "192.168.1.4").Code)
}

func TestRateLimitMiddleware_UnknownClient(t *testing.T) {
	router, mr, cleanup := setupTestMiddleware(t)
	defer cleanup()

	w := doRequest(router, http.MethodGet, "/api/families/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mr.Exists("rate-limit:/api/families/*:unknown:1700000040"))
}

func TestRateLimitMiddleware_ExemptPath(t *testing.T) {
	router, mr, cleanup := setupTestMiddleware(t)
	defer cleanup()

	for i := 0; i < 10; i++ {
		w := doRequest(router, http.MethodGet, "/api/v1/health", "192.168.1.5")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Empty(t, mr.Keys())
}

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	router, mr, cleanup := setupTestMiddleware(t)
	defer cleanup()

	mr.Close()

	for i := 0; i < 3; i++ {
		w := doRequest(router, http.MethodPost, "/api/auth/login", "192.168.1.6")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	policy, err := ratelimit.NewPolicy(nil, ratelimit.Config{Limit: 1}, nil, nil)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(policy))
	router.GET("/api/events", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodGet, "/api/events", "192.168.1.7").Code)
	}
}

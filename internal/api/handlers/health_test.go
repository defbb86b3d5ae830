package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"family-backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	status redis.HealthStatus
}

func (f *fakeRedis) HealthCheck() redis.HealthStatus {
	return f.status
}

func (f *fakeRedis) GetConnectionStats() map[string]interface{} {
	return map[string]interface{}{"isConnected": f.status.IsConnected}
}

func serveHealth(t *testing.T, h *HealthHandler) (int, map[string]interface{}) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/v1/health", h.HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthCheck_RedisConnected(t *testing.T) {
	h := NewHealthHandler(&fakeRedis{status: redis.HealthStatus{
		IsConnected:    true,
		ConnectionInfo: "localhost:6379",
		ResponseTime:   time.Millisecond,
		LastPing:       time.Now(),
	}}, true)

	code, body := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	services := body["services"].(map[string]interface{})
	redisStatus := services["redis"].(map[string]interface{})
	assert.Equal(t, true, redisStatus["healthy"])
	assert.Equal(t, "localhost:6379", redisStatus["connectionInfo"])
	assert.NotContains(t, redisStatus, "error")
}

func TestHealthCheck_RedisDown(t *testing.T) {
	h := NewHealthHandler(&fakeRedis{status: redis.HealthStatus{
		ConnectionInfo: "localhost:6379",
		Error:          "connection refused",
	}}, true)

	code, body := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])

	services := body["services"].(map[string]interface{})
	redisStatus := services["redis"].(map[string]interface{})
	assert.Equal(t, false, redisStatus["healthy"])
	assert.Equal(t, "connection refused", redisStatus["error"])
}

func TestHealthCheck_NoRedis(t *testing.T) {
	code, body := serveHealth(t, NewHealthHandler(nil, false))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	services := body["services"].(map[string]interface{})
	assert.NotContains(t, services, "redis")
	assert.Equal(t, false, services["rateLimit"].(map[string]interface{})["enabled"])
}

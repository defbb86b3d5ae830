package handlers

import (
	"net/http"
	"time"

	"family-backend/pkg/redis"

	"github.com/gin-gonic/gin"
)

// RedisChecker reports the state of the rate limit store connection
type RedisChecker interface {
	HealthCheck() redis.HealthStatus
	GetConnectionStats() map[string]interface{}
}

var _ RedisChecker = (*redis.Client)(nil)

type HealthHandler struct {
	redisClient RedisChecker
	rateLimited bool
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

// NewHealthHandler creates the health handler. redisClient may be nil when
// rate limiting runs on the in-memory store or is disabled.
func NewHealthHandler(redisClient RedisChecker, rateLimited bool) *HealthHandler {
	return &HealthHandler{
		redisClient: redisClient,
		rateLimited: rateLimited,
	}
}

// HealthCheck always answers 200: the limiter fails open, so an unreachable
// store degrades protection but not availability.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]interface{}),
	}

	response.Services["rateLimit"] = map[string]interface{}{
		"service": "rateLimit",
		"enabled": h.rateLimited,
	}

	if h.redisClient != nil {
		redisStatus := h.checkRedis()
		response.Services["redis"] = redisStatus
		if !redisStatus["healthy"].(bool) {
			response.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkRedis() map[string]interface{} {
	healthStatus := h.redisClient.HealthCheck()
	status := map[string]interface{}{
		"service":         "redis",
		"healthy":         healthStatus.IsConnected,
		"connectionInfo":  healthStatus.ConnectionInfo,
		"responseTime":    healthStatus.ResponseTime.String(),
		"lastPing":        healthStatus.LastPing,
		"connectionStats": h.redisClient.GetConnectionStats(),
	}
	if healthStatus.Error != "" {
		status["error"] = healthStatus.Error
	}

	return status
}

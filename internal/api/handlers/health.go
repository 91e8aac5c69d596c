package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/quantsignal/advisor-go/internal/telemetry"
)

// HealthResponse reports service liveness and the state of its optional
// collaborators.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthHandler serves GET /health. The redis client may be nil when caching
// is disabled.
type HealthHandler struct {
	redis *redis.Client
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{redis: redisClient}
}

// Check reports ok, or degraded when the cache backend is unreachable.
func (h *HealthHandler) Check(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Version:   telemetry.ServiceVersion,
		Timestamp: time.Now().UTC(),
		Services:  map[string]string{"cache": "disabled"},
	}

	if h.redis != nil {
		response.Services["cache"] = "ok"
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			response.Services["cache"] = "error"
			response.Status = "degraded"
		}
	}

	statusCode := http.StatusOK
	if response.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

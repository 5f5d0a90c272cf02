package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/fetch-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/fetch-gateway/internal/healthcheck"
)

// Handles health and circuit breaker endpoints
type SystemHandler struct {
	checker  *healthcheck.Checker
	breakers map[string]*circuitbreaker.CircuitBreaker
	mode     string
	started  time.Time
}

func NewSystemHandler(checker *healthcheck.Checker, breakers map[string]*circuitbreaker.CircuitBreaker, mode string) *SystemHandler {
	if breakers == nil {
		breakers = make(map[string]*circuitbreaker.CircuitBreaker)
	}
	return &SystemHandler{
		checker:  checker,
		breakers: breakers,
		mode:     mode,
		started:  time.Now(),
	}
}

// Handles GET /health. Only an unhealthy gateway answers 503; a degraded one
// still serves fetches.
func (h *SystemHandler) Health(c *gin.Context) {
	overall := h.checker.OverallHealth()

	statusCode := http.StatusOK
	if overall == healthcheck.Unhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall,
		"service":   "fetch-gateway",
		"mode":      h.mode,
		"uptime":    int64(time.Since(h.started).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    h.checker.GetAllStatus(),
	})
}

// Returns the status of all circuit breakers
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make(map[string]circuitbreaker.Metrics, len(h.breakers))
	for name, cb := range h.breakers {
		statuses[name] = cb.Metrics()
	}

	c.JSON(http.StatusOK, statuses)
}

// Manually resets a circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")

	cb, exists := h.breakers[name]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Circuit breaker not found"})
		return
	}

	cb.Reset()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"name":    name,
	})
}

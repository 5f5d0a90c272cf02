package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/fetch-gateway/internal/ratelimit"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
)

const maxUsageDays = 30

type UsageHandler struct {
	keys  *service.APIKeyService
	meter *ratelimit.UsageMeter
}

func NewUsageHandler(keys *service.APIKeyService, meter *ratelimit.UsageMeter) *UsageHandler {
	return &UsageHandler{keys: keys, meter: meter}
}

// Handles GET /admin/usage/:key?days=N where :key is a stored key's id or a
// key fingerprint
func (h *UsageHandler) Get(c *gin.Context) {
	days := 7
	if daysStr := c.Query("days"); daysStr != "" {
		d, err := strconv.Atoi(daysStr)
		if err != nil || d < 1 || d > maxUsageDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 30"})
			return
		}
		days = d
	}

	ctx := c.Request.Context()
	fingerprint, err := h.keys.ResolveFingerprint(ctx, c.Param("key"))
	if err != nil {
		writeKeyError(c, err)
		return
	}

	usage, err := h.meter.Usage(ctx, fingerprint, days)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	var total int64
	for _, day := range usage {
		total += day.Count
	}

	c.JSON(http.StatusOK, gin.H{
		"fingerprint": fingerprint,
		"days":        usage,
		"total":       total,
	})
}

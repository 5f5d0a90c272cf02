package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/ratelimit"
)

// MeterUsage counts the request against the key's daily usage. Failures are
// logged and never affect the request.
func MeterUsage(meter *ratelimit.UsageMeter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if info := KeyInfoFrom(c); info != nil {
			if _, err := meter.Record(c.Request.Context(), info.Fingerprint); err != nil {
				metrics.IncCounterStoreError("usage")
				logger.Warn("usage metering failed",
					zap.String("request_id", c.GetString(RequestIDKey)),
					zap.String("key", info.Fingerprint),
					zap.Error(err),
				)
			}
		}

		c.Next()
	}
}

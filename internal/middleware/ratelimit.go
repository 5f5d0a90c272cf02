package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/ratelimit"
	"github.com/aman-churiwal/fetch-gateway/internal/response"
)

// RateLimitByTier enforces the hourly quota of the key's tier. A failing
// counter store lets the request through without rate-limit headers.
func RateLimitByTier(limiter *ratelimit.FixedWindowLimiter, upgradeURL string, logger *zap.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := KeyInfoFrom(c)
		if info == nil {
			c.Next()
			return
		}

		tier := info.Tier
		limit := tier.Quota()

		decision, err := limiter.Allow(c.Request.Context(), info.Fingerprint, limit)
		if err != nil {
			metrics.IncCounterStoreError("ratelimit")
			logger.Warn("rate limit check failed, continuing unlimited",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.String("key", info.Fingerprint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			metrics.IncAdmission("rate_limited", tier.String())

			retryAfter := int(time.Until(decision.Reset).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			response.Error(c, apierror.RateLimitExceeded(tier.String(), limit).
				With("tier", tier.String()).
				With("limit", limit).
				With("resetAt", decision.Reset.UTC().Format(time.RFC3339)).
				With("upgradeUrl", upgradeURL), development)
			return
		}

		metrics.IncAdmission("allowed", tier.String())
		c.Next()
	}
}

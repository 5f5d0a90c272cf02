package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/response"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
)

// RequireAPIKey rejects requests without a valid key. It must run after
// BindFetchRequest.
func RequireAPIKey(keys *service.APIKeyService, logger *zap.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := FetchRequestFrom(c)
		if req == nil || req.APIKey == "" {
			metrics.IncAdmission("missing_key", "")
			response.Error(c, apierror.MissingAPIKey(), development)
			return
		}

		ctx := c.Request.Context()
		info, err := keys.Validate(ctx, req.APIKey)
		if err != nil {
			logger.Error("api key validation failed",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.Error(err),
			)
			response.Error(c, apierror.Internal(err), development)
			return
		}
		if info == nil {
			metrics.IncAdmission("invalid_key", "")
			response.Error(c, apierror.InvalidAPIKey(), development)
			return
		}

		c.Set(APIKeyKey, info)

		if info.Stored() {
			go keys.TouchLastUsed(context.WithoutCancel(ctx), info)
		}

		c.Next()
	}
}

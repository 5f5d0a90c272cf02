package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/fetch-gateway/internal/service"
)

// Keys under which middleware stores request state in the gin context
const (
	RequestIDKey    = "request_id"
	APIKeyKey       = "api_key"
	FetchRequestKey = "fetch_request"
	AdminEmailKey   = "admin_email"
)

// Returns the validated key for the request, or nil in open mode
func KeyInfoFrom(c *gin.Context) *service.KeyInfo {
	v, ok := c.Get(APIKeyKey)
	if !ok {
		return nil
	}
	info, _ := v.(*service.KeyInfo)
	return info
}

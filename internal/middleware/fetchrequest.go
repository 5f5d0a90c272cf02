package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/response"
	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

// FetchRequest is the parsed input of the fetch endpoint
type FetchRequest struct {
	URL    string              `json:"url"`
	Type   target.ResourceType `json:"-"`
	APIKey string              `json:"-"`
}

type fetchBody struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	APIKey string `json:"apiKey"`
}

// BindFetchRequest reads url, type and apiKey from the query string, falling
// back to a JSON body on POST. A request without url gets the readiness
// payload when requireURL is false and MISSING_URL otherwise.
func BindFetchRequest(requireURL, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body fetchBody
		if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
			// A malformed body is treated like an empty one
			_ = c.ShouldBindJSON(&body)
		}

		req := &FetchRequest{
			URL:    firstNonEmpty(c.Query("url"), body.URL),
			Type:   target.ParseResourceType(firstNonEmpty(c.Query("type"), body.Type)),
			APIKey: firstNonEmpty(c.Query("apiKey"), c.GetHeader("x-api-key"), body.APIKey),
		}

		if req.URL == "" {
			if requireURL {
				response.Error(c, apierror.MissingURL(), development)
				return
			}
			response.ReadyPing(c)
			c.Abort()
			return
		}

		c.Set(FetchRequestKey, req)
		c.Next()
	}
}

// Returns the bound request. Handlers behind BindFetchRequest always get one.
func FetchRequestFrom(c *gin.Context) *FetchRequest {
	v, ok := c.Get(FetchRequestKey)
	if !ok {
		return nil
	}
	req, _ := v.(*FetchRequest)
	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

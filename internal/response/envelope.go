// Package response writes the JSON envelopes returned by the fetch endpoint.
package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/fetcher"
	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

// Success is the body of a successful fetch
type Success struct {
	Success     bool   `json:"success"`
	URL         string `json:"url"`
	FinalURL    string `json:"finalUrl"`
	StatusCode  int    `json:"statusCode"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
	Length      int    `json:"length"`
	Truncated   bool   `json:"truncated,omitempty"`
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Ready is returned by the open variant when no url is given
type Ready struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Usage   string   `json:"usage"`
	Types   []string `json:"types"`
}

var now = time.Now

func NewSuccess(result *fetcher.Result, rt target.ResourceType) Success {
	return Success{
		Success:     true,
		URL:         result.URL,
		FinalURL:    result.FinalURL,
		StatusCode:  result.StatusCode,
		Content:     result.Content,
		ContentType: result.ContentType,
		Length:      result.Length,
		Truncated:   result.Truncated,
		Timestamp:   now().UTC().Format(time.RFC3339),
		Type:        rt.String(),
		Title:       result.Title,
		Description: result.Description,
	}
}

func OK(c *gin.Context, result *fetcher.Result, rt target.ResourceType) {
	c.JSON(http.StatusOK, NewSuccess(result, rt))
}

func ReadyPing(c *gin.Context) {
	c.JSON(http.StatusOK, Ready{
		Success: true,
		Message: "Fetch gateway is ready",
		Usage:   "GET /api/fetch?url=example.com&type=html",
		Types: []string{
			target.HTML.String(),
			target.Robots.String(),
			target.Sitemap.String(),
			target.LLMs.String(),
		},
	})
}

// ErrorBody builds the error envelope. The wrapped cause is only exposed as
// "details" when development is set.
func ErrorBody(e *apierror.Error, development bool) gin.H {
	body := gin.H{
		"success": false,
		"error":   e.Title,
		"code":    e.Code,
		"message": e.Message,
	}
	for k, v := range e.Fields {
		body[k] = v
	}
	if development && e.Err != nil {
		body["details"] = e.Err.Error()
	}
	return body
}

// Error writes err as an envelope and aborts the chain. Errors that are not
// *apierror.Error become INTERNAL_ERROR.
func Error(c *gin.Context, err error, development bool) {
	e := apierror.From(err)
	_ = c.Error(e)
	c.AbortWithStatusJSON(e.Status, ErrorBody(e, development))
}

package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/middleware"
	"github.com/aman-churiwal/fetch-gateway/internal/response"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
)

var errNoFetchRequest = errors.New("fetch request was not bound")

type FetchHandler struct {
	service     *service.FetchService
	development bool
}

func NewFetchHandler(svc *service.FetchService, development bool) *FetchHandler {
	return &FetchHandler{service: svc, development: development}
}

// Handles GET|POST /api/fetch
func (h *FetchHandler) Fetch(c *gin.Context) {
	req := middleware.FetchRequestFrom(c)
	if req == nil {
		response.Error(c, apierror.Internal(errNoFetchRequest), h.development)
		return
	}

	result, err := h.service.Fetch(c.Request.Context(), req.URL, req.Type)
	if err != nil {
		response.Error(c, err, h.development)
		return
	}

	response.OK(c, result, req.Type)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aman-churiwal/fetch-gateway/internal/repository"
	"github.com/aman-churiwal/fetch-gateway/internal/service"
)

type APIKeyHandler struct {
	service *service.APIKeyService
}

func NewAPIKeyHandler(svc *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{service: svc}
}

// Handles POST /admin/keys
func (h *APIKeyHandler) Create(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Owner string `json:"owner"`
		Tier  string `json:"tier"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, apiKey, err := h.service.Create(c.Request.Context(), req.Name, req.Owner, req.Tier)
	if err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"api_key": apiKey,
		"message": "Save this key - it won't be shown again",
	})
}

// Handles GET /admin/keys
func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.service.List(c.Request.Context())
	if err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, keys)
}

// Handles GET /admin/keys/:id
func (h *APIKeyHandler) Get(c *gin.Context) {
	id, ok := parseKeyID(c)
	if !ok {
		return
	}

	apiKey, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, apiKey)
}

// Handles PATCH /admin/keys/:id
func (h *APIKeyHandler) Update(c *gin.Context) {
	id, ok := parseKeyID(c)
	if !ok {
		return
	}

	var req service.KeyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil && req.Tier == nil && req.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	apiKey, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, apiKey)
}

// Handles DELETE /admin/keys/:id
func (h *APIKeyHandler) Delete(c *gin.Context) {
	id, ok := parseKeyID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted successfully"})
}

func parseKeyID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return uuid.Nil, false
	}
	return id, true
}

func writeKeyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrKeyNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
	case errors.Is(err, service.ErrInvalidTier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoKeyStorage):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

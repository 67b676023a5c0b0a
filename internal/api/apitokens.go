package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webpush-service/internal/models"
	"webpush-service/internal/services"
)

type createTokenRequest struct {
	Name string `json:"name"`
	// Days until expiry; 0 never expires.
	ExpiresIn int `json:"expiresIn"`
}

// CreateAPIToken handles POST /api-token. The raw token is in this response only.
func (h *Handler) CreateAPIToken(c *gin.Context) {
	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input parameters"})
		return
	}
	issued, err := h.accounts.CreateAPIToken(c.Request.Context(), sessionUser(c), req.Name, req.ExpiresIn)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// ListAPITokens handles GET /api-token?page=&pageSize=. Tokens are masked.
func (h *Handler) ListAPITokens(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "pageSize", services.DefaultTokenPageSize)

	result, err := h.accounts.ListAPITokens(c.Request.Context(), sessionUser(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.Tokens == nil {
		result.Tokens = []models.APIToken{}
	}
	c.JSON(http.StatusOK, result)
}

// RevokeAPIToken handles DELETE /api-token?id=.
func (h *Handler) RevokeAPIToken(c *gin.Context) {
	if err := h.accounts.RevokeAPIToken(c.Request.Context(), sessionUser(c), c.Query("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token revoked successfully"})
}
